package ml

import "errors"

var (
	// ErrModelNotFound is returned when no artifact exists at the model path.
	ErrModelNotFound = errors.New("model artifact not found")

	// ErrModelNotTrained is returned when predicting or saving before Train.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrUnsupportedModel is returned for unknown model types.
	ErrUnsupportedModel = errors.New("unsupported model type")

	// ErrFeatureCount is returned when an input row has the wrong width.
	ErrFeatureCount = errors.New("feature count mismatch")

	// ErrEmptyDataset is returned when training data is empty or inconsistent.
	ErrEmptyDataset = errors.New("features or labels empty")
)

// Classifier is a trained model. Implementations must be safe for concurrent
// use once trained, since the serving path only reads them.
type Classifier interface {
	// Predict returns the class ordinal for one feature row.
	Predict(features []float64) (int, error)

	// PredictProba returns one probability per class, indexed by ordinal.
	PredictProba(features []float64) ([]float64, error)
}

// MLModel is a Classifier that can be trained and persisted.
type MLModel interface {
	Classifier
	Train(features [][]float64, labels []int) error
	Save(path string) error
	Load(path string) error
}

// Model types accepted by LoadModel and NewModel.
const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)

// AlgorithmName returns the display name reported by the info endpoint.
func AlgorithmName(modelType string) string {
	switch modelType {
	case ModelTypeRandomForest:
		return "RandomForestClassifier"
	case ModelTypeDecisionTree:
		return "DecisionTreeClassifier"
	default:
		return modelType
	}
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
