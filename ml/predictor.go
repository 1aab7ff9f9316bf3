package ml

import (
	"fmt"
	"math"
)

// Prediction is the outcome of one inference.
type Prediction struct {
	Species       string             `json:"species"`
	ClassID       int                `json:"class_id"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Infer runs the classifier on one feature vector. The label comes from the
// model's Predict and each probability is rounded to 4 decimal places.
func Infer(model Classifier, features FeatureVector) (Prediction, error) {
	row := features[:]

	classID, err := model.Predict(row)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	label, err := ClassFromID(classID)
	if err != nil {
		return Prediction{}, err
	}

	proba, err := model.PredictProba(row)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict proba: %w", err)
	}
	if len(proba) != NumClasses {
		return Prediction{}, fmt.Errorf("model returned %d probabilities, expected %d", len(proba), NumClasses)
	}

	probabilities := make(map[string]float64, NumClasses)
	rawSum, roundedSum := 0.0, 0.0
	for i, name := range classNames {
		probabilities[name] = roundTo(proba[i], 4)
		rawSum += proba[i]
		roundedSum += probabilities[name]
	}
	// Rounding can leave the total a few ten-thousandths off 1; the most
	// likely class absorbs the difference.
	if math.Abs(rawSum-1) < 1e-9 {
		if residual := roundTo(1-roundedSum, 4); residual != 0 {
			top := classNames[argmax(proba)]
			probabilities[top] = roundTo(probabilities[top]+residual, 4)
		}
	}

	return Prediction{
		Species:       label.String(),
		ClassID:       classID,
		Probabilities: probabilities,
	}, nil
}

// PredictMeasurement derives features and runs Infer.
func PredictMeasurement(model Classifier, m Measurement) (Prediction, error) {
	return Infer(model, DeriveFeatures(m))
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
