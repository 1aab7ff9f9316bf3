package ml

import "fmt"

// NewModel returns an untrained model of the given type.
func NewModel(modelType string, params ForestParams) (MLModel, error) {
	switch modelType {
	case ModelTypeRandomForest:
		return NewRandomForest(params), nil
	case ModelTypeDecisionTree:
		return NewDecisionTree(TreeParams{
			MaxDepth:        params.MaxDepth,
			MinSamplesSplit: params.MinSamplesSplit,
			Seed:            params.Seed,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}

// LoadModel reads a persisted model. A missing file yields ErrModelNotFound;
// callers are expected to retrain rather than retry.
func LoadModel(modelType, path string) (MLModel, error) {
	model, err := NewModel(modelType, ForestParams{})
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
