package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TrainingConfig describes one training run.
type TrainingConfig struct {
	ModelType string
	ModelPath string
	TestRatio float64
	Forest    ForestParams
}

// TrainingResult reports what a training run produced.
type TrainingResult struct {
	ModelType    string
	ModelPath    string
	TrainSamples int
	TestSamples  int
	Evaluation   *Evaluation
	Duration     time.Duration
	TrainedAt    time.Time
}

type contextTrainer interface {
	TrainContext(ctx context.Context, features [][]float64, labels []int) error
}

// Train fits a model on the bundled dataset, evaluates it on a held-out split
// and saves it to cfg.ModelPath.
func Train(ctx context.Context, cfg TrainingConfig, log *zap.SugaredLogger) (*TrainingResult, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if cfg.ModelType == "" {
		cfg.ModelType = ModelTypeRandomForest
	}
	start := time.Now()

	samples, err := LoadIrisDataset()
	if err != nil {
		return nil, err
	}
	trainSet, testSet := SplitDataset(samples, cfg.TestRatio, cfg.Forest.Seed)
	trainX, trainY := BuildTrainingSet(trainSet)
	log.Infow("dataset loaded", "samples", len(samples), "train", len(trainSet), "test", len(testSet))

	model, err := NewModel(cfg.ModelType, cfg.Forest)
	if err != nil {
		return nil, err
	}
	if trainer, ok := model.(contextTrainer); ok {
		err = trainer.TrainContext(ctx, trainX, trainY)
	} else {
		err = model.Train(trainX, trainY)
	}
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", cfg.ModelType, err)
	}

	evaluation, err := Evaluate(model, testSet)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	log.Infow("model evaluated", "accuracy", evaluation.Accuracy, "macro_f1", evaluation.MacroF1)

	if err := model.Save(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	log.Infow("model saved", "path", cfg.ModelPath)

	return &TrainingResult{
		ModelType:    cfg.ModelType,
		ModelPath:    cfg.ModelPath,
		TrainSamples: len(trainSet),
		TestSamples:  len(testSet),
		Evaluation:   evaluation,
		Duration:     time.Since(start),
		TrainedAt:    start.UTC(),
	}, nil
}
