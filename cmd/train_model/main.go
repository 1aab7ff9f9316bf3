package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"irisclassifier/config"
	"irisclassifier/db"
	"irisclassifier/logger"
	"irisclassifier/ml"
)

type trainFlags struct {
	configPath  string
	modelType   string
	modelPath   string
	nEstimators int
	maxDepth    int
	testRatio   float64
	seed        int64
	dbPath      string
}

func newRootCommand() *cobra.Command {
	flags := &trainFlags{}
	cmd := &cobra.Command{
		Use:           "train_model",
		Short:         "Train the Iris classifier and save the model artifact",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, flags, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "config file (default $IRIS_CONFIG or config.yaml)")
	cmd.Flags().StringVar(&flags.modelType, "model-type", "", "model type: random_forest or decision_tree")
	cmd.Flags().StringVar(&flags.modelPath, "model-path", "", "model output path")
	cmd.Flags().IntVar(&flags.nEstimators, "n-estimators", 0, "number of trees in the forest")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "max tree depth, 0 for unlimited")
	cmd.Flags().Float64Var(&flags.testRatio, "test-ratio", 0, "held-out test ratio")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "SQLite path for the training log")
	return cmd
}

func applyFlags(cmd *cobra.Command, flags *trainFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("model-type") {
		cfg.Model.Type = flags.modelType
	}
	if changed("model-path") {
		cfg.Model.Path = flags.modelPath
	}
	if changed("n-estimators") {
		cfg.Training.NEstimators = flags.nEstimators
	}
	if changed("max-depth") {
		cfg.Training.MaxDepth = flags.maxDepth
	}
	if changed("test-ratio") {
		cfg.Training.TestRatio = flags.testRatio
	}
	if changed("seed") {
		cfg.Training.Seed = flags.seed
	}
	if changed("db") {
		cfg.Database.Path = flags.dbPath
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxAge:     cfg.Log.MaxAge,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := ml.Train(ctx, ml.TrainingConfig{
		ModelType: cfg.Model.Type,
		ModelPath: cfg.Model.Path,
		TestRatio: cfg.Training.TestRatio,
		Forest:    cfg.ForestParams(),
	}, log)
	if err != nil {
		return err
	}

	fmt.Printf("Accuracy: %.4f\n\n", result.Evaluation.Accuracy)
	fmt.Println("Classification Report:")
	fmt.Println(result.Evaluation.Report())
	fmt.Printf("Model saved to %s (%d train / %d test samples, %s)\n",
		result.ModelPath, result.TrainSamples, result.TestSamples, result.Duration.Round(time.Millisecond))

	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		if err := store.LogTraining(ctx, db.NewTrainingLog(result)); err != nil {
			return fmt.Errorf("log training run: %w", err)
		}
		log.Infow("training run recorded", "db", cfg.Database.Path)
	}
	return nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
