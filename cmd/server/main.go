package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"irisclassifier/config"
	"irisclassifier/db"
	qhttp "irisclassifier/http"
	"irisclassifier/logger"
	"irisclassifier/ml"
	"irisclassifier/monitoring"
	"irisclassifier/version"
)

type serverFlags struct {
	configPath string
	port       int
	modelPath  string
	modelType  string
	dbPath     string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &serverFlags{}
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve Iris species predictions over HTTP",
		Version:       version.Version,
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
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "HTTP listen port")
	cmd.Flags().StringVar(&flags.modelPath, "model-path", "", "model artifact path")
	cmd.Flags().StringVar(&flags.modelType, "model-type", "", "model type: random_forest or decision_tree")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "SQLite prediction log path")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	return cmd
}

func applyFlags(cmd *cobra.Command, flags *serverFlags, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.HTTP.Port = flags.port
	}
	if cmd.Flags().Changed("model-path") {
		cfg.Model.Path = flags.modelPath
	}
	if cmd.Flags().Changed("model-type") {
		cfg.Model.Type = flags.modelType
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = flags.dbPath
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = flags.logLevel
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

	log.Infow("starting", "name", version.Name, "version", version.Version)

	// 1. Load model once; an absent model still serves / and /health.
	handle := ml.OpenModel(cfg.Model.Type, cfg.Model.Path, log)

	if cfg.Model.Watch {
		watcher, err := ml.WatchArtifact(cfg.Model.Path, log, func(fsnotify.Op) {
			monitoring.ModelArtifactChangeCount.Inc()
		})
		if err != nil {
			log.Warnw("artifact watcher disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// 2. Optional prediction log
	deps := qhttp.Deps{Handle: handle, Logger: log}
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
		deps.Store = store
		log.Infow("prediction log enabled", "path", cfg.Database.Path)
		reportLastTraining(ctx, store, log)
	}

	cache, err := ml.NewPredictionCache(cfg.Cache.Size)
	if err != nil {
		return err
	}
	deps.Cache = cache

	// 3. Serve until signalled
	server := qhttp.NewServer(qhttp.ServerConfigFrom(cfg.HTTP), deps)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	if err := server.Stop(); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
		return err
	}
	return <-errCh
}

// reportLastTraining exposes the accuracy of the most recent recorded training
// run of each model type.
func reportLastTraining(ctx context.Context, store *db.Store, log *zap.SugaredLogger) {
	logs, err := store.LoadTrainingLog(ctx)
	if err != nil {
		log.Warnw("failed to read training log", "error", err)
		return
	}
	seen := make(map[string]bool)
	for _, entry := range logs {
		if seen[entry.ModelName] {
			continue
		}
		seen[entry.ModelName] = true
		monitoring.TrainingAccuracyGauge.WithLabelValues(entry.ModelName).Set(entry.Accuracy)
		log.Infow("last training run", "model", entry.ModelName, "accuracy", entry.Accuracy, "trained_at", entry.TrainedAt)
	}
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

