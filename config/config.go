// Package config loads service configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"irisclassifier/ml"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "IRIS_CONFIG"

// DefaultPath is used when neither a flag nor IRIS_CONFIG is set.
const DefaultPath = "config.yaml"

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Model    ModelConfig    `yaml:"model"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Training TrainingConfig `yaml:"training"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type ModelConfig struct {
	// Type is random_forest or decision_tree.
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	// Watch logs when the artifact changes on disk.
	Watch bool `yaml:"watch"`
}

type CacheConfig struct {
	// Size of the prediction LRU; 0 disables it.
	Size int `yaml:"size"`
}

type DatabaseConfig struct {
	// Path of the SQLite file; empty disables prediction and training logs.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type TrainingConfig struct {
	NEstimators     int     `yaml:"n_estimators"`
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	TestRatio       float64 `yaml:"test_ratio"`
	Seed            int64   `yaml:"seed"`
}

// New returns the default configuration.
func New() *Config {
	forest := ml.DefaultForestParams()
	return &Config{
		HTTP: HTTPConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Model: ModelConfig{
			Type:  ml.ModelTypeRandomForest,
			Path:  "models/iris_classifier.json",
			Watch: true,
		},
		Cache: CacheConfig{
			Size: 1024,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 10,
		},
		Training: TrainingConfig{
			NEstimators:     forest.NEstimators,
			MaxDepth:        forest.MaxDepth,
			MinSamplesSplit: forest.MinSamplesSplit,
			TestRatio:       0.2,
			Seed:            forest.Seed,
		},
	}
}

// Load reads path over the defaults. An empty path resolves to IRIS_CONFIG and
// then DefaultPath; a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := New()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if err := envOverrideInt(&c.HTTP.Port, "IRIS_HTTP_PORT"); err != nil {
		return err
	}
	envOverride(&c.Model.Path, "IRIS_MODEL_PATH")
	envOverride(&c.Model.Type, "IRIS_MODEL_TYPE")
	envOverride(&c.Database.Path, "IRIS_DB_PATH")
	envOverride(&c.Log.Level, "IRIS_LOG_LEVEL")
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Model.Type != ml.ModelTypeRandomForest && c.Model.Type != ml.ModelTypeDecisionTree {
		return fmt.Errorf("%w: %q", ml.ErrUnsupportedModel, c.Model.Type)
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio %v must be in (0,1)", c.Training.TestRatio)
	}
	if c.Training.NEstimators <= 0 {
		return errors.New("training.n_estimators must be positive")
	}
	return nil
}

// ForestParams converts the training section into model parameters.
func (c *Config) ForestParams() ml.ForestParams {
	return ml.ForestParams{
		NEstimators:     c.Training.NEstimators,
		MaxDepth:        c.Training.MaxDepth,
		MinSamplesSplit: c.Training.MinSamplesSplit,
		Seed:            c.Training.Seed,
	}
}

func envOverride(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envOverrideInt(target *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = n
	return nil
}
