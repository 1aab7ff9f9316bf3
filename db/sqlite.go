package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"irisclassifier/ml"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        sepal_length REAL NOT NULL,
        sepal_width REAL NOT NULL,
        petal_length REAL NOT NULL,
        petal_width REAL NOT NULL,
        species TEXT NOT NULL,
        class_id INTEGER NOT NULL,
        confidence REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

// ErrInvalidRecord is returned when a record is missing required fields.
var ErrInvalidRecord = errors.New("invalid record")

// Store persists served predictions and training runs to SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under load.
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: database}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	RequestID   string         `json:"request_id"`
	Measurement ml.Measurement `json:"measurement"`
	Species     string         `json:"species"`
	ClassID     int            `json:"class_id"`
	Confidence  float64        `json:"confidence"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewPredictionRecord builds a record from a served prediction. Confidence is
// the probability of the predicted species.
func NewPredictionRecord(requestID string, m ml.Measurement, p ml.Prediction) PredictionRecord {
	return PredictionRecord{
		RequestID:   requestID,
		Measurement: m,
		Species:     p.Species,
		ClassID:     p.ClassID,
		Confidence:  p.Probabilities[p.Species],
		CreatedAt:   time.Now().UTC(),
	}
}

// LogPrediction appends a prediction to the log.
func (s *Store) LogPrediction(ctx context.Context, rec PredictionRecord) error {
	if rec.Species == "" {
		return fmt.Errorf("%w: species required", ErrInvalidRecord)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            request_id, sepal_length, sepal_width, petal_length, petal_width,
            species, class_id, confidence, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Measurement.SepalLength,
		rec.Measurement.SepalWidth,
		rec.Measurement.PetalLength,
		rec.Measurement.PetalWidth,
		rec.Species,
		rec.ClassID,
		rec.Confidence,
		rec.CreatedAt,
	)
	return err
}

// recentPredictions returns up to limit predictions, newest first.
func (s *Store) recentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT request_id, sepal_length, sepal_width, petal_length, petal_width,
               species, class_id, confidence, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		var rec PredictionRecord
		var requestID sql.NullString
		if err := rows.Scan(
			&requestID,
			&rec.Measurement.SepalLength,
			&rec.Measurement.SepalWidth,
			&rec.Measurement.PetalLength,
			&rec.Measurement.PetalWidth,
			&rec.Species,
			&rec.ClassID,
			&rec.Confidence,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.RequestID = requestID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

// NewTrainingLog summarises a training run.
func NewTrainingLog(res *ml.TrainingResult) TrainingLog {
	return TrainingLog{
		ModelName:  res.ModelType,
		Accuracy:   res.Evaluation.Accuracy,
		Precision:  res.Evaluation.MacroPrecision,
		Recall:     res.Evaluation.MacroRecall,
		F1:         res.Evaluation.MacroF1,
		TrainedAt:  res.TrainedAt,
		DataPoints: res.TrainSamples + res.TestSamples,
	}
}

// LogTraining records a training run.
func (s *Store) LogTraining(ctx context.Context, entry TrainingLog) error {
	if entry.ModelName == "" {
		return fmt.Errorf("%w: model name required", ErrInvalidRecord)
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_name, accuracy, precision, recall, f1, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.Accuracy, entry.Precision, entry.Recall, entry.F1, entry.TrainedAt, entry.DataPoints)
	return err
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, accuracy, precision, recall, f1, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.F1, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
