package ml

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// ModelStatus is the serving state of a ModelHandle.
type ModelStatus int

const (
	// ModelAbsent means no model could be loaded at startup.
	ModelAbsent ModelStatus = iota
	// ModelReady means a model is loaded and serving.
	ModelReady
)

func (s ModelStatus) String() string {
	switch s {
	case ModelAbsent:
		return "absent"
	case ModelReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ModelHandle owns the model for the lifetime of the process. It is built
// once at startup and never mutated, so it can be shared across requests
// without locking.
type ModelHandle struct {
	status    ModelStatus
	model     Classifier
	modelType string
	path      string
	loadErr   error
	loadedAt  time.Time
}

// NewReadyHandle wraps an already loaded model.
func NewReadyHandle(modelType, path string, model Classifier) *ModelHandle {
	return &ModelHandle{
		status:    ModelReady,
		model:     model,
		modelType: modelType,
		path:      path,
		loadedAt:  time.Now(),
	}
}

// NewAbsentHandle records why no model is available.
func NewAbsentHandle(modelType, path string, err error) *ModelHandle {
	return &ModelHandle{
		status:    ModelAbsent,
		modelType: modelType,
		path:      path,
		loadErr:   err,
	}
}

// OpenModel performs the one-shot startup load. Failures never abort the
// process; they produce an absent handle instead.
func OpenModel(modelType, path string, log *zap.SugaredLogger) *ModelHandle {
	model, err := LoadModel(modelType, path)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			log.Warnw("model artifact not found, serving without a model", "path", path, "type", modelType)
		} else {
			log.Errorw("failed to load model, serving without a model", "path", path, "type", modelType, "error", err)
		}
		return NewAbsentHandle(modelType, path, err)
	}

	log.Infow("model loaded", "path", path, "type", modelType)
	return NewReadyHandle(modelType, path, model)
}

func (h *ModelHandle) Status() ModelStatus {
	return h.status
}

// Model returns the classifier and true only when the handle is ready.
func (h *ModelHandle) Model() (Classifier, bool) {
	if h.status != ModelReady {
		return nil, false
	}
	return h.model, true
}

// Err returns the load error of an absent handle.
func (h *ModelHandle) Err() error {
	return h.loadErr
}

func (h *ModelHandle) ModelType() string {
	return h.modelType
}

func (h *ModelHandle) Path() string {
	return h.path
}
