package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"irisclassifier/db"
	"irisclassifier/ml"
	"irisclassifier/monitoring"
	"irisclassifier/version"
)

// ModelUnavailableMessage is returned while no model is loaded.
const ModelUnavailableMessage = "Model not loaded. Run 'make train' and restart the server."

// PredictionLogger records served predictions. *db.Store implements it.
type PredictionLogger interface {
	LogPrediction(ctx context.Context, rec db.PredictionRecord) error
}

// Deps are the collaborators the handlers need. A nil Handle serves as an
// absent random forest; nil Cache and Store are disabled.
type Deps struct {
	Handle *ml.ModelHandle
	Cache  *ml.PredictionCache
	Store  PredictionLogger
	Logger *zap.SugaredLogger
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Model   string   `json:"model"`
	Classes []string `json:"classes"`
}

type handlers struct {
	Deps
}

// RegisterHandlers 注册所有处理器
func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	if deps.Handle == nil {
		deps.Handle = ml.NewAbsentHandle(ml.ModelTypeRandomForest, "", ml.ErrModelNotFound)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	h := &handlers{Deps: deps}

	mux.HandleFunc("GET /{$}", h.handleInfo)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.Handle("GET /metrics", monitoring.Handler())
}

func (h *handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, InfoResponse{
		Name:    version.Name,
		Version: version.Version,
		Model:   ml.AlgorithmName(h.Handle.ModelType()),
		Classes: ml.ClassNames(),
	})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	switch h.Handle.Status() {
	case ml.ModelReady:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		respondDetail(w, http.StatusServiceUnavailable, ModelUnavailableMessage)
	}
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	measurement, err := decodeMeasurement(r.Body)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			monitoring.ValidationFailureCount.Inc()
			respondJSON(w, http.StatusUnprocessableEntity, map[string][]FieldError{"detail": verr.Errors})
		case isBodyTooLarge(err):
			respondDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
		default:
			respondDetail(w, http.StatusBadRequest, "Could not read request body")
		}
		return
	}

	model, ok := h.Handle.Model()
	if !ok {
		respondDetail(w, http.StatusServiceUnavailable, ModelUnavailableMessage)
		return
	}

	prediction, cached := h.Cache.Get(measurement)
	if cached {
		monitoring.PredictionCacheHitCount.Inc()
	} else {
		prediction, err = ml.PredictMeasurement(model, measurement)
		if err != nil {
			monitoring.PredictionFailureCount.Inc()
			h.Logger.Errorw("prediction failed", "request_id", GetRequestID(r.Context()), "error", err)
			respondDetail(w, http.StatusInternalServerError, "Prediction failed")
			return
		}
		h.Cache.Add(measurement, prediction)
	}
	monitoring.PredictionCount.WithLabelValues(prediction.Species).Inc()

	if h.Store != nil {
		rec := db.NewPredictionRecord(GetRequestID(r.Context()), measurement, prediction)
		if err := h.Store.LogPrediction(r.Context(), rec); err != nil {
			h.Logger.Warnw("failed to log prediction", "request_id", rec.RequestID, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, prediction)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
