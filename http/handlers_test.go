package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irisclassifier/db"
	"irisclassifier/ml"
	"irisclassifier/monitoring"
)

var (
	modelOnce sync.Once
	model     *ml.RandomForest
	modelErr  error
)

func trainedModel(t *testing.T) *ml.RandomForest {
	t.Helper()
	modelOnce.Do(func() {
		samples, err := ml.LoadIrisDataset()
		if err != nil {
			modelErr = err
			return
		}
		x, y := ml.BuildTrainingSet(samples)
		params := ml.DefaultForestParams()
		params.NEstimators = 25
		model = ml.NewRandomForest(params)
		modelErr = model.Train(x, y)
	})
	require.NoError(t, modelErr)
	return model
}

func readyHandle(t *testing.T) *ml.ModelHandle {
	return ml.NewReadyHandle(ml.ModelTypeRandomForest, "models/iris_classifier.json", trainedModel(t))
}

func absentHandle() *ml.ModelHandle {
	return ml.NewAbsentHandle(ml.ModelTypeRandomForest, "models/iris_classifier.json", ml.ErrModelNotFound)
}

type fakeStore struct {
	mu      sync.Mutex
	records []db.PredictionRecord
	err     error
}

func (f *fakeStore) LogPrediction(ctx context.Context, rec db.PredictionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

// countingClassifier always answers setosa and counts model invocations.
type countingClassifier struct {
	predictCalls atomic.Int64
	probaCalls   atomic.Int64
}

func (c *countingClassifier) Predict(features []float64) (int, error) {
	c.predictCalls.Add(1)
	return 0, nil
}

func (c *countingClassifier) PredictProba(features []float64) ([]float64, error) {
	c.probaCalls.Add(1)
	return []float64{1, 0, 0}, nil
}

func newTestHandler(deps Deps) http.Handler {
	return NewHandler(DefaultServerConfig(), deps)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	rr := do(t, newTestHandler(Deps{Handle: readyHandle(t)}), http.MethodGet, "/health", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestHealthWithoutModel(t *testing.T) {
	rr := do(t, newTestHandler(Deps{Handle: absentHandle()}), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ModelUnavailableMessage, body["detail"])
	assert.Contains(t, body["detail"], "train")
	assert.Contains(t, body["detail"], "restart")
}

func TestInfoHandler(t *testing.T) {
	for _, handle := range []*ml.ModelHandle{readyHandle(t), absentHandle()} {
		rr := do(t, newTestHandler(Deps{Handle: handle}), http.MethodGet, "/", "")
		require.Equal(t, http.StatusOK, rr.Code, handle.Status().String())

		var info InfoResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
		assert.Equal(t, "Iris Classifier", info.Name)
		assert.Equal(t, "0.1.0", info.Version)
		assert.Equal(t, "RandomForestClassifier", info.Model)
		assert.Equal(t, []string{"setosa", "versicolor", "virginica"}, info.Classes)
	}
}

func TestInfoReportsDecisionTree(t *testing.T) {
	handle := ml.NewAbsentHandle(ml.ModelTypeDecisionTree, "models/tree.json", ml.ErrModelNotFound)
	rr := do(t, newTestHandler(Deps{Handle: handle}), http.MethodGet, "/", "")

	var info InfoResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, "DecisionTreeClassifier", info.Model)
}

func TestPredictSpecies(t *testing.T) {
	h := newTestHandler(Deps{Handle: readyHandle(t)})

	tests := []struct {
		name    string
		body    string
		species string
		classID int
	}{
		{"setosa", `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`, "setosa", 0},
		{"versicolor", `{"sepal_length":6.0,"sepal_width":2.9,"petal_length":4.5,"petal_width":1.5}`, "versicolor", 1},
		{"virginica", `{"sepal_length":6.7,"sepal_width":3.0,"petal_length":5.8,"petal_width":2.3}`, "virginica", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/predict", tt.body)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var p ml.Prediction
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
			assert.Equal(t, tt.species, p.Species)
			assert.Equal(t, tt.classID, p.ClassID)
		})
	}
}

func TestPredictResponseSchema(t *testing.T) {
	h := newTestHandler(Deps{Handle: readyHandle(t)})
	rr := do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.8,"sepal_width":2.7,"petal_length":5.1,"petal_width":1.9}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	assert.Len(t, raw, 3)
	for _, key := range []string{"species", "class_id", "probabilities"} {
		assert.Contains(t, raw, key)
	}

	var p ml.Prediction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, ml.ClassNames()[p.ClassID], p.Species)
	require.Len(t, p.Probabilities, 3)

	sum := 0.0
	for _, name := range ml.ClassNames() {
		v, ok := p.Probabilities[name]
		require.True(t, ok, name)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		assert.InDelta(t, math.Round(v*10000), v*10000, 1e-6, "probability %v not rounded", v)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestPredictValidation(t *testing.T) {
	h := newTestHandler(Deps{Handle: readyHandle(t)})

	tests := []struct {
		name  string
		body  string
		locs  []string
		types []string
	}{
		{
			name:  "missing field",
			body:  `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4}`,
			locs:  []string{"petal_width"},
			types: []string{"missing"},
		},
		{
			name:  "negative",
			body:  `{"sepal_length":-5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`,
			locs:  []string{"sepal_length"},
			types: []string{"greater_than"},
		},
		{
			name:  "zero",
			body:  `{"sepal_length":5.1,"sepal_width":0,"petal_length":1.4,"petal_width":0.2}`,
			locs:  []string{"sepal_width"},
			types: []string{"greater_than"},
		},
		{
			name:  "non numeric",
			body:  `{"sepal_length":"abc","sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`,
			locs:  []string{"sepal_length"},
			types: []string{"float_parsing"},
		},
		{
			name:  "null",
			body:  `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":null,"petal_width":0.2}`,
			locs:  []string{"petal_length"},
			types: []string{"float_type"},
		},
		{
			name:  "every field reported",
			body:  `{"sepal_length":-1,"petal_length":true}`,
			locs:  []string{"sepal_length", "sepal_width", "petal_length", "petal_width"},
			types: []string{"greater_than", "missing", "float_parsing", "missing"},
		},
		{
			name:  "empty object",
			body:  `{}`,
			locs:  []string{"sepal_length", "sepal_width", "petal_length", "petal_width"},
			types: []string{"missing", "missing", "missing", "missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/predict", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

			var body struct {
				Detail []FieldError `json:"detail"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Len(t, body.Detail, len(tt.locs))
			for i, fe := range body.Detail {
				assert.Equal(t, []string{"body", tt.locs[i]}, fe.Loc)
				assert.Equal(t, tt.types[i], fe.Type)
				assert.NotEmpty(t, fe.Msg)
			}
		})
	}
}

func TestPredictMalformedBody(t *testing.T) {
	h := newTestHandler(Deps{Handle: readyHandle(t)})

	for _, body := range []string{`{"sepal_length":`, `[1,2,3,4]`, `null`, `"text"`} {
		rr := do(t, h, http.MethodPost, "/predict", body)
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)

		var resp struct {
			Detail []FieldError `json:"detail"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Detail, 1)
		assert.Equal(t, []string{"body"}, resp.Detail[0].Loc)
	}
}

func TestPredictWithoutModel(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(Deps{Handle: absentHandle(), Store: store})

	rr := do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "make train")
	assert.Empty(t, store.records)

	// Invalid input is rejected before the model is consulted.
	rr = do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestPredictUsesCache(t *testing.T) {
	cache, err := ml.NewPredictionCache(8)
	require.NoError(t, err)
	h := newTestHandler(Deps{Handle: readyHandle(t), Cache: cache})

	body := `{"sepal_length":5.0,"sepal_width":3.4,"petal_length":1.5,"petal_width":0.2}`
	before := testutil.ToFloat64(monitoring.PredictionCacheHitCount)

	first := do(t, h, http.MethodPost, "/predict", body)
	second := do(t, h, http.MethodPost, "/predict", body)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(monitoring.PredictionCacheHitCount))
}

func TestPredictLogsToStore(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(Deps{Handle: readyHandle(t), Store: store})

	req := httptest.NewRequest(http.MethodPost, "/predict",
		strings.NewReader(`{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`))
	req.Header.Set(RequestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "req-42", rec.RequestID)
	assert.Equal(t, "setosa", rec.Species)
	assert.Equal(t, 5.1, rec.Measurement.SepalLength)
	assert.Greater(t, rec.Confidence, 0.5)
}

func TestPredictStoreFailureDoesNotFailRequest(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	h := newTestHandler(Deps{Handle: readyHandle(t), Store: store})

	rr := do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, store.records, 1)
}

func TestPredictBodyTooLarge(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 16
	h := NewHandler(cfg, Deps{Handle: readyHandle(t)})

	rr := do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRouting(t *testing.T) {
	h := newTestHandler(Deps{Handle: readyHandle(t)})

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/missing", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/predict", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/health", "{}").Code)

	rr := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "iris_server_model_ready 1")
}

func TestModelReadyGauge(t *testing.T) {
	newTestHandler(Deps{Handle: absentHandle()})
	assert.Equal(t, 0.0, testutil.ToFloat64(monitoring.ModelReadyGauge))

	newTestHandler(Deps{Handle: readyHandle(t)})
	assert.Equal(t, 1.0, testutil.ToFloat64(monitoring.ModelReadyGauge))
}

func TestPredictRejectsInvalidInputBeforeModel(t *testing.T) {
	model := &countingClassifier{}
	handle := ml.NewReadyHandle(ml.ModelTypeRandomForest, "models/iris_classifier.json", model)
	h := newTestHandler(Deps{Handle: handle})

	for _, body := range []string{
		`{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4}`,
		`{"sepal_length":-1.0,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`,
	} {
		rr := do(t, h, http.MethodPost, "/predict", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)
	}
	assert.Zero(t, model.predictCalls.Load())
	assert.Zero(t, model.probaCalls.Load())

	rr := do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(1), model.predictCalls.Load())
	assert.Equal(t, int64(1), model.probaCalls.Load())
}

func TestHandlerWithoutHandle(t *testing.T) {
	h := newTestHandler(Deps{})

	rr := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var info InfoResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, "RandomForestClassifier", info.Model)

	rr = do(t, h, http.MethodPost, "/predict", `{"sepal_length":5.1,"sepal_width":3.5,"petal_length":1.4,"petal_width":0.2}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
