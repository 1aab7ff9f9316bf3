// Package monitoring 定义服务的 Prometheus 指标
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"irisclassifier/version"
)

const (
	namespace        = "iris"
	serverSubsystem  = "server"
	trainerSubsystem = "trainer"
)

// Variables declared for metrics.
var (
	RequestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "http_requests_total",
		Help:      "Counter of HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "http_request_duration_seconds",
		Help:      "Histogram of HTTP request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"method", "route"})

	PredictionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "predictions_total",
		Help:      "Counter of predictions by species.",
	}, []string{"species"})

	PredictionFailureCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "prediction_failure_total",
		Help:      "Counter of predictions that failed inside the model.",
	})

	PredictionCacheHitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "prediction_cache_hits_total",
		Help:      "Counter of predictions served from the cache.",
	})

	ValidationFailureCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "validation_failure_total",
		Help:      "Counter of prediction requests rejected by validation.",
	})

	ModelReadyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "model_ready",
		Help:      "1 when a model is loaded, 0 otherwise.",
	})

	ModelArtifactChangeCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: serverSubsystem,
		Name:      "model_artifact_changes_total",
		Help:      "Counter of on-disk artifact changes seen since startup.",
	})

	TrainingAccuracyGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: trainerSubsystem,
		Name:      "accuracy",
		Help:      "Held-out accuracy of the latest recorded training run.",
	}, []string{"model_type"})

	VersionGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "version",
		Help:      "Version info of the service.",
	}, []string{"version"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	VersionGauge.WithLabelValues(version.Version).Set(1)
	return promhttp.Handler()
}
