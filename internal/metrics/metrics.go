// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Prediction metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symptomcheck_predictions_total",
			Help: "Predictions served, by outcome",
		},
		[]string{"outcome"}, // "ok", "not_ready", "error"
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "symptomcheck_prediction_duration_seconds",
			Help:    "Time spent scoring one symptom set",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	PredictionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "symptomcheck_prediction_cache_hits_total",
			Help: "Predictions answered from the per-generation cache",
		},
	)

	// Model lifecycle metrics
	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symptomcheck_training_runs_total",
			Help: "Training runs, by result",
		},
		[]string{"result"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "symptomcheck_training_duration_seconds",
			Help:    "Wall time of a full fit, evaluate and persist cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	ModelAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "symptomcheck_model_accuracy",
			Help: "Held-out accuracy of the model currently serving",
		},
	)

	FallbackTrainingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "symptomcheck_fallback_trainings_total",
			Help: "Loads that found no persisted model and trained a fresh one",
		},
	)

	// History metrics
	HistoryWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "symptomcheck_history_write_errors_total",
			Help: "Prediction history writes that failed or were rejected by the breaker",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "symptomcheck_api_requests_total",
			Help: "HTTP requests, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "symptomcheck_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records one completed HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTraining records one training run.
func RecordTraining(d time.Duration, accuracy float64, err error) {
	TrainingDuration.Observe(d.Seconds())
	if err != nil {
		TrainingRunsTotal.WithLabelValues("error").Inc()
		return
	}
	TrainingRunsTotal.WithLabelValues("ok").Inc()
	ModelAccuracy.Set(accuracy)
}
