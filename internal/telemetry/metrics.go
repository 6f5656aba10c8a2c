package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы шага для метрик.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_runs_total",
		Help: "Total workflow runs finished, by final status",
	}, []string{"status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stepflow_run_duration_seconds",
		Help:    "Workflow run duration from start to terminal status",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"status"})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_steps_total",
		Help: "Total steps executed, by step type and outcome",
	}, []string{"type", "outcome"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stepflow_step_duration_seconds",
		Help:    "Step execution duration",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"type"})

	// APIRequestsTotal — счётчик HTTP запросов API.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepflow_api_http_requests_total",
		Help: "Total HTTP requests handled by stepflow-api",
	}, []string{"method", "status"})
)

// RecordRun фиксирует завершение run.
func RecordRun(status string, d time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordStep фиксирует выполнение шага.
func RecordStep(stepType, outcome string, d time.Duration) {
	stepsTotal.WithLabelValues(stepType, outcome).Inc()
	stepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}
