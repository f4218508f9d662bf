// Package metrics exposes Prometheus collectors for the label service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for detector call metrics.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	pipelineRunsTotal          *prometheus.CounterVec
	detectorCallsTotal         *prometheus.CounterVec
	printJobsTotal             *prometheus.CounterVec
	encodedLabelBytes          *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeld_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by result.",
			},
			[]string{"result"},
		)

		detectorCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeld_detector_calls_total",
				Help: "Total number of vision detector calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		printJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeld_print_jobs_total",
				Help: "Total number of print submissions, labeled by backend and status.",
			},
			[]string{"backend", "status"},
		)

		encodedLabelBytes = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labeld_encoded_label_bytes",
				Help:    "Histogram of wire command sizes, labeled by graphic encoding.",
				Buckets: []float64{1024, 4096, 16384, 65536, 262144, 1048576},
			},
			[]string{"encoding"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the pipeline run counter.
func ObserveRun(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pipelineRunsTotal.WithLabelValues(result).Inc()
}

// ObserveDetectorCall increments the detector call counter.
func ObserveDetectorCall(provider, outcome string) {
	detectorCallsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObservePrintJob increments the print submission counter.
func ObservePrintJob(backend string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	printJobsTotal.WithLabelValues(backend, status).Inc()
}

// ObserveEncodedLabel records the size of one finished wire command.
func ObserveEncodedLabel(encoding string, size int) {
	encodedLabelBytes.WithLabelValues(encoding).Observe(float64(size))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
