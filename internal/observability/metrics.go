package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	apiRequestsTotal         *prometheus.CounterVec
	apiLatencySeconds        *prometheus.HistogramVec
	apiErrorsTotal           *prometheus.CounterVec
	observationsTotal        *prometheus.CounterVec
	activeSessionsGauge      prometheus.Gauge
	mutationConflictsTotal   prometheus.Counter
	sampleInvariantViolation prometheus.Counter
	realtimeConnections      prometheus.Gauge
	realtimeEventsTotal      *prometheus.CounterVec
	uploadLatencySeconds     prometheus.Histogram
	uploadRejectedTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eyeai_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eyeai_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eyeai_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		observationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eyeai_observations_total",
			Help: "Total number of gaze observations recorded, by direction.",
		}, []string{"direction"})

		activeSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eyeai_active_sessions",
			Help: "Number of classroom sessions currently live on this node.",
		})

		mutationConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eyeai_mutation_conflicts_total",
			Help: "Total number of optimistic-lock conflicts during session saves.",
		})

		sampleInvariantViolation = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eyeai_sample_invariant_violations_total",
			Help: "Population snapshots whose category counts did not sum to the roster size.",
		})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eyeai_realtime_connections",
			Help: "Websocket observers currently connected to this node.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eyeai_realtime_events_total",
			Help: "Realtime events published, by event kind.",
		}, []string{"event"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eyeai_upload_latency_seconds",
			Help:    "Latency distribution for file uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eyeai_upload_rejected_total",
			Help: "Uploads rejected during validation, by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			observationsTotal,
			activeSessionsGauge,
			mutationConflictsTotal,
			sampleInvariantViolation,
			realtimeConnections,
			realtimeEventsTotal,
			uploadLatencySeconds,
			uploadRejectedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Observations exposes the per-direction observation counter.
func Observations() *prometheus.CounterVec {
	RegisterMetrics()
	return observationsTotal
}

// ActiveSessions exposes the live session gauge.
func ActiveSessions() prometheus.Gauge {
	RegisterMetrics()
	return activeSessionsGauge
}

// MutationConflicts exposes the optimistic-lock conflict counter.
func MutationConflicts() prometheus.Counter {
	RegisterMetrics()
	return mutationConflictsTotal
}

// SampleInvariantViolations exposes the snapshot invariant defect counter.
func SampleInvariantViolations() prometheus.Counter {
	RegisterMetrics()
	return sampleInvariantViolation
}

// RealtimeConnections exposes the websocket connection gauge.
func RealtimeConnections() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

// RealtimeEvents exposes the per-event publish counter.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// UploadLatency exposes the upload latency histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// UploadRejected exposes the upload rejection counter.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}
