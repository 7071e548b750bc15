package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	gradesTotal            *prometheus.CounterVec
	gradingDurationSeconds *prometheus.HistogramVec
	gradeCacheTotal        *prometheus.CounterVec
	feedClientsActive      prometheus.Gauge
	feedEventsTotal        *prometheus.CounterVec
	hintsTotal             *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_requests_total",
			Help: "Total number of challenge API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "challenge_latency_seconds",
			Help:    "Latency distribution for challenge API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_errors_total",
			Help: "Total number of error responses returned by challenge endpoints.",
		}, []string{"method", "route", "status"})

		gradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_grades_total",
			Help: "Graded submissions by exercise and outcome.",
		}, []string{"exercise", "outcome"})

		gradingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "challenge_grading_duration_seconds",
			Help:    "Time spent executing and checking a submission.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"engine"})

		gradeCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_grade_cache_total",
			Help: "Grade cache lookups by result.",
		}, []string{"result"})

		feedClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "challenge_feed_clients_active",
			Help: "Number of connected attempt feed clients.",
		})

		feedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_feed_events_total",
			Help: "Attempt events delivered to the live feed by origin.",
		}, []string{"origin"})

		hintsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_hints_total",
			Help: "Coaching hints requested by provider and status.",
		}, []string{"provider", "status"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			gradesTotal,
			gradingDurationSeconds,
			gradeCacheTotal,
			feedClientsActive,
			feedEventsTotal,
			hintsTotal,
		)
	})
}

// HTTPRequests exposes the counter for challenge requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for challenge requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for challenge error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Grades counts graded submissions.
func Grades() *prometheus.CounterVec {
	RegisterMetrics()
	return gradesTotal
}

// GradingDuration observes grading time per sandbox engine.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDurationSeconds
}

// GradeCache counts grade cache hits and misses.
func GradeCache() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeCacheTotal
}

// FeedClientsActive tracks connected feed subscribers.
func FeedClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return feedClientsActive
}

// FeedEvents counts attempt events delivered to subscribers.
func FeedEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return feedEventsTotal
}

// Hints counts coaching hint requests.
func Hints() *prometheus.CounterVec {
	RegisterMetrics()
	return hintsTotal
}
