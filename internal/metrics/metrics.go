// Package metrics holds the prometheus metrics of the interview service.
// All methods are safe on a nil *Metrics so components can run unobserved.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interviewpilot"

type Metrics struct {
	// Session lifecycle
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsCancelled *prometheus.CounterVec
	AnswersScored     prometheus.Counter
	OperationErrors   *prometheus.CounterVec

	// Result cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Collaborator adapters
	UpstreamAttempts *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
}

// New registers the metrics with reg. Pass prometheus.NewRegistry() in tests
// to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Interview sessions that received their questions",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Interview sessions completed by answering every question",
		}),
		SessionsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_cancelled_total",
			Help:      "Interview sessions cancelled, by reason",
		}, []string{"reason"}), // reason: "user", "expired" or "generation_failed"
		AnswersScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_scored_total",
			Help:      "Answers recorded together with their feedback",
		}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed engine operations by operation and error code",
		}, []string{"operation", "code"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Result cache hits by artifact kind",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Result cache misses by artifact kind",
		}, []string{"kind"}),
		UpstreamAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Collaborator call attempts by capability and outcome",
		}, []string{"capability", "outcome"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_attempt_duration_seconds",
			Help:      "Collaborator call attempt latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"capability"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

func (m *Metrics) SessionCompleted() {
	if m == nil {
		return
	}
	m.SessionsCompleted.Inc()
}

func (m *Metrics) SessionCancelled(reason string) {
	if m == nil {
		return
	}
	m.SessionsCancelled.WithLabelValues(reason).Inc()
}

func (m *Metrics) AnswerScored() {
	if m == nil {
		return
	}
	m.AnswersScored.Inc()
}

func (m *Metrics) OperationFailed(operation, code string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(operation, code).Inc()
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit(kind string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(kind).Inc()
}

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss(kind string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(kind).Inc()
}

// UpstreamAttempt implements adapter.Observer.
func (m *Metrics) UpstreamAttempt(capability, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamAttempts.WithLabelValues(capability, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(capability).Observe(elapsed.Seconds())
}
