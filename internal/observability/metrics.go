package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the planner's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionsCreated   prometheus.Counter
	sessionsExpired   prometheus.Counter
	sessionsFinished  *prometheus.CounterVec
	actionsRecorded   *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	modelCalls        *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec
	rankedCandidates  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. Passing a
// fresh prometheus.NewRegistry keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of planning sessions created",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions removed by expiry",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Sessions reaching a terminal status",
		}, []string{"status"}),
		actionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_recorded_total",
			Help:      "Actions appended to session logs",
		}, []string{"type"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Planning decisions by outcome",
		}, []string{"outcome"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model calls by tier and status",
		}, []string{"tier", "status"}),
		modelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Language model call latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"tier"}),
		rankedCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranked_candidates",
			Help:      "Number of candidates produced per ranking",
			Buckets:   prometheus.LinearBuckets(0, 10, 9),
		}),
	}

	reg.MustRegister(
		m.sessionsCreated,
		m.sessionsExpired,
		m.sessionsFinished,
		m.actionsRecorded,
		m.decisions,
		m.modelCalls,
		m.modelCallDuration,
		m.rankedCandidates,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *Metrics) SessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.Add(float64(n))
}

func (m *Metrics) SessionFinished(status string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ActionRecorded(kind string) {
	if m == nil {
		return
	}
	m.actionsRecorded.WithLabelValues(kind).Inc()
}

// Decision counts one planning outcome, e.g. "action", "complete", "fallback".
func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ModelCall(tier string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.modelCalls.WithLabelValues(tier, status).Inc()
	m.modelCallDuration.WithLabelValues(tier).Observe(d.Seconds())
}

func (m *Metrics) CandidatesRanked(n int) {
	if m == nil {
		return
	}
	m.rankedCandidates.Observe(float64(n))
}

// Handler serves the registry the metrics were registered with, falling back
// to the default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
