package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation outcomes.
const (
	OutcomeMoved   = "moved"
	OutcomeNothing = "nothing"
	OutcomeLocked  = "locked"
	OutcomeFailed  = "failed"
)

// InterMetrics records inter-server protocol activity.
type InterMetrics struct {
	requests  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	reconcile *prometheus.CounterVec
	moved     prometheus.Counter
	links     prometheus.Gauge
	sessions  prometheus.Gauge
}

// NewInterMetrics registers the inter-server metrics on reg. A nil reg
// yields a recorder whose methods do nothing.
func NewInterMetrics(reg prometheus.Registerer) *InterMetrics {
	if reg == nil {
		return &InterMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inter_requests_total",
		Help: "Inter-server requests dispatched, by opcode.",
	}, []string{"opcode"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inter_rejected_frames_total",
		Help: "Inter-server frames rejected, by reason.",
	}, []string{"reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inter_handler_duration_seconds",
		Help:    "Inter-server handler latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"opcode"})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bound_item_retrievals_total",
		Help: "Bound-item retrievals, by outcome.",
	}, []string{"outcome"})
	moved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bound_items_moved_total",
		Help: "Guild-bound items moved from inventories into guild storage.",
	})
	links := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inter_links",
		Help: "Connected world processes.",
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "online_sessions",
		Help: "Accounts online at the character server.",
	})
	reg.MustRegister(requests, rejected, duration, reconcile, moved, links, sessions)
	return &InterMetrics{
		requests:  requests,
		rejected:  rejected,
		duration:  duration,
		reconcile: reconcile,
		moved:     moved,
		links:     links,
		sessions:  sessions,
	}
}

// ObserveRequest counts one dispatched request and its handler latency.
func (m *InterMetrics) ObserveRequest(opcode string, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	op := normalizeLabel(opcode)
	m.requests.WithLabelValues(op).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// IncRejected counts one rejected frame.
func (m *InterMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveReconcile counts one retrieval outcome and the items it moved.
func (m *InterMetrics) ObserveReconcile(outcome string, moved int) {
	if m == nil || m.reconcile == nil {
		return
	}
	m.reconcile.WithLabelValues(normalizeLabel(outcome)).Inc()
	if moved > 0 {
		m.moved.Add(float64(moved))
	}
}

// SetLinks sets the connected world-process gauge.
func (m *InterMetrics) SetLinks(n int) {
	if m == nil || m.links == nil {
		return
	}
	m.links.Set(float64(n))
}

// SetSessions sets the online-session gauge.
func (m *InterMetrics) SetSessions(n int) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
