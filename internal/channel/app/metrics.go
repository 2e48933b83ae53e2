package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics engine counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	feedEvents          *prometheus.CounterVec
	anomalies           prometheus.Counter
	optimisticReconcile prometheus.Counter
	hydrationFailures   prometheus.Counter
	activeSubscriptions prometheus.Gauge
	writeRejected       *prometheus.CounterVec
}

// NewMetrics register engine metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		feedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_feed_events_total",
			Help: "Change-feed events applied, by operation.",
		}, []string{"operation"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_anomalies_total",
			Help: "Update/delete events referencing a message the store does not hold.",
		}),
		optimisticReconcile: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_optimistic_reconciled_total",
			Help: "Optimistic messages replaced by their authoritative row.",
		}),
		hydrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_hydration_failures_total",
			Help: "User profile fetches that failed.",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_active_subscriptions",
			Help: "Channels with a live change-feed subscription.",
		}),
		writeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_write_rejected_total",
			Help: "User actions rolled back after a failed persistence write.",
		}, []string{"action"}),
	}
	reg.MustRegister(m.feedEvents, m.anomalies, m.optimisticReconcile, m.hydrationFailures, m.activeSubscriptions, m.writeRejected)
	return m
}

func (m *Metrics) feedEvent(op string) {
	if m != nil {
		m.feedEvents.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) anomaly() {
	if m != nil {
		m.anomalies.Inc()
	}
}

func (m *Metrics) reconciled() {
	if m != nil {
		m.optimisticReconcile.Inc()
	}
}

func (m *Metrics) hydrationFailed() {
	if m != nil {
		m.hydrationFailures.Inc()
	}
}

func (m *Metrics) subscriptions(n int) {
	if m != nil {
		m.activeSubscriptions.Set(float64(n))
	}
}

func (m *Metrics) rejected(action string) {
	if m != nil {
		m.writeRejected.WithLabelValues(action).Inc()
	}
}
