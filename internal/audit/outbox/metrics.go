package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox worker.
type Metrics struct {
	PendingDepth    prometheus.Gauge
	PublishedTotal  prometheus.Counter
	PublishFailures prometheus.Counter
	PublishDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
	Purged          prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PendingDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "hie_audit_outbox_pending",
			Help: "Audit outbox entries not yet relayed to Kafka",
		}),
		PublishedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_audit_outbox_published_total",
			Help: "Audit outbox entries relayed to Kafka",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_audit_outbox_publish_failures_total",
			Help: "Failed outbox fetches and relays",
		}),
		PublishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hie_audit_outbox_publish_duration_seconds",
			Help:    "Time to relay one outbox entry",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hie_audit_outbox_batch_size",
			Help:    "Entries fetched per poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		Purged: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_audit_outbox_purged_total",
			Help: "Relayed entries removed by retention",
		}),
	}
}

func (m *Metrics) SetPendingDepth(n int64) {
	if m != nil {
		m.PendingDepth.Set(float64(n))
	}
}

func (m *Metrics) IncPublished() {
	if m != nil {
		m.PublishedTotal.Inc()
	}
}

func (m *Metrics) IncPublishFailures() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) ObservePublishDuration(seconds float64) {
	if m != nil {
		m.PublishDuration.Observe(seconds)
	}
}

func (m *Metrics) ObserveBatchSize(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}

func (m *Metrics) AddPurged(n int64) {
	if m != nil {
		m.Purged.Add(float64(n))
	}
}
