package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the transfer engine. All recording
// methods are safe on a nil *Metrics.
type Metrics struct {
	TransfersCreated prometheus.Counter
	Transitions      *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec
	ClaimConflicts   prometheus.Counter
	RetriesExhausted *prometheus.CounterVec
	PayloadsReceived prometheus.Counter
	DecodeFailures   prometheus.Counter
	TickDuration     prometheus.Histogram
	TickProcessed    *prometheus.CounterVec
	SettledDeleted   prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransfersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_transfers_created_total",
			Help: "Total number of transfers created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hie_transfer_transitions_total",
			Help: "Committed transfer status changes, labeled by from and to status",
		}, []string{"from", "to"}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hie_webhook_dispatches_total",
			Help: "Webhook attempts, labeled by event kind and outcome",
		}, []string{"kind", "outcome"}),
		DispatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hie_webhook_dispatch_latency_seconds",
			Help:    "Latency of webhook attempts in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		ClaimConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_transfer_claim_conflicts_total",
			Help: "Claims or result writes lost to a concurrent worker",
		}),
		RetriesExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hie_transfer_retries_exhausted_total",
			Help: "Transfers that settled FAILED with no retry budget, labeled by cause",
		}, []string{"cause"}),
		PayloadsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_transfer_payloads_received_total",
			Help: "Holder payload submissions accepted",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_transfer_decode_failures_total",
			Help: "Payloads that could not be decoded or decrypted",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hie_scheduler_tick_duration_seconds",
			Help:    "Duration of scheduler ticks in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		TickProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hie_scheduler_processed_total",
			Help: "Transfers visited by the scheduler, labeled by pass",
		}, []string{"pass"}),
		SettledDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_transfer_settled_deleted_total",
			Help: "Settled transfers removed by retention cleanup",
		}),
	}
}

func (m *Metrics) IncCreated() {
	if m == nil {
		return
	}
	m.TransfersCreated.Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveDispatch(kind string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Dispatches.WithLabelValues(kind, outcome).Inc()
	m.DispatchLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) IncClaimConflict() {
	if m == nil {
		return
	}
	m.ClaimConflicts.Inc()
}

func (m *Metrics) IncExhausted(cause string) {
	if m == nil {
		return
	}
	m.RetriesExhausted.WithLabelValues(cause).Inc()
}

func (m *Metrics) IncPayloadReceived() {
	if m == nil {
		return
	}
	m.PayloadsReceived.Inc()
}

func (m *Metrics) IncDecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailures.Inc()
}

func (m *Metrics) ObserveTick(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AddProcessed(pass string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.TickProcessed.WithLabelValues(pass).Add(float64(n))
}

func (m *Metrics) AddSettledDeleted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SettledDeleted.Add(float64(n))
}
