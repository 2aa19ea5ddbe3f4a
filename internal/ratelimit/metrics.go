package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected    prometheus.Counter
	StoreErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_ratelimit_rejected_total",
			Help: "Requests rejected with 429",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_ratelimit_store_errors_total",
			Help: "Limiter lookups that failed and were let through",
		}),
	}
}

func (m *Metrics) incRejected() {
	if m != nil {
		m.Rejected.Inc()
	}
}

func (m *Metrics) incStoreError() {
	if m != nil {
		m.StoreErrors.Inc()
	}
}
