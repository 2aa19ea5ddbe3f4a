package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds consent ledger collectors. Methods on nil are no-ops.
type Metrics struct {
	initiated     *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	notifyUnknown prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		initiated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hie_consents_initiated_total",
			Help: "Consent requests created, by origin (api or transfer)",
		}, []string{"origin"}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hie_consent_status_changes_total",
			Help: "Consent status changes by target status",
		}, []string{"status"}),
		notifyUnknown: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_consent_notify_unknown_total",
			Help: "Notifications naming an unknown consent id",
		}),
	}
}

func (m *Metrics) IncInitiated(origin string) {
	if m == nil {
		return
	}
	m.initiated.WithLabelValues(origin).Inc()
}

func (m *Metrics) IncStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncNotifyUnknown() {
	if m == nil {
		return
	}
	m.notifyUnknown.Inc()
}
