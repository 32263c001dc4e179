package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pathImmediate = "immediate"
	pathReplay    = "replay"
)

type Metrics struct {
	MessagesStored    prometheus.Counter
	MessagesDelivered *prometheus.CounterVec
	OnlineIdentities  prometheus.Gauge
	Errors            *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg. A nil reg builds
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_stored_total",
			Help: "Messages persisted by the relay.",
		}),
		MessagesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Messages pushed to a live connection and marked delivered.",
		}, []string{"path"}),
		OnlineIdentities: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_online_identities",
			Help: "Identities currently bound to a connection.",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Rejected or failed relay operations by kind.",
		}, []string{"kind"}),
	}
}
