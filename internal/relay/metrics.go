package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are registered on a per-server registry so several servers can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Clients prometheus.Gauge
	// Frames relayed to a peer
	FramesRelayed *prometheus.CounterVec
	// Frames discarded for a slow peer
	FramesDropped *prometheus.CounterVec
	SlowClients   prometheus.Counter
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_clients",
			Help: "Currently connected relay clients",
		}),
		FramesRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_frames_relayed_total",
				Help: "Frames delivered to a peer on the same channel",
			},
			[]string{"channel"},
		),
		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_frames_dropped_total",
				Help: "Frames dropped because a peer queue was full",
			},
			[]string{"channel"},
		),
		SlowClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_slow_clients_total",
			Help: "Clients disconnected for falling behind",
		}),
	}
	m.Registry.MustRegister(m.Clients, m.FramesRelayed, m.FramesDropped, m.SlowClients)
	m.Registry.MustRegister(prometheus.NewGoCollector())
	return m
}

// forget drops the per-channel series once a channel has no members left.
func (m *Metrics) forget(channel string) {
	m.FramesRelayed.DeleteLabelValues(channel)
	m.FramesDropped.DeleteLabelValues(channel)
}
