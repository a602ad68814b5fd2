// Package metrics exposes Prometheus instruments for the command server.
// All methods are nil-safe so wiring metrics stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	commandsTotal   *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec
	activeConns     prometheus.Gauge
	broadcastsTotal prometheus.Counter
	readErrors      prometheus.Counter
	writeErrors     prometheus.Counter
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer
// for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deskpilot",
			Name:      "commands_total",
			Help:      "Commands dispatched, by command name and response status.",
		}, []string{"command", "status"}),
		dispatchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deskpilot",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent executing one command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		activeConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "deskpilot",
			Name:      "active_connections",
			Help:      "Connected WebSocket clients.",
		}),
		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deskpilot",
			Name:      "broadcasts_total",
			Help:      "Messages broadcast to all clients.",
		}),
		readErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deskpilot",
			Name:      "read_errors_total",
			Help:      "WebSocket read failures.",
		}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deskpilot",
			Name:      "write_errors_total",
			Help:      "WebSocket write failures.",
		}),
	}
}

func (m *Metrics) ObserveCommand(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, status).Inc()
	m.dispatchSeconds.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

func (m *Metrics) BroadcastSent() {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
}

func (m *Metrics) ReadError() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

func (m *Metrics) WriteError() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}
