package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus instruments for the game server. Each
// instance carries its own registry so tests can build one without
// clashing with the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  prometheus.Counter
	GamesStarted      prometheus.Counter
	GamesFinished     prometheus.Counter
	HandlingSeconds   prometheus.Histogram
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound client messages",
		}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Total number of games that reached two players",
		}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Total number of games that ended in a win or draw",
		}),
		HandlingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_handling_seconds",
			Help:      "Inbound message handling latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.ActiveConnections,
		m.ActiveRooms,
		m.MessagesReceived,
		m.GamesStarted,
		m.GamesFinished,
		m.HandlingSeconds,
	)

	return m
}

// Handler exposes the registry in prometheus text format.
func (that *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(that.registry, promhttp.HandlerOpts{})
}
