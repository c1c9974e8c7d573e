package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "buzzer"

// Buzz outcomes.
const (
	BuzzAccepted = "accepted"
	BuzzRejected = "rejected"
)

// Collector owns the service's Prometheus metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	activeRooms       prometheus.Gauge
	connectedClients  prometheus.Gauge
	roomsTotal        *prometheus.CounterVec
	buzzes            *prometheus.CounterVec
	roundsResolved    prometheus.Counter
	resolutionLatency prometheus.Histogram
	broadcastDrops    prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms.",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of open websocket connections.",
		}),
		roomsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_lifecycle_total",
			Help:      "Rooms created and dissolved.",
		}, []string{"event"}),
		buzzes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buzzes_total",
			Help:      "Buzzes received, by outcome.",
		}, []string{"outcome"}),
		roundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Buzz windows that produced a winner.",
		}),
		resolutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_latency_seconds",
			Help:      "Time from the first buzz of a round to its resolution.",
			Buckets:   []float64{0.5, 0.9, 1, 1.05, 1.1, 1.25, 1.5, 2, 5},
		}),
		broadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Messages dropped because a client's send buffer was full.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.activeRooms,
		c.connectedClients,
		c.roomsTotal,
		c.buzzes,
		c.roundsResolved,
		c.resolutionLatency,
		c.broadcastDrops,
		c.httpDuration,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RoomCreated() {
	c.activeRooms.Inc()
	c.roomsTotal.WithLabelValues("created").Inc()
}

func (c *Collector) RoomDissolved() {
	c.activeRooms.Dec()
	c.roomsTotal.WithLabelValues("dissolved").Inc()
}

func (c *Collector) ClientConnected()    { c.connectedClients.Inc() }
func (c *Collector) ClientDisconnected() { c.connectedClients.Dec() }
func (c *Collector) BroadcastDropped()   { c.broadcastDrops.Inc() }

func (c *Collector) Buzz(outcome string) {
	c.buzzes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RoundResolved(sinceOpen time.Duration) {
	c.roundsResolved.Inc()
	c.resolutionLatency.Observe(sinceOpen.Seconds())
}

func (c *Collector) ObserveHTTP(method, route, status string, d time.Duration) {
	c.httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
