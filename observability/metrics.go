// Package observability exposes the portal counters and gauges in the
// Prometheus format.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"client-portal/cache"
)

const namespace = "portal"

// Metrics owns a dedicated registry so tests can build as many as they need.
type Metrics struct {
	registry    *prometheus.Registry
	cacheEvents *prometheus.CounterVec
	requests    *prometheus.CounterVec
	websockets  prometheus.Gauge
	channels    prometheus.Gauge
	processCPU  prometheus.Gauge
	processRSS  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Cache operations by outcome: hit, miss, expire, write or failure.",
		}, []string{"event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Handled gRPC calls by method and status code.",
		}, []string{"method", "code"}),
		websockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "websocket_connections",
			Help:      "Open websocket subscriptions.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "channels",
			Help:      "Channels having at least one subscriber.",
		}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the portal process, sampled by the health worker.",
		}),
		processRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "resident_bytes",
			Help:      "Resident memory of the portal process, sampled by the health worker.",
		}),
	}
	m.registry.MustRegister(
		m.cacheEvents, m.requests, m.websockets, m.channels, m.processCPU, m.processRSS,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Cache returns the cache.Metrics backed by the events counter.
func (m *Metrics) Cache() cache.Metrics {
	return cacheMetrics{events: m.cacheEvents}
}

func (m *Metrics) ObserveRequest(method, code string) {
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) WebsocketOpened() { m.websockets.Inc() }

func (m *Metrics) WebsocketClosed() { m.websockets.Dec() }

func (m *Metrics) SetChannels(n int) { m.channels.Set(float64(n)) }

func (m *Metrics) ObserveProcess(cpuPercent float64, rssBytes uint64) {
	m.processCPU.Set(cpuPercent)
	m.processRSS.Set(float64(rssBytes))
}

type cacheMetrics struct {
	events *prometheus.CounterVec
}

func (c cacheMetrics) Hit()     { c.events.WithLabelValues("hit").Inc() }
func (c cacheMetrics) Miss()    { c.events.WithLabelValues("miss").Inc() }
func (c cacheMetrics) Expire()  { c.events.WithLabelValues("expire").Inc() }
func (c cacheMetrics) Write()   { c.events.WithLabelValues("write").Inc() }
func (c cacheMetrics) Failure() { c.events.WithLabelValues("failure").Inc() }
