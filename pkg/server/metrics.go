package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// Metrics holds Prometheus metric descriptors for the server. Each Metrics
// owns its registry so several servers can run in one process.
type Metrics struct {
	conns     *ConnManager
	startTime time.Time
	registry  *prometheus.Registry

	playersConnected *prometheus.GaugeVec
	connectionsTotal *prometheus.CounterVec
	negotiations     *prometheus.CounterVec
	packetsSent      *prometheus.CounterVec
	bytesSentTotal   prometheus.Counter
	bytesRecvTotal   prometheus.Counter
	messagePackets   prometheus.Histogram
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the server.
func NewMetrics(conns *ConnManager, startTime time.Time) *Metrics {
	m := &Metrics{
		conns:     conns,
		startTime: startTime,
		registry:  prometheus.NewRegistry(),
		playersConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gemscraft_players_connected",
			Help: "Number of currently connected players by transport.",
		}, []string{"transport"}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemscraft_connections_total",
			Help: "Total connections since server start.",
		}, []string{"transport"}),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemscraft_cpe_negotiations_total",
			Help: "Extension negotiations by result (ok, failed, vanilla).",
		}, []string{"result"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemscraft_packets_sent_total",
			Help: "Packets sent to clients by opcode.",
		}, []string{"opcode"}),
		bytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemscraft_bytes_sent_total",
			Help: "Total bytes sent to clients.",
		}),
		bytesRecvTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemscraft_bytes_received_total",
			Help: "Total bytes received from clients.",
		}),
		messagePackets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemscraft_message_packets",
			Help:    "Message packets produced per wrapped chat message.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemscraft_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemscraft_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemscraft_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.playersConnected,
		m.connectionsTotal,
		m.negotiations,
		m.packetsSent,
		m.bytesSentTotal,
		m.bytesRecvTotal,
		m.messagePackets,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// The record methods below accept a nil receiver so sessions built without
// a server (tests, the wrap command) need no metrics.

func (m *Metrics) connected(t TransportType) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) negotiated(result string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(result).Inc()
}

func (m *Metrics) packetSent(op protocol.OpCode, n int) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(op.String()).Inc()
	m.bytesSentTotal.Add(float64(n))
}

func (m *Metrics) bytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesRecvTotal.Add(float64(n))
}

func (m *Metrics) messageWrapped(packets int) {
	if m == nil {
		return
	}
	m.messagePackets.Observe(float64(packets))
}

// Update refreshes all gauge metrics from current server state.
func (m *Metrics) Update() {
	for t, n := range m.conns.CountByTransport() {
		m.playersConnected.WithLabelValues(t.String()).Set(float64(n))
	}

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Registry exposes the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}
