// Package metrics exposes the server's Prometheus instrumentation: tick
// cadence, connected clients, packets by type and direction, and snapshot
// emission. Grounded on
// sambhavthakkar-QuantaraX/backend/internal/observability/metrics.go
// (promauto registration, CounterVec-per-dimension shape), adapted from
// transfer/QUIC metrics to the tick-loop/packet domain.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds every Prometheus metric the authoritative server emits.
type Server struct {
	TickDuration      prometheus.Histogram
	TicksTotal        prometheus.Counter
	ConnectedClients  prometheus.Gauge
	PacketsTotal      *prometheus.CounterVec
	PacketBytesTotal  *prometheus.CounterVec
	SnapshotsSent     prometheus.Counter
	ChunksSent        prometheus.Counter
	ChunkFragmentsSent prometheus.Counter
	ReconciliationsTotal *prometheus.CounterVec
}

// NewServer creates and registers the server-side metric set.
func NewServer() *Server {
	return &Server{
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vnet_server_tick_duration_seconds",
			Help:    "Wall-clock time spent processing one simulation tick",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.032, 0.064},
		}),
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_server_ticks_total",
			Help: "Total simulation ticks processed",
		}),
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vnet_server_connected_clients",
			Help: "Currently connected clients",
		}),
		PacketsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vnet_server_packets_total",
			Help: "Packets processed, by type and direction",
		}, []string{"type", "direction"}),
		PacketBytesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vnet_server_packet_bytes_total",
			Help: "Packet bytes processed, by direction",
		}, []string{"direction"}),
		SnapshotsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_server_snapshots_sent_total",
			Help: "Entity snapshot broadcasts sent",
		}),
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_server_chunks_sent_total",
			Help: "Chunk payloads streamed to clients",
		}),
		ChunkFragmentsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_server_chunk_fragments_sent_total",
			Help: "Chunk fragments streamed to clients",
		}),
		ReconciliationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vnet_server_reconciliations_total",
			Help: "Server-observed reconciliation events, by kind",
		}, []string{"kind"}),
	}
}

// RecordTick observes one tick's processing duration.
func (m *Server) RecordTick(seconds float64) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(seconds)
}

// RecordPacketIn increments inbound packet counters for typeName.
func (m *Server) RecordPacketIn(typeName string, bytes int) {
	m.PacketsTotal.WithLabelValues(typeName, "in").Inc()
	m.PacketBytesTotal.WithLabelValues("in").Add(float64(bytes))
}

// RecordPacketOut increments outbound packet counters for typeName.
func (m *Server) RecordPacketOut(typeName string, bytes int) {
	m.PacketsTotal.WithLabelValues(typeName, "out").Inc()
	m.PacketBytesTotal.WithLabelValues("out").Add(float64(bytes))
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Server) Handler() http.Handler {
	return promhttp.Handler()
}

// Client holds the metric set the predicting client emits.
type Client struct {
	PingMillis         prometheus.Gauge
	ReconciliationSnap prometheus.Counter
	ReconciliationSoft prometheus.Counter
	FragmentsExpired   prometheus.Counter
}

// NewClient creates and registers the client-side metric set.
func NewClient() *Client {
	return &Client{
		PingMillis: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vnet_client_ping_ms",
			Help: "Most recent round-trip time to the server, in milliseconds",
		}),
		ReconciliationSnap: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_client_reconciliation_snap_total",
			Help: "Hard-snap reconciliations applied",
		}),
		ReconciliationSoft: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_client_reconciliation_soft_total",
			Help: "Soft-correction reconciliations applied",
		}),
		FragmentsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vnet_client_fragments_expired_total",
			Help: "Chunk fragment reassembly buffers dropped after expiring",
		}),
	}
}
