// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument. Each instance registers against its own
// registry so tests do not collide.
type Metrics struct {
	registry *prometheus.Registry

	Messages       *prometheus.CounterVec
	Deltas         *prometheus.CounterVec
	ApplyDuration  prometheus.Histogram
	GraphOps       *prometheus.CounterVec
	Reconnects     prometheus.Counter
	PollRequests   *prometheus.CounterVec
	Nodes          prometheus.Gauge
	Services       prometheus.Gauge
	Edges          prometheus.Gauge
	Users          prometheus.Gauge
	Flashing       prometheus.Gauge
	ConnectionInfo prometheus.Gauge
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmesh_stream_messages_total",
			Help: "Inbound stream messages by classification",
		}, []string{"kind"}),
		Deltas: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmesh_deltas_total",
			Help: "Topology deltas by outcome",
		}, []string{"result"}),
		ApplyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthmesh_delta_apply_duration_seconds",
			Help:    "Time spent applying one delta end to end",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		GraphOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmesh_graph_operations_total",
			Help: "Visual operations sent to renderers",
		}, []string{"op"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "healthmesh_reconnects_total",
			Help: "Reconnect attempts to the upstream stream",
		}),
		PollRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healthmesh_poll_requests_total",
			Help: "Out-of-band poll requests by outcome",
		}, []string{"result"}),
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthmesh_index_nodes",
			Help: "Instances currently in the index",
		}),
		Services: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthmesh_index_services",
			Help: "Service aggregates currently in the index",
		}),
		Edges: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthmesh_graph_edges",
			Help: "Edges currently drawn",
		}),
		Users: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthmesh_upstream_users",
			Help: "User count reported by the upstream",
		}),
		Flashing: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthmesh_flash_active",
			Help: "Entities currently highlighted",
		}),
		ConnectionInfo: f.NewGauge(prometheus.GaugeOpts{
			Name: "healthmesh_connection_state",
			Help: "Upstream connection state (0 disconnected, 1 connecting, 2 connected, 3 disconnecting)",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
