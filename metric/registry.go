// Package metric hosts two complementary observability surfaces: a
// Prometheus registry exporting cumulative runtime counters/gauges at
// /metrics/prom, and a periodic Snapshot engine pushing richer
// per-node/per-channel delta readings to SSE observers at /metrics.
package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry wraps a dedicated Prometheus registry (never the global
// default one, so tests can create as many independent registries as
// they like) with the runtime-level gauges and counters the metrics
// Engine fills from each sample of the scheduler's node and channel
// counters.
type Registry struct {
	prom *prometheus.Registry

	mu   sync.Mutex
	seen map[string]prometheus.Collector

	NodesRunning   prometheus.Gauge
	MessagesTotal  *prometheus.CounterVec
	BytesTotal     *prometheus.CounterVec
	LagTotal       *prometheus.CounterVec
	BufferDepth    *prometheus.GaugeVec
	NodeErrorsTotal *prometheus.CounterVec
}

// NewRegistry creates a Registry with the runtime's core metrics and the
// standard Go process/runtime collectors already registered.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()

	r := &Registry{
		prom: prom,
		seen: make(map[string]prometheus.Collector),
		NodesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowruntime",
			Subsystem: "graph",
			Name:      "nodes_running",
			Help:      "Number of nodes currently in the running lifecycle state.",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowruntime",
			Subsystem: "channel",
			Name:      "messages_total",
			Help:      "Cumulative messages published on a channel.",
		}, []string{"channel"}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowruntime",
			Subsystem: "channel",
			Name:      "bytes_total",
			Help:      "Cumulative bytes published on a channel.",
		}, []string{"channel"}),
		LagTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowruntime",
			Subsystem: "channel",
			Name:      "lag_total",
			Help:      "Cumulative dropped-oldest events for a subscriber.",
		}, []string{"channel", "subscriber"}),
		BufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowruntime",
			Subsystem: "channel",
			Name:      "buffer_depth",
			Help:      "Current buffer depth for a subscriber.",
		}, []string{"channel", "subscriber"}),
		NodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowruntime",
			Subsystem: "node",
			Name:      "errors_total",
			Help:      "Cumulative step/run errors for a node.",
		}, []string{"node"}),
	}

	prom.MustRegister(
		r.NodesRunning, r.MessagesTotal, r.BytesTotal, r.LagTotal, r.BufferDepth, r.NodeErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Prometheus returns the underlying registry, for wiring promhttp.HandlerFor.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// RegisterCollector adds an additional collector (e.g. a domain
// component's own metric) under a unique key, rejecting duplicates the
// way the rest of the stack's registries do.
func (r *Registry) RegisterCollector(key string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.seen[key]; exists {
		return fmt.Errorf("collector %q already registered", key)
	}
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("register collector %q: %w", key, err)
	}
	r.seen[key] = c
	return nil
}
