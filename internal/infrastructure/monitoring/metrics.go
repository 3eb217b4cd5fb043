package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the host.
//
// Every method is safe to call on a nil *Metrics so domain packages can be
// constructed without a collector in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	Installs        *prometheus.CounterVec
	InstallDuration prometheus.Histogram
	Removals        *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	SyncRuns        *prometheus.CounterVec

	// Bridge metrics
	BridgeMessages *prometheus.CounterVec
	TokenCache     *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON progress API.
type Snapshot struct {
	TotalRequests int64
	TotalErrors   int64
	Installs      int64
	InstallErrors int64
	Dropped       int64
}

// NewMetrics creates a collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "superapp_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Installs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_installs_total",
				Help: "Micro-app installs by result",
			},
			[]string{"result"},
		),
		InstallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "superapp_install_duration_seconds",
				Help:    "Duration of micro-app installs",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		Removals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_removals_total",
				Help: "Micro-app removals by result",
			},
			[]string{"result"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "superapp_install_queue_depth",
				Help: "Pending jobs in the installation queue",
			},
		),
		SyncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_sync_runs_total",
				Help: "Catalog sync runs by result",
			},
			[]string{"result"},
		),

		BridgeMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_bridge_messages_total",
				Help: "Inbound bridge messages by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
		TokenCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_token_cache_total",
				Help: "Token cache lookups by result",
			},
			[]string{"result"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "superapp_ws_connections",
				Help: "Number of active bridge WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superapp_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction"},
		),
	}
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordInstall records the outcome of one install.
func (m *Metrics) RecordInstall(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.Installs.WithLabelValues(result(err)).Inc()
	m.InstallDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Installs++
	if err != nil {
		m.snapshot.InstallErrors++
	}
	m.mu.Unlock()
}

// RecordRemoval records the outcome of one removal.
func (m *Metrics) RecordRemoval(err error) {
	if m == nil {
		return
	}
	m.Removals.WithLabelValues(result(err)).Inc()
}

// SetQueueDepth sets the number of pending queue jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordSync records a finished, skipped or declined sync run.
func (m *Metrics) RecordSync(outcome string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(outcome).Inc()
}

// RecordBridgeMessage records one dispatched bridge message.
func (m *Metrics) RecordBridgeMessage(topic, outcome string) {
	if m == nil {
		return
	}
	if topic == "" {
		topic = "unknown"
	}
	m.BridgeMessages.WithLabelValues(topic, outcome).Inc()
	if outcome != "handled" {
		m.mu.Lock()
		m.snapshot.Dropped++
		m.mu.Unlock()
	}
}

// RecordTokenCache records a cache hit or miss.
func (m *Metrics) RecordTokenCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.TokenCache.WithLabelValues("hit").Inc()
		return
	}
	m.TokenCache.WithLabelValues("miss").Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns a copy of the running totals.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
