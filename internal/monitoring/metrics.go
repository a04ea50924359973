package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Probe metrics
	ProbeRequests *prometheus.CounterVec
	ProbeDuration *prometheus.HistogramVec

	// Registry metrics
	RegistryServers prometheus.Gauge
	RegistryEvents  *prometheus.CounterVec

	// Surface metrics
	SurfaceTransitions *prometheus.CounterVec
	SurfaceRetries     prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskshell_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Probe metrics
		ProbeRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_probe_requests_total",
				Help: "Total number of remote probe requests",
			},
			[]string{"endpoint", "outcome"},
		),
		ProbeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskshell_probe_duration_seconds",
				Help:    "Remote probe round-trip duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),

		// Registry metrics
		RegistryServers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskshell_registry_servers",
				Help: "Number of servers in the registry",
			},
		),
		RegistryEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_registry_events_total",
				Help: "Total number of registry events emitted",
			},
			[]string{"type"},
		),

		// Surface metrics
		SurfaceTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_surface_transitions_total",
				Help: "Total number of surface load-state transitions",
			},
			[]string{"status"},
		),
		SurfaceRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "deskshell_surface_retries_total",
				Help: "Total number of scheduled surface load retries",
			},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskshell_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskshell_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProbe records a remote probe round-trip
func (m *Metrics) RecordProbe(endpoint, outcome string, duration time.Duration) {
	m.ProbeRequests.WithLabelValues(endpoint, outcome).Inc()
	m.ProbeDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRegistryEvent records a registry event emission
func (m *Metrics) RecordRegistryEvent(eventType string) {
	m.RegistryEvents.WithLabelValues(eventType).Inc()
}

// SetRegistryServers sets the number of servers in the registry
func (m *Metrics) SetRegistryServers(count int) {
	m.RegistryServers.Set(float64(count))
}

// RecordSurfaceTransition records a surface load-state transition
func (m *Metrics) RecordSurfaceTransition(status string) {
	m.SurfaceTransitions.WithLabelValues(status).Inc()
}

// IncSurfaceRetries increments the scheduled retry counter
func (m *Metrics) IncSurfaceRetries() {
	m.SurfaceRetries.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
