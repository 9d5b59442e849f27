package framed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "framed").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsConfigOption configures the Prometheus metrics.
type MetricsConfigOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsConfigOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "framed",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics counts framing and transport activity. All methods are safe on a
// nil *Metrics, which records nothing.
type Metrics struct {
	framesSent        prometheus.Counter
	framesReceived    prometheus.Counter
	bytesSentTotal    prometheus.Counter
	bytesRecvTotal    prometheus.Counter
	bytesDiscardTotal prometheus.Counter
	sendFailures      prometheus.Counter
	connections       prometheus.Gauge
}

// NewMetrics creates and registers the metrics. It panics if they are
// already registered with the chosen registry.
func NewMetrics(opts ...MetricsConfigOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Metrics{
		framesSent:        counter("frames_sent_total", "Total number of frames queued for sending"),
		framesReceived:    counter("frames_received_total", "Total number of complete frames decoded"),
		bytesSentTotal:    counter("bytes_sent_total", "Total number of bytes handed to the transport"),
		bytesRecvTotal:    counter("bytes_received_total", "Total number of bytes received from the transport"),
		bytesDiscardTotal: counter("bytes_discarded_total", "Total number of bytes dropped while resynchronizing on false starts"),
		sendFailures:      counter("send_failures_total", "Total number of drains that moved no bytes"),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_active",
			Help:        "Number of connections currently tracked by a hub",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) frameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) frameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) bytesSent(n int) {
	if m != nil && n > 0 {
		m.bytesSentTotal.Add(float64(n))
	}
}

func (m *Metrics) bytesReceived(n int) {
	if m != nil && n > 0 {
		m.bytesRecvTotal.Add(float64(n))
	}
}

func (m *Metrics) bytesDiscarded(n int) {
	if m != nil && n > 0 {
		m.bytesDiscardTotal.Add(float64(n))
	}
}

func (m *Metrics) sendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}
