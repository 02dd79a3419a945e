package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry           *prometheus.Registry
	messagesTotal      *prometheus.CounterVec
	decodeErrorsTotal  *prometheus.CounterVec
	reconnectsTotal    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	devicesDiscovered  prometheus.Gauge
	connectionDuration prometheus.Histogram
}

// New creates a fresh Metrics registry with all monitor metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdcpmon",
		Name:      "messages_total",
		Help:      "Count of inbound status-channel messages per device",
	}, []string{"device"})

	decodeErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdcpmon",
		Name:      "decode_errors_total",
		Help:      "Count of dropped malformed messages per device",
	}, []string{"device"})

	reconnectsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdcpmon",
		Name:      "reconnects_total",
		Help:      "Count of status-channel reconnect attempts per device",
	}, []string{"device"})

	notificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sdcpmon",
		Name:      "notifications_total",
		Help:      "Count of emitted notifications by severity",
	}, []string{"severity"})

	devicesDiscovered := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sdcpmon",
		Name:      "devices_discovered",
		Help:      "Number of printers found by the startup discovery probe",
	})

	connectionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sdcpmon",
		Name:      "connection_duration_seconds",
		Help:      "Lifetime of status-channel connections from connect to loss",
		Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 21600, 86400},
	})

	registry.MustRegister(
		messagesTotal,
		decodeErrorsTotal,
		reconnectsTotal,
		notificationsTotal,
		devicesDiscovered,
		connectionDuration,
	)

	return &Metrics{
		registry:           registry,
		messagesTotal:      messagesTotal,
		decodeErrorsTotal:  decodeErrorsTotal,
		reconnectsTotal:    reconnectsTotal,
		notificationsTotal: notificationsTotal,
		devicesDiscovered:  devicesDiscovered,
		connectionDuration: connectionDuration,
	}
}

// ObserveMessage records one inbound status-channel message.
func (m *Metrics) ObserveMessage(deviceID string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(deviceID).Inc()
}

// ObserveDecodeError records one dropped malformed message.
func (m *Metrics) ObserveDecodeError(deviceID string) {
	if m == nil {
		return
	}
	m.decodeErrorsTotal.WithLabelValues(deviceID).Inc()
}

// ObserveReconnect records one reconnect attempt.
func (m *Metrics) ObserveReconnect(deviceID string) {
	if m == nil {
		return
	}
	m.reconnectsTotal.WithLabelValues(deviceID).Inc()
}

// ObserveNotification records one emitted notification.
func (m *Metrics) ObserveNotification(severity string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(severity).Inc()
}

// SetDevicesDiscovered records the size of the discovery result.
func (m *Metrics) SetDevicesDiscovered(n int) {
	if m == nil {
		return
	}
	m.devicesDiscovered.Set(float64(n))
}

// ObserveConnectionDuration records the lifetime of one connection.
func (m *Metrics) ObserveConnectionDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.connectionDuration.Observe(d.Seconds())
}

// Handler returns an http.Handler that serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
