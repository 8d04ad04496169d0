package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains all Prometheus metrics related to MQTT publishing.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesDelivered prometheus.Counter
	MessagesSkipped   *prometheus.CounterVec
	Errors            prometheus.Counter
	ReconnectAttempts prometheus.Counter
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram
}

// NewMQTTMetrics creates and registers the MQTT metrics.
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homeaudio_mqtt_connection_status",
			Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeaudio_mqtt_messages_delivered_total",
			Help: "Total number of detection messages delivered to the broker",
		}),
		MessagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homeaudio_mqtt_messages_skipped_total",
			Help: "Detection messages not published, partitioned by reason",
		}, []string{"reason"}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeaudio_mqtt_errors_total",
			Help: "Total number of MQTT errors encountered",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "homeaudio_mqtt_reconnect_attempts_total",
			Help: "Total number of MQTT reconnection attempts",
		}),
		MessageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "homeaudio_mqtt_message_size_bytes",
			Help:    "Size of MQTT messages in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "homeaudio_mqtt_publish_latency_seconds",
			Help:    "Latency of MQTT publish operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// UpdateConnectionStatus records the broker connection state.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
	} else {
		m.ConnectionStatus.Set(0)
	}
}

// RecordPublish records a completed publish attempt.
func (m *MQTTMetrics) RecordPublish(sizeBytes int, latency time.Duration, err error) {
	if err != nil {
		m.Errors.Inc()
		return
	}
	m.MessagesDelivered.Inc()
	m.MessageSize.Observe(float64(sizeBytes))
	m.PublishLatency.Observe(latency.Seconds())
}

// RecordSkipped counts a message that was not published.
func (m *MQTTMetrics) RecordSkipped(reason string) {
	m.MessagesSkipped.WithLabelValues(reason).Inc()
}

// IncrementReconnectAttempts counts a reconnection attempt.
func (m *MQTTMetrics) IncrementReconnectAttempts() {
	m.ReconnectAttempts.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.MessagesDelivered
	m.MessagesSkipped.Collect(ch)
	ch <- m.Errors
	ch <- m.ReconnectAttempts
	ch <- m.MessageSize
	ch <- m.PublishLatency
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ConnectionStatus.Desc()
	ch <- m.MessagesDelivered.Desc()
	m.MessagesSkipped.Describe(ch)
	ch <- m.Errors.Desc()
	ch <- m.ReconnectAttempts.Desc()
	ch <- m.MessageSize.Desc()
	ch <- m.PublishLatency.Desc()
}
