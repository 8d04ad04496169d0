// Package observability wires the Prometheus registry and its HTTP endpoint.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deeplyinc/homeaudio-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Detector *metrics.DetectorMetrics
	MQTT     *metrics.MQTTMetrics
}

// NewMetrics creates a registry with process and Go runtime collectors and
// all application metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	detectorMetrics, err := metrics.NewDetectorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Detector: detectorMetrics,
		MQTT:     mqttMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLogger{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with the provided mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}

// promErrorLogger routes promhttp errors to the module logger.
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...any) {
	GetLogger().Error(fmt.Sprint(v...))
}
