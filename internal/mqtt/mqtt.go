// Package mqtt publishes detection results to an MQTT broker.
package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// Client defines the MQTT operations the publisher needs.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. It returns an error if the broker did
	// not acknowledge the message in time.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // base topic, results go to <Topic>/<label>
	Retain   bool   // true to retain messages at the broker

	ReconnectCooldown time.Duration // minimum time between manual Connect calls
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// metricsRecorder is the subset of MQTT metrics used by this package.
type metricsRecorder interface {
	UpdateConnectionStatus(connected bool)
	RecordPublish(sizeBytes int, latency time.Duration, err error)
	RecordSkipped(reason string)
	IncrementReconnectAttempts()
}

type nopMetrics struct{}

func (nopMetrics) UpdateConnectionStatus(bool) {}
func (nopMetrics) RecordPublish(int, time.Duration, error) {}
func (nopMetrics) RecordSkipped(string) {}
func (nopMetrics) IncrementReconnectAttempts() {}

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the mqtt package logger
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("mqtt")
	})
	return serviceLogger
}
