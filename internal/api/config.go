// Package api serves the detection query API over HTTP.
package api

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("api")
	})
	return serviceLogger
}

// Default constants for the HTTP server.
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCacheTTL        = 500 * time.Millisecond
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port to bind

	// Security settings
	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	BodyLimit string // Maximum request body size (e.g., "1K")

	// Threshold is the confidence used when a query sets filter=true.
	Threshold float32

	// CacheTTL caches detection query responses per query string. Zero disables caching.
	CacheTTL time.Duration

	// ServeMetrics exposes /metrics on this server.
	ServeMetrics bool

	// NodeName is reported by the health endpoint.
	NodeName string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "1K",
		Threshold:       conf.DefaultThreshold,
		CacheTTL:        DefaultCacheTTL,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	cfg.Threshold = float32(settings.Detector.Threshold)
	cfg.ServeMetrics = settings.Telemetry.Enabled && settings.Telemetry.Listen == ""
	cfg.NodeName = settings.Main.Name
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0,1], got %v", c.Threshold)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}
	return nil
}
