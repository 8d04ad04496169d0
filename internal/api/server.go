package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	mw "github.com/deeplyinc/homeaudio-go/internal/api/middleware"
	"github.com/deeplyinc/homeaudio-go/internal/detector"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
	"github.com/deeplyinc/homeaudio-go/internal/observability"
)

// Server exposes a detector's results over HTTP.
type Server struct {
	echo     *echo.Echo
	config   *Config
	detector detector.Service
	metrics  *observability.Metrics
	log      logger.Logger

	responses *cache.Cache // nil when caching is disabled
	startTime time.Time
	now       func() time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics serves the registry's metrics on /metrics when the config asks for it.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger replaces the package logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a new HTTP server for det.
func New(config *Config, det detector.Service, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if det == nil {
		return nil, fmt.Errorf("detector is required")
	}

	s := &Server{
		config:    config,
		detector:  det,
		log:       GetLogger(),
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.CacheTTL > 0 {
		s.responses = cache.New(config.CacheTTL, time.Minute)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, mw.SkipPaths("/metrics", "/api/v1/health")))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)
	v1.GET("/detections", s.getDetections)
	v1.GET("/detections/latest", s.getLatestDetection)
	v1.DELETE("/detections", s.clearDetections)

	if s.config.ServeMetrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP server", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// healthCheck reports detector status. A detector without a model is
// reported as degraded but still answers 200 so results remain queryable.
func (s *Server) healthCheck(c echo.Context) error {
	status := s.detector.Status()
	uptime := time.Since(s.startTime)

	health := "healthy"
	if !status.ModelLoaded {
		health = "degraded"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":         health,
		"node":           s.config.NodeName,
		"model_loaded":   status.ModelLoaded,
		"state":          status.State.String(),
		"results":        status.Results,
		"window_fill":    status.WindowFill,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      s.now().Format(time.RFC3339),
	})
}
