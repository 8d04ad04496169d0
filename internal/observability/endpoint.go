package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves /metrics on a dedicated listener.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates an endpoint for listenAddress.
func NewEndpoint(listenAddress string, metrics *Metrics) *Endpoint {
	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
	}
}

// Run serves until ctx is cancelled, then shuts the server down.
func (e *Endpoint) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	e.server = &http.Server{
		Addr:              e.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("Telemetry endpoint starting", logger.String("address", e.listenAddress))
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	GetLogger().Info("Stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("Failed to shutdown telemetry server", logger.Error(err))
		return err
	}
	return <-errCh
}
