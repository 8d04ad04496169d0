// Package middleware provides HTTP middleware for the query API.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
// Successful requests are logged at debug level, failures at warn.
func NewRequestLoggerWithSkipper(log logger.Logger, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skipper,
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			if v.Status >= 400 || v.Error != nil {
				log.Warn("request", fields...)
			} else {
				log.Debug("request", fields...)
			}
			return nil
		},
	})
}

// SkipPaths returns a skipper that ignores the given request paths.
func SkipPaths(paths ...string) middleware.Skipper {
	return func(c echo.Context) bool {
		for _, p := range paths {
			if c.Path() == p {
				return true
			}
		}
		return false
	}
}
