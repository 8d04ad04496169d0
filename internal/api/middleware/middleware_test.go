package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipPaths(t *testing.T) {
	t.Parallel()

	e := echo.New()
	skip := SkipPaths("/metrics", "/api/v1/health")

	for path, want := range map[string]bool{
		"/metrics":              true,
		"/api/v1/health":        true,
		"/api/v1/detections":    false,
		"/api/v1/health/detail": false,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, http.NoBody), httptest.NewRecorder())
		c.SetPath(path)
		assert.Equal(t, want, skip(c), path)
	}
}

func TestSecureHeaders(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewSecureHeaders(DefaultSecurityConfig()))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "DENY", rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Equal(t, "default-src 'none'", rec.Header().Get(echo.HeaderContentSecurityPolicy))
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewBodyLimit("1K"))
	e.DELETE("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodDelete, "/", http.NoBody)
	req.ContentLength = 4096
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
