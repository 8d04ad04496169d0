package api

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// DetectionsResponse is the body of GET /api/v1/detections.
type DetectionsResponse struct {
	Count   int                `json:"count"`
	Results []detection.Result `json:"results"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	limit := big.NewInt(int64(len(charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b[i] = charset[i%len(charset)]
			continue
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}

// HandleError logs err and writes an ErrorResponse.
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	s.log.Warn("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", c.Path()),
		logger.String("ip", c.RealIP()),
		logger.String("message", message),
		logger.Int("code", code),
		logger.Error(err))
	return c.JSON(code, resp)
}

// detectionQuery holds the parsed query parameters of a detections request.
type detectionQuery struct {
	from, to      *time.Time
	minConfidence *float32
	labels        []detection.EventType
}

func (s *Server) parseDetectionQuery(c echo.Context) (detectionQuery, string, error) {
	var q detectionQuery

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.from}, {"to", &q.to}} {
		raw := c.QueryParam(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return q, "Invalid " + bound.name + " timestamp, expected RFC3339", err
		}
		*bound.dst = &t
	}

	if raw := c.QueryParam("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
			if err == nil {
				err = fmt.Errorf("min_confidence %v out of range", v)
			}
			return q, "min_confidence must be a number within [0,1]", err
		}
		threshold := float32(v)
		q.minConfidence = &threshold
	} else if filter, _ := strconv.ParseBool(c.QueryParam("filter")); filter {
		threshold := s.config.Threshold
		q.minConfidence = &threshold
	}

	if raw := c.QueryParam("label"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			label, err := detection.ParseEventType(strings.TrimSpace(name))
			if err != nil {
				return q, "Unknown label " + strconv.Quote(name), err
			}
			q.labels = append(q.labels, label)
		}
	}

	return q, "", nil
}

// getDetections handles GET /api/v1/detections.
func (s *Server) getDetections(c echo.Context) error {
	q, message, err := s.parseDetectionQuery(c)
	if err != nil {
		return s.HandleError(c, err, message, http.StatusBadRequest)
	}

	key := c.Request().URL.RawQuery
	if s.responses != nil {
		if cached, ok := s.responses.Get(key); ok {
			return c.JSON(http.StatusOK, cached)
		}
	}

	results := s.detector.GetResults(q.from, q.to)
	if q.minConfidence != nil {
		results = detection.FilterByConfidence(results, *q.minConfidence)
	}
	if len(q.labels) > 0 {
		results = detection.FilterByLabel(results, q.labels...)
	}

	resp := DetectionsResponse{Count: len(results), Results: results}
	if s.responses != nil {
		s.responses.Set(key, resp, cache.DefaultExpiration)
	}
	return c.JSON(http.StatusOK, resp)
}

// getLatestDetection handles GET /api/v1/detections/latest.
func (s *Server) getLatestDetection(c echo.Context) error {
	latest, ok := s.detector.Latest()
	if !ok {
		return s.HandleError(c, nil, "No detections available", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, latest)
}

// clearDetections handles DELETE /api/v1/detections.
func (s *Server) clearDetections(c echo.Context) error {
	s.detector.ClearResults()
	if s.responses != nil {
		s.responses.Flush()
	}
	s.log.Info("Detection results cleared", logger.String("ip", c.RealIP()))
	return c.NoContent(http.StatusNoContent)
}
