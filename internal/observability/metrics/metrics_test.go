package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

func TestDetectorMetricsRecording(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewDetectorMetrics(registry)
	require.NoError(t, err)

	m.RecordDetection("COUGH")
	m.RecordDetection("COUGH")
	m.RecordDetection("OTHERS")
	m.RecordInference(20*time.Millisecond, nil)
	m.RecordInference(0, errors.Newf("boom").Category(errors.CategoryInference).Build())
	m.RecordInvalidOutput()
	m.SetModelLoaded(true)
	m.SetBufferFill(0.5)
	m.RecordDroppedChunks(3)
	m.RecordDroppedChunks(0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.DetectionCounter.WithLabelValues("COUGH")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InferenceTotal.WithLabelValues("success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InferenceTotal.WithLabelValues("error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InferenceTotal.WithLabelValues("invalid")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InferenceErrors.WithLabelValues("inference")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoadedGauge), 1e-9)
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.BufferFillGauge), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.DroppedChunks), 1e-9)

	expected := `
# HELP homeaudio_invalid_outputs_total Model outputs dropped because they held fewer scores than event types
# TYPE homeaudio_invalid_outputs_total counter
homeaudio_invalid_outputs_total 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "homeaudio_invalid_outputs_total"))

	families, err := registry.Gather()
	require.NoError(t, err)
	var histogram *dto.Histogram
	for _, f := range families {
		if f.GetName() == "homeaudio_inference_duration_seconds" {
			histogram = f.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(1), histogram.GetSampleCount())
}

func TestDetectorMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewDetectorMetrics(registry)
	require.NoError(t, err)
	_, err = NewDetectorMetrics(registry)
	require.Error(t, err)
}

func TestCategorizeError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", categorizeError(nil))
	assert.Equal(t, "unknown", categorizeError(errors.NewStd("plain")))
	assert.Equal(t, "feature-extraction",
		categorizeError(errors.Newf("x").Category(errors.CategoryFeature).Build()))
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.RecordPublish(128, 5*time.Millisecond, nil)
	m.RecordPublish(0, 0, errors.NewStd("timeout"))
	m.RecordSkipped("cooldown")

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesSkipped.WithLabelValues("cooldown")), 1e-9)
}

func TestNopRecorder(t *testing.T) {
	t.Parallel()

	var r DetectorRecorder = NopRecorder{}
	r.RecordDetection("COUGH")
	r.RecordInference(time.Second, nil)
	r.SetModelLoaded(false)
}
