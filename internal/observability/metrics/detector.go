package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// DetectorMetrics contains all Prometheus metrics related to event detection.
type DetectorMetrics struct {
	DetectionCounter   *prometheus.CounterVec
	InferenceDuration  prometheus.Histogram
	FeatureDuration    prometheus.Histogram
	InferenceTotal     *prometheus.CounterVec
	InferenceErrors    *prometheus.CounterVec
	InvalidOutputs     prometheus.Counter
	ModelLoadedGauge   prometheus.Gauge
	BufferFillGauge    prometheus.Gauge
	DroppedChunks      prometheus.Counter
	ResultsStoredGauge prometheus.Gauge
}

// NewDetectorMetrics creates and registers the detector metrics.
func NewDetectorMetrics(registry prometheus.Registerer) (*DetectorMetrics, error) {
	m := &DetectorMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detector metrics: %w", err)
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() {
	m.DetectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeaudio_detections_total",
			Help: "Total number of detection results partitioned by event label.",
		},
		[]string{"label"},
	)

	m.InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "homeaudio_inference_duration_seconds",
		Help:    "Time taken by one model forward pass",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	})

	m.FeatureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "homeaudio_feature_duration_seconds",
		Help:    "Time taken to compute the mel spectrogram of one window",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
	})

	m.InferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeaudio_inferences_total",
			Help: "Total number of inference passes partitioned by outcome",
		},
		[]string{"status"},
	)

	m.InferenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homeaudio_inference_errors_total",
			Help: "Total number of failed inference passes partitioned by error category",
		},
		[]string{"error_type"},
	)

	m.InvalidOutputs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "homeaudio_invalid_outputs_total",
		Help: "Model outputs dropped because they held fewer scores than event types",
	})

	m.ModelLoadedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "homeaudio_model_loaded",
		Help: "Whether the event model is loaded (1) or the detector is degraded (0)",
	})

	m.BufferFillGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "homeaudio_buffer_fill_ratio",
		Help: "Fill ratio of the sample window buffer",
	})

	m.DroppedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "homeaudio_dropped_chunks_total",
		Help: "Audio chunks dropped because the detector queue was full",
	})

	m.ResultsStoredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "homeaudio_results_stored",
		Help: "Number of detection results currently held in memory",
	})
}

// RecordDetection counts one result for label.
func (m *DetectorMetrics) RecordDetection(label string) {
	m.DetectionCounter.WithLabelValues(label).Inc()
}

// RecordInference records the outcome of one forward pass.
func (m *DetectorMetrics) RecordInference(duration time.Duration, err error) {
	if err != nil {
		m.InferenceTotal.WithLabelValues(StatusError).Inc()
		m.InferenceErrors.WithLabelValues(categorizeError(err)).Inc()
		return
	}
	m.InferenceTotal.WithLabelValues(StatusSuccess).Inc()
	m.InferenceDuration.Observe(duration.Seconds())
}

// RecordFeatureExtraction records feature extraction time.
func (m *DetectorMetrics) RecordFeatureExtraction(duration time.Duration) {
	m.FeatureDuration.Observe(duration.Seconds())
}

// RecordInvalidOutput counts a dropped short model output.
func (m *DetectorMetrics) RecordInvalidOutput() {
	m.InvalidOutputs.Inc()
	m.InferenceTotal.WithLabelValues(StatusInvalid).Inc()
}

// SetModelLoaded reports whether the model is available.
func (m *DetectorMetrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoadedGauge.Set(1)
	} else {
		m.ModelLoadedGauge.Set(0)
	}
}

// SetBufferFill reports the sample buffer fill ratio.
func (m *DetectorMetrics) SetBufferFill(ratio float64) {
	m.BufferFillGauge.Set(ratio)
}

// RecordDroppedChunks adds n dropped chunks.
func (m *DetectorMetrics) RecordDroppedChunks(n int) {
	if n > 0 {
		m.DroppedChunks.Add(float64(n))
	}
}

// SetResultsStored reports the result store size.
func (m *DetectorMetrics) SetResultsStored(n int) {
	m.ResultsStoredGauge.Set(float64(n))
}

// categorizeError maps an error to a low-cardinality label.
func categorizeError(err error) string {
	if err == nil {
		return ErrorCategoryNone
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) && ee.Category != errors.CategoryGeneric {
		return string(ee.Category)
	}
	return ErrorCategoryUnknown
}

// Describe implements the prometheus.Collector interface.
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DetectionCounter.Describe(ch)
	ch <- m.InferenceDuration.Desc()
	ch <- m.FeatureDuration.Desc()
	m.InferenceTotal.Describe(ch)
	m.InferenceErrors.Describe(ch)
	ch <- m.InvalidOutputs.Desc()
	ch <- m.ModelLoadedGauge.Desc()
	ch <- m.BufferFillGauge.Desc()
	ch <- m.DroppedChunks.Desc()
	ch <- m.ResultsStoredGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DetectionCounter.Collect(ch)
	ch <- m.InferenceDuration
	ch <- m.FeatureDuration
	m.InferenceTotal.Collect(ch)
	m.InferenceErrors.Collect(ch)
	ch <- m.InvalidOutputs
	ch <- m.ModelLoadedGauge
	ch <- m.BufferFillGauge
	ch <- m.DroppedChunks
	ch <- m.ResultsStoredGauge
}
