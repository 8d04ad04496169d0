package detector

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/features"
	"github.com/deeplyinc/homeaudio-go/internal/inference"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// othersWins is a valid model output where OTHERS has the top score.
var othersWins = []float32{0.01, 0.01, 0.01, 0.01, 0.01, 0.05, 0.9}

// stepClock returns a clock that advances by one second on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// zeroExtractor skips the STFT and returns an all-zero matrix of the right shape.
func zeroExtractor(cfg conf.DetectorConfig) features.Extractor {
	return features.ExtractorFunc(func([]float32) (features.Matrix, error) {
		m := make(features.Matrix, cfg.MelBins)
		for i := range m {
			m[i] = make([]float32, cfg.Frames)
		}
		return m, nil
	})
}

// countingAdapter returns scores and counts calls.
type countingAdapter struct {
	calls  atomic.Int32
	scores []float32
}

func (a *countingAdapter) Predict([]float32) ([]float32, error) {
	a.calls.Add(1)
	out := make([]float32, len(a.scores))
	copy(out, a.scores)
	return out, nil
}

func (a *countingAdapter) Close() error { return nil }

// recordingMetrics captures the measurements the detector reports.
type recordingMetrics struct {
	mu             sync.Mutex
	detections     []string
	inferences     int
	inferenceErrs  int
	invalidOutputs int
	modelLoaded    bool
	stored         int
}

func (r *recordingMetrics) RecordDetection(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections = append(r.detections, label)
}

func (r *recordingMetrics) RecordInference(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inferences++
	if err != nil {
		r.inferenceErrs++
	}
}

func (r *recordingMetrics) RecordFeatureExtraction(time.Duration) {}

func (r *recordingMetrics) RecordInvalidOutput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidOutputs++
}

func (r *recordingMetrics) SetModelLoaded(loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modelLoaded = loaded
}

func (r *recordingMetrics) SetBufferFill(float64) {}
func (r *recordingMetrics) RecordDroppedChunks(int) {}

func (r *recordingMetrics) SetResultsStored(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = n
}

func newTestDetector(t *testing.T, opts ...Option) *ModelDetector {
	t.Helper()
	cfg := conf.DefaultDetectorConfig()
	base := []Option{
		WithExtractor(zeroExtractor(cfg)),
		WithLogger(logger.NewDiscardLogger()),
	}
	d, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func second() []int16 {
	return make([]int16, conf.SampleRate)
}

func TestAccumulateWaitsForFullWindow(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{scores: othersWins}
	d := newTestDetector(t, WithAdapter(adapter))

	assert.Equal(t, StateAccumulating, d.State())
	d.Accumulate(second())
	d.Accumulate(second())
	assert.Equal(t, StateAccumulating, d.State())
	assert.Zero(t, adapter.calls.Load())
	assert.Empty(t, d.GetResults(nil, nil))

	d.Accumulate(second())
	assert.Equal(t, StateReady, d.State())
	assert.Equal(t, int32(1), adapter.calls.Load())

	// Every further chunk triggers one pass over the latest window.
	d.Accumulate(make([]int16, 160))
	d.Accumulate(make([]int16, 160))
	assert.Equal(t, int32(3), adapter.calls.Load())
	assert.Len(t, d.GetResults(nil, nil), 3)
	assert.Equal(t, StateReady, d.State())
}

func TestSilenceProducesOthers(t *testing.T) {
	t.Parallel()

	cfg := conf.DefaultDetectorConfig()
	var input []float32
	adapter := inference.Func(func(in []float32) ([]float32, error) {
		input = append([]float32(nil), in...)
		return inference.Static(othersWins...)(in)
	})

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, err := New(cfg,
		WithAdapter(adapter),
		WithClock(func() time.Time { return start }),
		WithSourceID("mic"),
		WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)

	d.Accumulate(make([]int16, cfg.WindowSamples()))

	results := d.GetResults(nil, nil)
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, detection.Others, r.Label)
	assert.InDelta(t, 0.9, r.Confidence, 1e-6)
	assert.Len(t, r.Scores(), detection.NumEventTypes)
	assert.Equal(t, start, r.To)
	assert.Equal(t, start.Add(-3*time.Second), r.From)
	assert.Equal(t, "mic", r.SourceID)

	require.Len(t, input, cfg.TensorSize())
	featureSize := cfg.FeatureSize()
	assert.InDelta(t, -23.02585, input[0], 1e-3, "log(0 + offset)")
	assert.InDelta(t, -23.02585, input[featureSize-1], 1e-3)
	for i := featureSize; i < len(input); i++ {
		require.Zero(t, input[i], "tensor tail must stay zero at %d", i)
	}
}

func TestFirstMaximumWins(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, WithAdapter(inference.Static(0.1, 0.4, 0.4, 0.1, 0, 0, 0)))
	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))

	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, detection.Sneeze, latest.Label)
}

func TestLongOutputTruncated(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, WithAdapter(inference.Static(0.2, 0.1, 0, 0, 0, 0, 0, 0.99, 0.99)))
	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))

	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, detection.Cough, latest.Label)
	assert.InDelta(t, 0.2, latest.Confidence, 1e-6)
	assert.Len(t, latest.Scores(), detection.NumEventTypes)
}

func TestShortOutputDropped(t *testing.T) {
	t.Parallel()

	m := &recordingMetrics{}
	d := newTestDetector(t,
		WithAdapter(inference.Static(0.5, 0.2, 0.1, 0.1, 0.1)),
		WithMetrics(m))

	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	d.Accumulate(second())

	assert.Empty(t, d.GetResults(nil, nil))
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.invalidOutputs)
	assert.Empty(t, m.detections)
}

func TestPredictErrorSkipsWindow(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	adapter := inference.Func(func(in []float32) ([]float32, error) {
		if fail.Load() {
			return nil, errors.NewStd("interpreter invoke failed")
		}
		return inference.Static(othersWins...)(in)
	})
	m := &recordingMetrics{}
	d := newTestDetector(t, WithAdapter(adapter), WithMetrics(m))

	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	assert.Empty(t, d.GetResults(nil, nil))

	fail.Store(false)
	d.Accumulate(second())
	assert.Len(t, d.GetResults(nil, nil), 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.inferences)
	assert.Equal(t, 1, m.inferenceErrs)
}

func TestExtractorFailureSkipsWindow(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{scores: othersWins}
	d := newTestDetector(t,
		WithAdapter(adapter),
		WithExtractor(features.ExtractorFunc(func([]float32) (features.Matrix, error) {
			return features.Matrix{}, nil
		})))

	assert.NotPanics(t, func() {
		d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	})
	assert.Zero(t, adapter.calls.Load(), "empty matrix must not reach the model")
	assert.Empty(t, d.GetResults(nil, nil))
}

func TestPanicInAdapterRecovered(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, WithAdapter(inference.Func(func([]float32) ([]float32, error) {
		panic("interpreter crashed")
	})))

	assert.NotPanics(t, func() {
		d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
		d.Accumulate(second())
	})
	assert.Empty(t, d.GetResults(nil, nil))
}

func TestDegradedModeWithoutModel(t *testing.T) {
	t.Parallel()

	cfg := conf.DefaultDetectorConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.tflite")
	m := &recordingMetrics{modelLoaded: true}

	d, err := New(cfg, WithMetrics(m), WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err, "a missing model is not a construction error")

	assert.False(t, d.ModelLoaded())
	require.Error(t, d.LoadError())
	assert.True(t, errors.IsCategory(d.LoadError(), errors.CategoryModelLoad))

	assert.NotPanics(t, func() {
		for range 5 {
			d.Accumulate(second())
		}
	})
	assert.Equal(t, StateReady, d.State(), "buffer keeps accepting data")
	assert.Empty(t, d.GetResults(nil, nil))
	assert.False(t, d.Status().ModelLoaded)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.False(t, m.modelLoaded)
}

func TestLoaderPanicDegrades(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, WithAdapterLoader(func(conf.DetectorConfig) (inference.Adapter, error) {
		panic("bad model")
	}))
	assert.False(t, d.ModelLoaded())
	assert.True(t, errors.IsCategory(d.LoadError(), errors.CategoryModelLoad))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := conf.DefaultDetectorConfig()
	cfg.HopLength = 0
	_, err := New(cfg, WithAdapter(inference.Static(othersWins...)))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestGetResultsTimeRange(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDetector(t,
		WithAdapter(inference.Static(othersWins...)),
		WithClock(stepClock(start)))

	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	for range 3 {
		d.Accumulate(second())
	}
	// To values are start+1s..start+4s, From values are To-3s.
	all := d.GetResults(nil, nil)
	require.Len(t, all, 4)

	from := all[1].From
	assert.Len(t, d.GetResults(&from, nil), 2, "from bound is exclusive")

	to := all[2].To
	assert.Len(t, d.GetResults(nil, &to), 2, "to bound is exclusive")

	assert.Empty(t, d.GetResults(&to, &from))
}

func TestClearResults(t *testing.T) {
	t.Parallel()

	m := &recordingMetrics{}
	d := newTestDetector(t, WithAdapter(inference.Static(othersWins...)), WithMetrics(m))
	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	require.Len(t, d.GetResults(nil, nil), 1)

	d.ClearResults()
	d.ClearResults()
	assert.Empty(t, d.GetResults(nil, nil))
	_, ok := d.Latest()
	assert.False(t, ok)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Zero(t, m.stored)
}

func TestPublishersReceiveResults(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []detection.Result
	d := newTestDetector(t,
		WithAdapter(inference.Static(othersWins...)),
		WithPublisher(SinkFunc(func(detection.Result) { panic("sink failure") })),
		WithPublisher(SinkFunc(func(r detection.Result) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, r)
		})))

	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "a panicking sink does not starve the next one")
	assert.Len(t, d.GetResults(nil, nil), 1)
	assert.Equal(t, got[0].ID, d.GetResults(nil, nil)[0].ID)
}

func TestConcurrentAccumulateAndQuery(t *testing.T) {
	t.Parallel()

	adapter := &countingAdapter{scores: othersWins}
	d := newTestDetector(t, WithAdapter(adapter))
	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				d.Accumulate(make([]int16, 1600))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			_ = d.GetResults(nil, nil)
			_ = d.Status()
		}
	}()
	wg.Wait()

	assert.Equal(t, int32(41), adapter.calls.Load())
	assert.Len(t, d.GetResults(nil, nil), 41)
}

func TestMaxResultsOption(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, WithAdapter(inference.Static(othersWins...)), WithMaxResults(2))
	d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	for range 4 {
		d.Accumulate(second())
	}
	assert.Len(t, d.GetResults(nil, nil), 2)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t, WithAdapter(inference.Static(othersWins...)))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.False(t, d.ModelLoaded())

	assert.NotPanics(t, func() {
		d.Accumulate(make([]int16, conf.SampleRate*conf.CaptureLength))
	})
	assert.Empty(t, d.GetResults(nil, nil))
}

func TestStubDetector(t *testing.T) {
	t.Parallel()

	cfg := conf.DefaultDetectorConfig()
	s, err := NewStub(cfg, nil, WithLogger(logger.NewDiscardLogger()), WithSourceID("stub"))
	require.NoError(t, err)

	s.Accumulate(second())
	s.Accumulate(second())
	assert.Empty(t, s.GetResults(nil, nil))
	assert.Equal(t, StateAccumulating, s.State())

	s.Accumulate(second())
	results := s.GetResults(nil, nil)
	require.Len(t, results, 1)
	assert.Equal(t, detection.Others, results[0].Label)
	assert.InDelta(t, 0.9, results[0].Confidence, 1e-6)
	assert.Equal(t, "stub", results[0].SourceID)
	assert.Equal(t, 3*time.Second, results[0].Duration())
	assert.False(t, s.Status().ModelLoaded)

	s.ClearResults()
	assert.Empty(t, s.GetResults(nil, nil))
}

func TestStubDetectorCustomScores(t *testing.T) {
	t.Parallel()

	cfg := conf.DefaultDetectorConfig()
	s, err := NewStub(cfg, []float32{0, 0, 0, 0.8, 0, 0, 0.1}, WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)
	s.Accumulate(make([]int16, cfg.WindowSamples()))

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, detection.Scream, latest.Label)

	_, err = NewStub(cfg, []float32{0.5, 0.5})
	require.Error(t, err)
}
