package detector

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore/buffer"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// DefaultStubScores makes OTHERS win with 0.9.
var DefaultStubScores = []float32{0.01, 0.01, 0.01, 0.01, 0.01, 0.05, 0.9}

// StubDetector fills the same window as ModelDetector but skips feature
// extraction and inference: every full-window chunk yields a result built
// from a fixed score vector.
type StubDetector struct {
	cfg    conf.DetectorConfig
	opts   options
	ring   *buffer.SampleRing
	store  *detection.Store
	scores []float32
	state  atomic.Int32
}

var _ Service = (*StubDetector)(nil)

// NewStub creates a stub detector. Nil scores selects DefaultStubScores.
// Adapter, loader and extractor options are ignored.
func NewStub(cfg conf.DetectorConfig, scores []float32, opts ...Option) (*StubDetector, error) {
	if scores == nil {
		scores = DefaultStubScores
	}
	if !detection.ValidScores(scores) {
		return nil, errors.Newf("stub needs %d scores, got %d", detection.NumEventTypes, len(scores)).
			Component("detector").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.WindowSamples() <= 0 {
		return nil, errors.Newf("invalid window size %d", cfg.WindowSamples()).
			Component("detector").
			Category(errors.CategoryConfiguration).
			Build()
	}

	ring, err := buffer.NewSampleRing(cfg.WindowSamples())
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	o.metrics.SetModelLoaded(false)

	return &StubDetector{
		cfg:    cfg,
		opts:   o,
		ring:   ring,
		store:  detection.NewStore(o.storeOpts...),
		scores: slices.Clone(scores[:detection.NumEventTypes]),
	}, nil
}

// Accumulate implements Detector.
func (s *StubDetector) Accumulate(chunk []int16) {
	s.ring.Push(chunk)
	s.opts.metrics.SetBufferFill(s.ring.FillRatio())
	if !s.ring.IsFull() {
		return
	}
	if s.state.CompareAndSwap(int32(StateAccumulating), int32(StateReady)) {
		s.opts.log.Debug("Stub window full", logger.Int("samples", s.ring.Cap()))
	}

	to := s.opts.clock()
	result, err := detection.Build(s.scores, to.Add(-s.cfg.WindowDuration()), to)
	if err != nil {
		s.opts.log.Error("Failed to build stub result", logger.Error(err))
		return
	}
	result.SourceID = s.opts.sourceID

	s.store.Append(result)
	s.opts.metrics.RecordDetection(result.Label.String())
	s.opts.metrics.SetResultsStored(s.store.Len())
	publish(s.opts.log, s.opts.sinks, result)
}

// GetResults implements Detector.
func (s *StubDetector) GetResults(from, to *time.Time) []detection.Result {
	return s.store.Query(from, to)
}

// ClearResults implements Detector.
func (s *StubDetector) ClearResults() {
	s.store.Clear()
	s.opts.metrics.SetResultsStored(0)
}

// Latest returns the most recent result.
func (s *StubDetector) Latest() (detection.Result, bool) {
	return s.store.Latest()
}

// State reports whether the window has been filled.
func (s *StubDetector) State() State {
	return State(s.state.Load())
}

// Status implements Service. A stub never reports a loaded model.
func (s *StubDetector) Status() Status {
	return Status{
		State:      s.State(),
		Results:    s.store.Len(),
		WindowFill: s.ring.FillRatio(),
		SourceID:   s.opts.sourceID,
	}
}
