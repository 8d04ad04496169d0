package detector

import (
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore/buffer"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/features"
	"github.com/deeplyinc/homeaudio-go/internal/inference"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// pcmScale maps int16 samples to roughly [-1,1].
const pcmScale = 32768.0

// ModelDetector runs the audio event model over a sliding sample window.
//
// The ring buffer and the result store each guard their own state. No lock
// is held across feature extraction or inference except inferMu, which
// serializes passes over the shared tensor buffer and interpreter and
// guards every field declared after it.
type ModelDetector struct {
	cfg       conf.DetectorConfig
	opts      options
	ring      *buffer.SampleRing
	store     *detection.Store
	extractor features.Extractor
	loadErr   error
	loaded    atomic.Bool
	state     atomic.Int32

	inferMu  sync.Mutex
	adapter  inference.Adapter // nil when the model failed to load or was closed
	waveform []float32
	tensor   []float32
}

var _ Service = (*ModelDetector)(nil)

// New creates a detector for cfg. An invalid configuration is an error;
// a model that fails to load is not: the detector then runs degraded,
// accepting audio but never producing results.
func New(cfg conf.DetectorConfig, opts ...Option) (*ModelDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(err).
			Component("detector").
			Category(errors.CategoryConfiguration).
			Build()
	}

	o := buildOptions(opts)

	ring, err := buffer.NewSampleRing(cfg.WindowSamples())
	if err != nil {
		return nil, err
	}

	extractor := o.extractor
	if extractor == nil {
		mel, err := features.NewMelExtractor(cfg)
		if err != nil {
			return nil, err
		}
		extractor = mel
	}

	d := &ModelDetector{
		cfg:       cfg,
		opts:      o,
		ring:      ring,
		store:     detection.NewStore(o.storeOpts...),
		extractor: extractor,
		waveform:  make([]float32, cfg.WindowSamples()),
		tensor:    make([]float32, cfg.TensorSize()),
	}

	d.adapter, d.loadErr = d.loadAdapter()
	if d.loadErr != nil {
		o.log.Error("Failed to load audio event model, detector running without inference",
			logger.Error(d.loadErr),
			logger.String("model", cfg.ModelPath))
	}
	d.loaded.Store(d.adapter != nil)
	o.metrics.SetModelLoaded(d.adapter != nil)

	return d, nil
}

func (d *ModelDetector) loadAdapter() (adapter inference.Adapter, err error) {
	if d.opts.adapter != nil {
		return d.opts.adapter, nil
	}
	if d.opts.loader == nil {
		return nil, errors.Newf("no model loader configured").
			Component("detector").
			Category(errors.CategoryModelLoad).
			Build()
	}

	defer func() {
		if r := recover(); r != nil {
			adapter = nil
			err = errors.Newf("model loader panicked: %v", r).
				Component("detector").
				Category(errors.CategoryModelLoad).
				Build()
		}
	}()

	adapter, err = d.opts.loader(d.cfg)
	if err == nil && adapter == nil {
		err = errors.Newf("model loader returned no adapter").
			Component("detector").
			Category(errors.CategoryModelLoad).
			Build()
	}
	return adapter, err
}

// Accumulate implements Detector.
func (d *ModelDetector) Accumulate(chunk []int16) {
	d.ring.Push(chunk)
	d.opts.metrics.SetBufferFill(d.ring.FillRatio())

	if !d.ring.IsFull() {
		return
	}
	if d.state.CompareAndSwap(int32(StateAccumulating), int32(StateReady)) {
		d.opts.log.Debug("Sample window full", logger.Int("samples", d.ring.Cap()))
	}
	if !d.loaded.Load() {
		return
	}

	d.runInference()
}

// runInference classifies the current window. Any failure aborts only this pass.
func (d *ModelDetector) runInference() {
	d.inferMu.Lock()
	defer d.inferMu.Unlock()
	if d.adapter == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during inference: %v", r)
			d.opts.log.Error("Recovered from panic during inference",
				logger.Error(err),
				logger.String("stack", string(debug.Stack())))
			d.opts.metrics.RecordInference(0, err)
		}
	}()

	to := d.opts.clock()
	from := to.Add(-d.cfg.WindowDuration())
	start := time.Now()

	samples := d.ring.Snapshot()
	if len(samples) != len(d.waveform) {
		d.opts.log.Warn("Window changed size during inference, skipping",
			logger.Int("samples", len(samples)))
		return
	}
	for i, s := range samples {
		d.waveform[i] = float32(s) / pcmScale
	}

	mel, err := d.extractor.Extract(d.waveform)
	if err == nil {
		err = mel.Validate(d.cfg.MelBins, d.cfg.Frames)
	}
	d.opts.metrics.RecordFeatureExtraction(time.Since(start))
	if err != nil {
		d.opts.log.Error("Feature extraction failed, skipping window", logger.Error(err))
		d.opts.metrics.RecordInference(0, err)
		return
	}

	d.fillTensor(mel)

	inferStart := time.Now()
	scores, err := d.adapter.Predict(d.tensor)
	inferTime := time.Since(inferStart)
	if err != nil {
		d.opts.log.Error("Inference failed, skipping window",
			logger.Error(err),
			logger.Duration("duration", inferTime))
		d.opts.metrics.RecordInference(inferTime, err)
		return
	}
	d.opts.metrics.RecordInference(inferTime, nil)

	if !detection.ValidScores(scores) {
		d.opts.log.Warn("Model returned fewer scores than event types, dropping result",
			logger.Int("scores", len(scores)),
			logger.Int("event_types", detection.NumEventTypes))
		d.opts.metrics.RecordInvalidOutput()
		return
	}

	result, err := detection.Build(scores[:detection.NumEventTypes], from, to)
	if err != nil {
		d.opts.log.Error("Failed to build detection result", logger.Error(err))
		return
	}
	result.SourceID = d.opts.sourceID

	d.store.Append(result)
	d.opts.metrics.RecordDetection(result.Label.String())
	d.opts.metrics.SetResultsStored(d.store.Len())

	elapsed := time.Since(start)
	d.opts.log.Debug("Analysis completed",
		logger.String("label", result.Label.String()),
		logger.Float32("confidence", result.Confidence),
		logger.Duration("elapsed", elapsed))

	if elapsed > d.cfg.WindowDuration() {
		d.opts.log.Warn("Inference slower than real time",
			logger.Duration("elapsed", elapsed),
			logger.Duration("window", d.cfg.WindowDuration()))
		d.opts.diagnostics.Report("inference slower than real time")
	}

	publish(d.opts.log, d.opts.sinks, result)
}

// fillTensor lays the log-compressed matrix out row-major ([mel][frame])
// at the start of the tensor. The remaining values stay zero.
func (d *ModelDetector) fillTensor(mel features.Matrix) {
	clear(d.tensor)
	offset := d.cfg.LogOffset
	i := 0
	for _, row := range mel {
		for _, v := range row {
			d.tensor[i] = float32(math.Log(float64(v) + offset))
			i++
		}
	}
}

// publish hands r to every sink. A panicking sink does not affect the others.
func publish(log logger.Logger, sinks []ResultSink, r detection.Result) {
	for _, sink := range sinks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Error("Result sink panicked", logger.String("panic", fmt.Sprint(p)))
				}
			}()
			sink.Publish(r)
		}()
	}
}

// GetResults implements Detector.
func (d *ModelDetector) GetResults(from, to *time.Time) []detection.Result {
	return d.store.Query(from, to)
}

// ClearResults implements Detector.
func (d *ModelDetector) ClearResults() {
	d.store.Clear()
	d.opts.metrics.SetResultsStored(0)
}

// Latest returns the most recent result.
func (d *ModelDetector) Latest() (detection.Result, bool) {
	return d.store.Latest()
}

// State reports whether the window has been filled.
func (d *ModelDetector) State() State {
	return State(d.state.Load())
}

// ModelLoaded reports whether inference is available.
func (d *ModelDetector) ModelLoaded() bool {
	return d.loaded.Load()
}

// LoadError returns the model load failure, if any.
func (d *ModelDetector) LoadError() error {
	return d.loadErr
}

// Config returns the detector configuration.
func (d *ModelDetector) Config() conf.DetectorConfig {
	return d.cfg
}

// Status implements Service.
func (d *ModelDetector) Status() Status {
	return Status{
		State:       d.State(),
		ModelLoaded: d.ModelLoaded(),
		Results:     d.store.Len(),
		WindowFill:  d.ring.FillRatio(),
		SourceID:    d.opts.sourceID,
	}
}

// Close releases the model. The detector keeps answering queries.
func (d *ModelDetector) Close() error {
	d.inferMu.Lock()
	defer d.inferMu.Unlock()

	if d.adapter == nil {
		return nil
	}
	err := d.adapter.Close()
	d.adapter = nil
	d.loaded.Store(false)
	d.opts.metrics.SetModelLoaded(false)
	return err
}
