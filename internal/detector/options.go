package detector

import (
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/diagnostics"
	"github.com/deeplyinc/homeaudio-go/internal/features"
	"github.com/deeplyinc/homeaudio-go/internal/inference"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
	"github.com/deeplyinc/homeaudio-go/internal/observability/metrics"
)

// Option configures a ModelDetector.
type Option func(*options)

type options struct {
	adapter     inference.Adapter
	loader      inference.Loader
	extractor   features.Extractor
	clock       func() time.Time
	metrics     metrics.DetectorRecorder
	sinks       []ResultSink
	log         logger.Logger
	sourceID    string
	storeOpts   []detection.StoreOption
	diagnostics *diagnostics.Reporter
}

// WithAdapter uses a ready adapter instead of loading the model.
func WithAdapter(a inference.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithAdapterLoader replaces the TFLite loader.
func WithAdapterLoader(l inference.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithExtractor replaces the mel spectrogram extractor.
func WithExtractor(e features.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithMetrics reports detector measurements to r.
func WithMetrics(r metrics.DetectorRecorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithPublisher adds a sink that receives every stored result.
func WithPublisher(s ResultSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithLogger replaces the package logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSourceID attributes results to an audio source.
func WithSourceID(id string) Option {
	return func(o *options) { o.sourceID = id }
}

// WithMaxResults bounds the result store.
func WithMaxResults(n int) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, detection.WithMaxResults(n)) }
}

// WithDiagnostics logs resource snapshots when inference falls behind.
func WithDiagnostics(r *diagnostics.Reporter) Option {
	return func(o *options) { o.diagnostics = r }
}

func buildOptions(opts []Option) options {
	o := options{
		loader:  inference.LoadTFLite,
		clock:   time.Now,
		metrics: metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = GetLogger()
	}
	if o.metrics == nil {
		o.metrics = metrics.NopRecorder{}
	}
	return o
}
