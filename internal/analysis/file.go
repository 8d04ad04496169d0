package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources"
	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources/file"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/detection"
	"github.com/deeplyinc/homeaudio-go/internal/detector"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// FileAnalysis runs the detector over settings.InputFile and writes the
// results at or above the detector threshold to out. Result times are
// offsets into the file rather than wall clock times.
func FileAnalysis(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	path := settings.InputFile
	info, err := validateAudioFile(path)
	if err != nil {
		return err
	}

	clock := newStreamClock(time.Now(), settings.Detector.SampleRate)
	p, err := NewPipeline(settings, nil, detector.WithClock(clock.Now))
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			GetLogger().Warn("Failed to release detector", logger.Error(err))
		}
	}()
	p.Detector = &clockedDetector{Service: p.Detector, clock: clock}

	if !p.Detector.Status().ModelLoaded && !settings.UseStub {
		GetLogger().Warn("Model not loaded, no results will be produced",
			logger.String("model", settings.Model.Path))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	p.serve(gctx, g)

	src := sources.New(settings, nil)
	start := time.Now()
	g.Go(func() error {
		defer cancel()
		return p.Process(gctx, src)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	all := p.Detector.GetResults(nil, nil)
	results := detection.FilterByConfidence(all, float32(settings.Detector.Threshold))

	GetLogger().Info("File analysis completed",
		logger.String("file", filepath.Base(path)),
		logger.Int("windows", len(all)),
		logger.Int("results", len(results)),
		logger.Duration("elapsed", time.Since(start)))

	return writeResults(out, path, info, clock.start, len(all), results)
}

// validateAudioFile checks that path is a non-empty audio file with samples.
func validateAudioFile(path string) (file.Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return file.Info{}, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	if fi.IsDir() {
		return file.Info{}, errors.Newf("%s is a directory, not a file", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if fi.Size() == 0 {
		return file.Info{}, errors.Newf("file %s is empty", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			FileContext(path, 0).
			Build()
	}

	info, err := file.Probe(path)
	if err != nil {
		return file.Info{}, err
	}
	if info.TotalSamples == 0 {
		return file.Info{}, errors.Newf("file %s contains no samples", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			FileContext(path, fi.Size()).
			Build()
	}
	return info, nil
}

func writeResults(out io.Writer, path string, info file.Info, start time.Time, windows int, results []detection.Result) error {
	length := time.Duration(0)
	if info.Format.SampleRate > 0 {
		length = time.Duration(info.TotalSamples) * time.Second / time.Duration(info.Format.SampleRate)
	}
	if _, err := fmt.Fprintf(out, "%s [%s]: %d windows analyzed, %d results\n",
		filepath.Base(path), length, windows, len(results)); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tLABEL\tCONFIDENCE")
	for i := range results {
		r := &results[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n",
			r.From.Sub(start), r.To.Sub(start), r.Label, r.Confidence)
	}
	return tw.Flush()
}

// streamClock derives time from the number of samples consumed, so results
// from a file carry positions within it.
type streamClock struct {
	start      time.Time
	sampleRate int
	samples    atomic.Int64
}

func newStreamClock(start time.Time, sampleRate int) *streamClock {
	return &streamClock{start: start, sampleRate: sampleRate}
}

func (c *streamClock) advance(n int) {
	c.samples.Add(int64(n))
}

// Now returns start plus the duration of the samples consumed so far.
func (c *streamClock) Now() time.Time {
	if c.sampleRate <= 0 {
		return c.start
	}
	return c.start.Add(time.Duration(c.samples.Load()) * time.Second / time.Duration(c.sampleRate))
}

// clockedDetector advances a streamClock before every chunk.
type clockedDetector struct {
	detector.Service
	clock *streamClock
}

func (d *clockedDetector) Accumulate(chunk []int16) {
	d.clock.advance(len(chunk))
	d.Service.Accumulate(chunk)
}
