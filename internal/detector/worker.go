package detector

import (
	"context"
	"sync/atomic"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// Worker feeds audio from a source channel into a detector on the calling
// goroutine. A chunk that is being analyzed when ctx is cancelled finishes
// normally; cancellation is observed between chunks.
type Worker struct {
	det        Detector
	sampleRate int
	log        logger.Logger

	chunks   atomic.Uint64
	rejected atomic.Uint64
}

// NewWorker creates a worker that accepts chunks at sampleRate. A zero
// sampleRate accepts any rate.
func NewWorker(det Detector, sampleRate int) *Worker {
	return &Worker{
		det:        det,
		sampleRate: sampleRate,
		log:        GetLogger(),
	}
}

// Run consumes in until ctx is cancelled or in is closed. It returns
// ctx.Err() on cancellation and nil when the channel closes.
func (w *Worker) Run(ctx context.Context, in <-chan audiocore.AudioData) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-in:
			if !ok {
				w.log.Debug("Audio channel closed", logger.Uint64("chunks", w.chunks.Load()))
				return nil
			}
			w.handle(data)
		}
	}
}

// RunChunks is Run for callers that already hold decoded samples.
func (w *Worker) RunChunks(ctx context.Context, in <-chan []int16) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			w.chunks.Add(1)
			w.det.Accumulate(chunk)
		}
	}
}

func (w *Worker) handle(data audiocore.AudioData) {
	if w.sampleRate > 0 && data.Format.SampleRate != 0 && data.Format.SampleRate != w.sampleRate {
		if w.rejected.Add(1) == 1 {
			w.log.Warn("Dropping audio with unexpected sample rate",
				logger.String("source", data.SourceID),
				logger.Int("sample_rate", data.Format.SampleRate),
				logger.Int("expected", w.sampleRate))
		}
		return
	}
	if len(data.Buffer)%2 != 0 {
		w.log.Debug("Odd PCM byte count, ignoring trailing byte",
			logger.String("source", data.SourceID),
			logger.Int("bytes", len(data.Buffer)))
	}

	w.chunks.Add(1)
	w.det.Accumulate(audiocore.BytesToInt16(data.Buffer))
}

// Chunks returns the number of chunks handed to the detector.
func (w *Worker) Chunks() uint64 {
	return w.chunks.Load()
}

// Rejected returns the number of chunks dropped for a format mismatch.
func (w *Worker) Rejected() uint64 {
	return w.rejected.Load()
}
