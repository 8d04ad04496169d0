// Package file replays WAV and FLAC recordings as an audio source.
package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// Config configures a file source.
type Config struct {
	SampleRate   int  // required file sample rate
	ChunkSamples int  // samples per emitted chunk
	Realtime     bool // pace chunks at their playback duration
}

// Source implements audiocore.AudioSource over a file. The output channel
// is closed when the file is exhausted, on error, or on Stop.
type Source struct {
	path   string
	config Config
	log    logger.Logger

	mu      sync.Mutex
	output  chan audiocore.AudioData
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
	emitted atomic.Uint64
}

var _ audiocore.AudioSource = (*Source)(nil)

// NewSource creates a source for path. The file is opened by Start.
func NewSource(path string, config Config) *Source {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.ChunkSamples <= 0 {
		config.ChunkSamples = config.SampleRate
	}
	output := make(chan audiocore.AudioData)
	errs := make(chan error)
	done := make(chan struct{})
	close(output)
	close(errs)
	close(done)
	return &Source{
		path:   path,
		config: config,
		log:    GetLogger(),
		output: output,
		errs:   errs,
		done:   done,
	}
}

// ID returns the file path.
func (s *Source) ID() string { return s.path }

// Name returns the file name.
func (s *Source) Name() string { return filepath.Base(s.path) }

// Start opens and validates the file, then streams it in the background.
// Format problems are returned here rather than on the error channel.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New(audiocore.ErrSourceAlreadyRunning).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryState).
			Context("source_id", s.path).
			Build()
	}

	f, err := os.Open(s.path)
	if err != nil {
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryFileIO).
			FileContext(s.path, 0).
			Build()
	}

	r, err := newReader(f, s.path)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := audiocore.ValidateFormat(r.Format(), s.config.SampleRate); err != nil {
		_ = f.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.output = make(chan audiocore.AudioData, 4)
	s.errs = make(chan error, 1)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.emitted.Store(0)
	s.running.Store(true)

	s.log.Info("Reading audio file",
		logger.String("path", s.path),
		logger.Int("sample_rate", r.Format().SampleRate),
		logger.Bool("realtime", s.config.Realtime))

	go s.stream(runCtx, f, r, s.output, s.errs, s.done)
	return nil
}

func (s *Source) stream(ctx context.Context, f *os.File, r pcmReader, output chan<- audiocore.AudioData, errs chan<- error, done chan<- struct{}) {
	defer close(done)
	defer close(errs)
	defer close(output)
	defer s.running.Store(false)
	defer func() { _ = f.Close() }()

	format := audiocore.AudioFormat{
		SampleRate: s.config.SampleRate,
		Channels:   1,
		BitDepth:   16,
		Encoding:   audiocore.EncodingPCMS16LE,
	}
	chunkDuration := time.Duration(s.config.ChunkSamples) * time.Second / time.Duration(s.config.SampleRate)

	var ticker *time.Ticker
	if s.config.Realtime {
		ticker = time.NewTicker(chunkDuration)
		defer ticker.Stop()
	}

	start := time.Now()
	var offset time.Duration
	samples := make([]int16, s.config.ChunkSamples)

	for {
		n, err := readFull(r, samples)
		if n > 0 {
			duration := time.Duration(n) * time.Second / time.Duration(s.config.SampleRate)
			data := audiocore.AudioData{
				Buffer:    audiocore.Int16ToBytes(samples[:n]),
				Format:    format,
				Timestamp: start.Add(offset),
				Duration:  duration,
				SourceID:  s.path,
			}
			offset += duration

			select {
			case output <- data:
				s.emitted.Add(1)
			case <-ctx.Done():
				return
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}

		if err == io.EOF {
			s.log.Info("Finished reading audio file",
				logger.String("path", s.path),
				logger.Uint64("chunks", s.emitted.Load()),
				logger.Duration("audio_duration", offset))
			return
		}
		if err != nil {
			errs <- err
			return
		}
	}
}

// readFull reads until dst is full or the stream ends. It returns io.EOF
// with a final partial chunk.
func readFull(r pcmReader, dst []int16) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := r.Read(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Stop ends streaming and waits for the stream goroutine to exit.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	running := s.running.Load()
	s.mu.Unlock()

	if !running {
		return errors.New(audiocore.ErrSourceNotActive).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryState).
			Context("source_id", s.path).
			Build()
	}
	cancel()
	<-done
	return nil
}

// Wait blocks until streaming has finished.
func (s *Source) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	<-done
}

// AudioOutput returns the current session's audio channel.
func (s *Source) AudioOutput() <-chan audiocore.AudioData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Errors returns the current session's error channel.
func (s *Source) Errors() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

// IsActive reports whether the file is still being streamed.
func (s *Source) IsActive() bool { return s.running.Load() }

// GetFormat implements audiocore.AudioSource.
func (s *Source) GetFormat() audiocore.AudioFormat {
	return audiocore.AudioFormat{
		SampleRate: s.config.SampleRate,
		Channels:   1,
		BitDepth:   16,
		Encoding:   audiocore.EncodingPCMS16LE,
	}
}

// Emitted returns the number of chunks delivered in the current session.
func (s *Source) Emitted() uint64 { return s.emitted.Load() }
