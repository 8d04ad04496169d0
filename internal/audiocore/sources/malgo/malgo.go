// Package malgo captures audio from a sound card through miniaudio.
package malgo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

const (
	defaultBufferFrames = 1600 // 100 ms at 16 kHz
	defaultQueueSize    = 32
)

// Config configures a capture source.
type Config struct {
	DeviceName   string  // name, id or name substring; empty for the system default
	SampleRate   uint32  // capture rate, normally the detector rate
	BufferFrames uint32  // frames per callback period
	QueueSize    int     // chunks buffered for the consumer
	Gain         float64 // linear gain, 1.0 for none

	// OnDrop is called from the capture callback whenever a chunk is
	// dropped because the consumer fell behind. It must not block.
	OnDrop func()
}

// Source implements audiocore.AudioSource for a sound card.
//
// The capture callback never blocks: when the output queue is full the
// newest chunk is dropped and counted. Start after Stop opens a new session
// with fresh channels.
type Source struct {
	id     string
	config Config
	log    logger.Logger

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	output   chan audiocore.AudioData
	errs     chan error
	stopped  chan struct{}
	monitors sync.WaitGroup

	running    atomic.Bool
	dropped    atomic.Uint64
	format     malgo.FormatType
	actualRate uint32
	deviceName string
}

var (
	_ audiocore.AudioSource = (*Source)(nil)
	_ audiocore.DropCounter = (*Source)(nil)
)

// NewSource creates a capture source. The device is opened by Start.
func NewSource(id string, config Config) *Source {
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.BufferFrames == 0 {
		config.BufferFrames = defaultBufferFrames
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.Gain == 0 {
		config.Gain = 1.0
	}

	return &Source{
		id:     id,
		config: config,
		log:    GetLogger(),
		output: closedData(),
		errs:   closedErrors(),
	}
}

// ID implements audiocore.AudioSource.
func (s *Source) ID() string { return s.id }

// Name returns the opened device name, or the configured one before Start.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceName != "" {
		return s.deviceName
	}
	if s.config.DeviceName == "" {
		return "default"
	}
	return s.config.DeviceName
}

// Start opens the device and begins capture. Cancelling ctx stops the source.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New(audiocore.ErrSourceAlreadyRunning).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryState).
			Context("source_id", s.id).
			Build()
	}

	mctx, err := initContext()
	if err != nil {
		return err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return audiocore.NewSourceError(err, s.id, "enumerate_devices")
	}
	idx, err := matchDevice(toDeviceInfos(infos), s.config.DeviceName)
	if err != nil {
		freeContext(mctx)
		return err
	}
	info := infos[idx]

	output := make(chan audiocore.AudioData, s.config.QueueSize)
	errs := make(chan error, 8)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.PeriodSizeInFrames = s.config.BufferFrames
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			s.onAudioData(output, errs, input, frames)
		},
		Stop: func() {
			s.onDeviceStop(errs)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		freeContext(mctx)
		return errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.id).
			Context("device_name", info.Name()).
			Context("operation", "init_device").
			Build()
	}

	s.format = device.CaptureFormat()
	s.actualRate = device.SampleRate()

	s.mctx = mctx
	s.device = device
	s.output = output
	s.errs = errs
	s.deviceName = info.Name()
	s.stopped = make(chan struct{})
	s.running.Store(true)

	if err := device.Start(); err != nil {
		s.teardownLocked()
		return audiocore.NewSourceError(err, s.id, "start_device")
	}

	s.log.Info("Audio capture started",
		logger.String("source_id", s.id),
		logger.String("device", s.deviceName),
		logger.Int("sample_rate", int(s.actualRate)),
		logger.Int("requested_rate", int(s.config.SampleRate)))

	s.monitors.Add(1)
	go s.monitor(ctx, s.stopped)

	return nil
}

// monitor stops the source when ctx ends, unless Stop got there first.
func (s *Source) monitor(ctx context.Context, stopped <-chan struct{}) {
	defer s.monitors.Done()
	select {
	case <-ctx.Done():
		_ = s.Stop()
	case <-stopped:
	}
}

// Stop halts capture and closes the output and error channels.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return errors.New(audiocore.ErrSourceNotActive).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryState).
			Context("source_id", s.id).
			Build()
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.log.Info("Audio capture stopped",
		logger.String("source_id", s.id),
		logger.Uint64("dropped_chunks", s.dropped.Load()))
	return nil
}

// Wait blocks until the context monitor of the last session has exited.
func (s *Source) Wait() {
	s.monitors.Wait()
}

// teardownLocked releases the device. Callbacks have stopped once
// Uninit returns, so the channels can be closed safely afterwards.
func (s *Source) teardownLocked() {
	s.running.Store(false)
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		freeContext(s.mctx)
		s.mctx = nil
	}
	close(s.stopped)
	close(s.output)
	close(s.errs)
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

// IsActive implements audiocore.AudioSource.
func (s *Source) IsActive() bool { return s.running.Load() }

// GetFormat returns the format of emitted chunks, PCM16LE mono at the
// configured rate regardless of the device's native format.
func (s *Source) GetFormat() audiocore.AudioFormat {
	return audiocore.AudioFormat{
		SampleRate: int(s.config.SampleRate),
		Channels:   1,
		BitDepth:   16,
		Encoding:   audiocore.EncodingPCMS16LE,
	}
}

// DroppedChunks implements audiocore.DropCounter.
func (s *Source) DroppedChunks() uint64 { return s.dropped.Load() }

func (s *Source) onAudioData(output chan<- audiocore.AudioData, errs chan<- error, input []byte, frames uint32) {
	buf, err := convertToS16(input, s.format)
	if err != nil {
		trySend(errs, err)
		return
	}
	buf = resampleS16(buf, s.actualRate, s.config.SampleRate)
	audiocore.ApplyGain(buf, s.config.Gain)

	var duration time.Duration
	if s.actualRate > 0 {
		duration = time.Duration(frames) * time.Second / time.Duration(s.actualRate)
	}

	s.deliver(output, audiocore.AudioData{
		Buffer:    buf,
		Format:    s.GetFormat(),
		Timestamp: time.Now(),
		Duration:  duration,
		SourceID:  s.id,
	})
}

// deliver queues data without blocking, dropping it when the queue is full.
func (s *Source) deliver(output chan<- audiocore.AudioData, data audiocore.AudioData) bool {
	select {
	case output <- data:
		return true
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			s.log.Warn("Audio queue full, dropping chunk",
				logger.String("source_id", s.id),
				logger.Uint64("dropped_total", n))
		}
		if s.config.OnDrop != nil {
			s.config.OnDrop()
		}
		return false
	}
}

// onDeviceStop ends the session when the device stops on its own, so the
// consumer sees the output channel close. Stop cannot run on the callback
// thread because it uninitializes the device.
func (s *Source) onDeviceStop(errs chan<- error) {
	if !s.running.Load() {
		return
	}
	s.log.Error("Audio device stopped unexpectedly", logger.String("source_id", s.id))
	trySend(errs, errors.Newf("audio device stopped unexpectedly").
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryAudioSource).
		Context("source_id", s.id).
		Build())

	s.monitors.Add(1)
	go func() {
		defer s.monitors.Done()
		_ = s.Stop()
	}()
}

func trySend(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func freeContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

func closedData() chan audiocore.AudioData {
	ch := make(chan audiocore.AudioData)
	close(ch)
	return ch
}

func closedErrors() chan error {
	ch := make(chan error)
	close(ch)
	return ch
}
