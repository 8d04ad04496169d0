// Package buffer holds the sliding sample window that feeds inference.
package buffer

import (
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

const bytesPerSample = 2

// SampleRing is a fixed capacity FIFO of int16 samples. Pushing past
// capacity evicts the oldest samples first.
type SampleRing struct {
	mu       sync.Mutex
	rb       *ringbuffer.RingBuffer
	capacity int // in samples
	scratch  []byte
}

// NewSampleRing creates a ring that holds exactly capacity samples when full.
func NewSampleRing(capacity int) (*SampleRing, error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid sample ring capacity: %d", capacity).
			Component("buffer").
			Category(errors.CategoryValidation).
			Build()
	}
	return &SampleRing{
		rb:       ringbuffer.New(capacity * bytesPerSample),
		capacity: capacity,
	}, nil
}

// Push appends samples, evicting the oldest as needed. A chunk longer than
// the capacity keeps only its last Cap() samples.
func (r *SampleRing) Push(samples []int16) {
	if len(samples) == 0 {
		return
	}
	if len(samples) > r.capacity {
		samples = samples[len(samples)-r.capacity:]
	}
	data := audiocore.Int16ToBytes(samples)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(samples) == r.capacity {
		r.rb.Reset()
	} else if overflow := len(data) - r.rb.Free(); overflow > 0 {
		r.discardLocked(overflow)
	}

	if _, err := r.rb.Write(data); err != nil {
		GetLogger().Error("sample ring write failed",
			logger.Error(err),
			logger.Int("samples", len(samples)),
			logger.Int("free_bytes", r.rb.Free()))
	}
}

// discardLocked drops n bytes from the head of the ring.
func (r *SampleRing) discardLocked(n int) {
	if cap(r.scratch) < n {
		r.scratch = make([]byte, n)
	}
	_, _ = r.rb.Read(r.scratch[:n])
}

// Snapshot returns the stored samples oldest to newest without consuming them.
func (r *SampleRing) Snapshot() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.rb.Length()
	if n == 0 {
		return []int16{}
	}
	data := make([]byte, n)
	read, err := r.rb.Read(data)
	if err != nil {
		GetLogger().Error("sample ring read failed", logger.Error(err))
	}
	data = data[:read]
	// Put the contents back so the read is non-destructive.
	if _, err := r.rb.Write(data); err != nil {
		GetLogger().Error("sample ring restore failed", logger.Error(err))
	}
	return audiocore.BytesToInt16(data)
}

// Len returns the number of stored samples.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rb.Length() / bytesPerSample
}

// Cap returns the capacity in samples.
func (r *SampleRing) Cap() int {
	return r.capacity
}

// IsFull reports whether the ring holds exactly Cap() samples.
func (r *SampleRing) IsFull() bool {
	return r.Len() == r.capacity
}

// FillRatio returns stored/capacity in [0,1].
func (r *SampleRing) FillRatio() float64 {
	return float64(r.Len()) / float64(r.capacity)
}

// Reset discards all stored samples.
func (r *SampleRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
}

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the buffer package logger
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("buffer")
	})
	return serviceLogger
}
