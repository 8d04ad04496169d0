// Package audiocore defines the audio sources that feed the event detector.
//
// Architecture overview:
//
//	AudioSource -> chan AudioData -> detector.Worker -> Detector
//
// Sources deliver PCM16LE mono chunks at the detector sample rate. The
// channel decouples capture from inference so a slow model never blocks
// the capture callback.
package audiocore

import (
	"context"
	"time"
)

// Encoding names used in AudioFormat.Encoding
const (
	EncodingPCMS16LE = "pcm_s16le"
)

// AudioFormat represents the format of audio data
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 16000)
	Channels   int    // Number of channels (1 for mono)
	BitDepth   int    // Bits per sample
	Encoding   string // Encoding format (e.g., "pcm_s16le")
}

// BytesPerSecond returns the byte rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// AudioData represents a chunk of audio with metadata
type AudioData struct {
	Buffer    []byte        // Raw PCM data
	Format    AudioFormat   // Audio format information
	Timestamp time.Time     // When this audio was captured
	Duration  time.Duration // Duration of the audio chunk
	SourceID  string        // Identifier of the source that produced this audio
}

// AudioSource represents an audio input source.
//
// A source is restartable per session: Start after Stop opens a new output
// channel. Consumers must fetch AudioOutput after each Start.
type AudioSource interface {
	// ID returns a unique identifier for this source
	ID() string

	// Name returns a human-readable name for this source
	Name() string

	// Start begins audio capture from this source
	Start(ctx context.Context) error

	// Stop halts audio capture and closes the output channel
	Stop() error

	// AudioOutput returns a channel that emits audio data
	AudioOutput() <-chan AudioData

	// Errors returns a channel for error reporting
	Errors() <-chan error

	// IsActive returns true if the source is currently capturing
	IsActive() bool

	// GetFormat returns the audio format of this source
	GetFormat() AudioFormat
}

// DropCounter is implemented by sources that drop chunks when the consumer
// falls behind.
type DropCounter interface {
	DroppedChunks() uint64
}
