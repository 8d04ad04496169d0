package audiocore

import (
	"fmt"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// ComponentAudioCore identifies audiocore errors
const ComponentAudioCore = "audiocore"

// Sentinel errors shared by audio sources
var (
	ErrSourceAlreadyRunning = errors.NewStd("audio source already running")
	ErrSourceNotActive      = errors.NewStd("audio source not running")
	ErrInvalidAudioFormat   = errors.NewStd("invalid audio format")
	ErrOddByteCount         = errors.NewStd("PCM16 buffer has odd byte count")
)

// NewSourceError wraps err with the audio source context.
func NewSourceError(err error, sourceID, operation string) error {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudioSource).
		Context("source_id", sourceID).
		Context("operation", operation).
		Build()
}

// ValidateFormat checks that format matches the detector input format.
func ValidateFormat(format AudioFormat, sampleRate int) error {
	if format.SampleRate != sampleRate || format.Channels != 1 || format.BitDepth != 16 {
		return errors.New(fmt.Errorf("%w: got %d Hz, %d channel(s), %d bit; want %d Hz mono 16 bit",
			ErrInvalidAudioFormat, format.SampleRate, format.Channels, format.BitDepth, sampleRate)).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
