// Package features turns a normalized waveform into a mel power spectrogram.
package features

import (
	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// Matrix is a feature matrix indexed [mel][frame].
type Matrix [][]float32

// Shape returns the number of mel bins and frames.
func (m Matrix) Shape() (mels, frames int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// Validate checks that m is non-empty and rectangular with the given shape.
func (m Matrix) Validate(mels, frames int) error {
	if len(m) == 0 || len(m[0]) == 0 {
		return errors.Newf("empty feature matrix").
			Component("features").
			Category(errors.CategoryFeature).
			Build()
	}
	if len(m) != mels {
		return errors.Newf("feature matrix has %d mel bins, want %d", len(m), mels).
			Component("features").
			Category(errors.CategoryFeature).
			Build()
	}
	for i, row := range m {
		if len(row) != frames {
			return errors.Newf("feature matrix row %d has %d frames, want %d", i, len(row), frames).
				Component("features").
				Category(errors.CategoryFeature).
				Build()
		}
	}
	return nil
}

// Extractor converts a waveform scaled to roughly [-1,1] into a feature matrix.
type Extractor interface {
	Extract(waveform []float32) (Matrix, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(waveform []float32) (Matrix, error)

// Extract calls f(waveform).
func (f ExtractorFunc) Extract(waveform []float32) (Matrix, error) {
	return f(waveform)
}
