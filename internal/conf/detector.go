package conf

import (
	"fmt"
	"slices"
	"time"
)

// DetectorConfig is the immutable parameter set handed to a detector at
// construction. It is a value type; copies are independent.
type DetectorConfig struct {
	SampleRate    int
	WindowSeconds int
	NFFT          int
	HopLength     int
	MelBins       int
	Frames        int
	TensorShape   []int
	LogOffset     float64
	Threshold     float64

	// Preprocessing applied by the mel extractor before the STFT
	HammingWindow bool
	StandardScale bool

	ModelPath  string
	Threads    int
	UseXNNPACK bool
}

// DefaultDetectorConfig returns the parameters of the bundled home audio event model.
func DefaultDetectorConfig() DetectorConfig {
	cfg := DetectorConfig{
		SampleRate:    SampleRate,
		WindowSeconds: CaptureLength,
		NFFT:          DefaultNFFT,
		HopLength:     DefaultHopLength,
		MelBins:       DefaultMelBins,
		TensorShape:   slices.Clone(DefaultTensorShape),
		LogOffset:     DefaultLogOffset,
		Threshold:     DefaultThreshold,
		HammingWindow: true,
		StandardScale: true,
		ModelPath:     DefaultModelPath,
	}
	cfg.Frames = cfg.CenteredFrames()
	return cfg
}

// WindowSamples is the number of samples in one inference window.
func (c DetectorConfig) WindowSamples() int {
	return c.SampleRate * c.WindowSeconds
}

// WindowDuration is the wall-clock length of one inference window.
func (c DetectorConfig) WindowDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.WindowSamples()) * time.Second / time.Duration(c.SampleRate)
}

// CenteredFrames is the frame count of a centered STFT over one window.
func (c DetectorConfig) CenteredFrames() int {
	if c.HopLength <= 0 {
		return 0
	}
	return 1 + c.WindowSamples()/c.HopLength
}

// FeatureSize is the number of values in one feature matrix.
func (c DetectorConfig) FeatureSize() int {
	return c.MelBins * c.Frames
}

// TensorSize is the number of float32 values in the model input tensor.
func (c DetectorConfig) TensorSize() int {
	if len(c.TensorShape) == 0 {
		return 0
	}
	size := 1
	for _, d := range c.TensorShape {
		size *= d
	}
	return size
}

// TensorShapeCopy returns the tensor shape without exposing the backing array.
func (c DetectorConfig) TensorShapeCopy() []int {
	return slices.Clone(c.TensorShape)
}

// Validate checks that the parameters describe a usable pipeline.
func (c DetectorConfig) Validate() error {
	var errs []string

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.WindowSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("window length must be positive, got %d", c.WindowSeconds))
	}
	if c.NFFT <= 0 || c.HopLength <= 0 {
		errs = append(errs, fmt.Sprintf("nfft and hop length must be positive, got %d/%d", c.NFFT, c.HopLength))
	} else if c.HopLength > c.NFFT {
		errs = append(errs, fmt.Sprintf("hop length %d exceeds nfft %d", c.HopLength, c.NFFT))
	}
	if c.MelBins <= 0 || c.Frames <= 0 {
		errs = append(errs, fmt.Sprintf("mel bins and frames must be positive, got %d/%d", c.MelBins, c.Frames))
	}
	if c.Frames > 0 && c.HopLength > 0 && c.SampleRate > 0 && c.WindowSeconds > 0 && c.Frames != c.CenteredFrames() {
		errs = append(errs, fmt.Sprintf("frames %d do not match centered STFT frame count %d", c.Frames, c.CenteredFrames()))
	}
	for _, d := range c.TensorShape {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("tensor shape %v has non-positive dimension", c.TensorShape))
			break
		}
	}
	if c.TensorSize() < c.FeatureSize() {
		errs = append(errs, fmt.Sprintf("tensor shape %v cannot hold %dx%d features", c.TensorShape, c.MelBins, c.Frames))
	}
	if c.LogOffset <= 0 {
		errs = append(errs, "log offset must be positive")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("threshold must be within [0,1], got %v", c.Threshold))
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
