package features

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// MelExtractor computes a mel power spectrogram with a centered STFT.
//
// Before the STFT the waveform optionally gets a Hamming window over the
// whole signal and standard scaling, matching how the bundled model was
// trained.
type MelExtractor struct {
	sampleRate    int
	nfft          int
	hop           int
	nMels         int
	frames        int
	windowSamples int
	hamming       bool
	standardScale bool

	filters   [][]float64 // [mel][bin]
	hann      []float64   // periodic, nfft points
	signalWin []float64   // Hamming over windowSamples points
}

// NewMelExtractor builds an extractor for the given detector configuration.
func NewMelExtractor(cfg conf.DetectorConfig) (*MelExtractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(err).
			Component("features").
			Category(errors.CategoryConfiguration).
			Build()
	}

	e := &MelExtractor{
		sampleRate:    cfg.SampleRate,
		nfft:          cfg.NFFT,
		hop:           cfg.HopLength,
		nMels:         cfg.MelBins,
		frames:        cfg.Frames,
		windowSamples: cfg.WindowSamples(),
		hamming:       cfg.HammingWindow,
		standardScale: cfg.StandardScale,
		filters:       melFilterbank(cfg.SampleRate, cfg.NFFT, cfg.MelBins, 0, float64(cfg.SampleRate)/2),
		// go-dsp windows are symmetric; the periodic form is the first n
		// points of the n+1 point window.
		hann: window.Hann(cfg.NFFT + 1)[:cfg.NFFT],
	}
	if e.hamming {
		e.signalWin = window.Hamming(e.windowSamples)
	}
	return e, nil
}

// Frames returns the number of STFT frames produced per window.
func (e *MelExtractor) Frames() int { return e.frames }

// MelBins returns the number of mel bands.
func (e *MelExtractor) MelBins() int { return e.nMels }

// Extract implements Extractor.
func (e *MelExtractor) Extract(waveform []float32) (Matrix, error) {
	if len(waveform) == 0 {
		return nil, errors.Newf("empty waveform").
			Component("features").
			Category(errors.CategoryFeature).
			Build()
	}
	if len(waveform) != e.windowSamples {
		return nil, errors.Newf("waveform has %d samples, want %d", len(waveform), e.windowSamples).
			Component("features").
			Category(errors.CategoryFeature).
			Build()
	}

	signal := make([]float64, len(waveform))
	for i, v := range waveform {
		signal[i] = float64(v)
	}

	if e.hamming {
		for i := range signal {
			signal[i] *= e.signalWin[i]
		}
	}
	if e.standardScale {
		standardize(signal)
	}

	padded := reflectPad(signal, e.nfft/2)
	nFrames := 1 + (len(padded)-e.nfft)/e.hop
	if nFrames != e.frames {
		return nil, errors.Newf("STFT produced %d frames, want %d", nFrames, e.frames).
			Component("features").
			Category(errors.CategoryFeature).
			Build()
	}

	out := make(Matrix, e.nMels)
	for m := range out {
		out[m] = make([]float32, nFrames)
	}

	nBins := e.nfft/2 + 1
	frame := make([]float64, e.nfft)
	power := make([]float64, nBins)
	for t := range nFrames {
		start := t * e.hop
		for i := range frame {
			frame[i] = padded[start+i] * e.hann[i]
		}
		spectrum := fft.FFTReal(frame)
		for k := range power {
			mag := cmplx.Abs(spectrum[k])
			power[k] = mag * mag
		}
		for m, weights := range e.filters {
			var sum float64
			for k, w := range weights {
				if w != 0 {
					sum += w * power[k]
				}
			}
			out[m][t] = float32(sum)
		}
	}

	return out, nil
}

// standardize scales x to zero mean and unit variance in place. A constant
// signal is only centered.
func standardize(x []float64) {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(x)))

	for i := range x {
		x[i] -= mean
		if std > 0 {
			x[i] /= std
		}
	}
}

// reflectPad mirrors pad samples at each end without repeating the edge sample.
func reflectPad(x []float64, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	copy(out[pad:], x)
	for i := range pad {
		out[pad-1-i] = x[reflectIndex(i+1, n)]
		out[pad+n+i] = x[reflectIndex(n-2-i, n)]
	}
	return out
}

// reflectIndex folds i into [0,n) by reflection about the end samples.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
