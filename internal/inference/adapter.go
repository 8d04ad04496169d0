// Package inference runs the audio event model on a prepared input tensor.
package inference

import (
	"github.com/deeplyinc/homeaudio-go/internal/conf"
)

// Adapter runs one forward pass. Input is the flattened model tensor;
// the output is the flat score vector as produced by the model.
type Adapter interface {
	Predict(input []float32) ([]float32, error)
	Close() error
}

// Loader constructs an Adapter for a detector configuration.
type Loader func(cfg conf.DetectorConfig) (Adapter, error)

// Func adapts a plain function to the Adapter interface.
type Func func(input []float32) ([]float32, error)

// Predict calls f(input).
func (f Func) Predict(input []float32) ([]float32, error) {
	return f(input)
}

// Close is a no-op.
func (f Func) Close() error { return nil }

// Static returns an adapter that always yields a copy of scores.
func Static(scores ...float32) Func {
	return func([]float32) ([]float32, error) {
		out := make([]float32, len(scores))
		copy(out, scores)
		return out, nil
	}
}
