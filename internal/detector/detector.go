// Package detector turns a stream of PCM chunks into detection results.
//
// A Detector keeps a sliding window of the most recent samples. Once the
// window is full every further chunk triggers one inference pass over the
// current window, and the classified result is appended to an in-memory
// store that callers query by time range.
package detector

import (
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/detection"
)

// Detector is implemented by every detector variant.
// None of the methods return errors or panic; failures are logged and the
// affected window is skipped.
type Detector interface {
	// Accumulate appends a chunk of samples and runs inference when the
	// window is full.
	Accumulate(chunk []int16)

	// GetResults returns stored results with From after from and To before
	// to. Nil bounds are open.
	GetResults(from, to *time.Time) []detection.Result

	// ClearResults drops all stored results.
	ClearResults()
}

// State is the window state of a detector.
type State int32

const (
	// StateAccumulating means the window has not been filled yet.
	StateAccumulating State = iota
	// StateReady means the window is full; every chunk yields an inference.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ResultSink receives every result after it is stored. Publish must not
// block for long; it runs on the inference goroutine.
type ResultSink interface {
	Publish(r detection.Result)
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(r detection.Result)

// Publish calls f(r).
func (f SinkFunc) Publish(r detection.Result) { f(r) }

// Status is a point-in-time view of a detector for health reporting.
type Status struct {
	State       State   `json:"-"`
	ModelLoaded bool    `json:"model_loaded"`
	Results     int     `json:"results"`
	WindowFill  float64 `json:"window_fill"`
	SourceID    string  `json:"source_id,omitempty"`
}

// Service is a Detector that can also report its status and latest result.
// The HTTP API and the CLI work against this interface.
type Service interface {
	Detector
	Latest() (detection.Result, bool)
	Status() Status
}
