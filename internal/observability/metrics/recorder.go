package metrics

import "time"

// DetectorRecorder is the set of measurements the detector reports.
// Components depend on this interface rather than on Prometheus types.
type DetectorRecorder interface {
	RecordDetection(label string)
	RecordInference(duration time.Duration, err error)
	RecordFeatureExtraction(duration time.Duration)
	RecordInvalidOutput()
	SetModelLoaded(loaded bool)
	SetBufferFill(ratio float64)
	RecordDroppedChunks(n int)
	SetResultsStored(n int)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) RecordDetection(string) {}
func (NopRecorder) RecordInference(time.Duration, error) {}
func (NopRecorder) RecordFeatureExtraction(time.Duration) {}
func (NopRecorder) RecordInvalidOutput() {}
func (NopRecorder) SetModelLoaded(bool) {}
func (NopRecorder) SetBufferFill(float64) {}
func (NopRecorder) RecordDroppedChunks(int) {}
func (NopRecorder) SetResultsStored(int) {}

var (
	_ DetectorRecorder = (*DetectorMetrics)(nil)
	_ DetectorRecorder = NopRecorder{}
)
