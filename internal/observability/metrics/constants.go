// Package metrics provides the Prometheus collectors of the detector and
// the MQTT publisher.
package metrics

// Inference outcome label values of homeaudio_inferences_total.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusInvalid = "invalid"
)

// Error category label values used when an error carries no category.
const (
	ErrorCategoryNone    = "none"
	ErrorCategoryUnknown = "unknown"
)
