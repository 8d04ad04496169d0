package mqtt

import (
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/detection"
)

// EventDTO is the JSON payload published for each detection.
//
// Field names are consumed by home automation rules; add fields rather
// than renaming existing ones.
type EventDTO struct {
	ID         string             `json:"id"`
	Label      string             `json:"label"`
	Confidence float32            `json:"confidence"`
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	SourceID   string             `json:"sourceId,omitempty"`
	Node       string             `json:"node,omitempty"`
	Scores     map[string]float32 `json:"scores"`
}

// NewEventDTO converts a result into its MQTT payload.
func NewEventDTO(r detection.Result, node string) EventDTO {
	scores := make(map[string]float32, detection.NumEventTypes)
	for label, score := range r.Scores() {
		scores[label.String()] = score
	}
	return EventDTO{
		ID:         r.ID,
		Label:      r.Label.String(),
		Confidence: r.Confidence,
		From:       r.From,
		To:         r.To,
		SourceID:   r.SourceID,
		Node:       node,
		Scores:     scores,
	}
}
