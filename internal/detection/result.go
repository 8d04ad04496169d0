package detection

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Result is one classified inference window. It is never mutated after
// Build returns it; Scores hands out copies.
type Result struct {
	ID         string
	Label      EventType
	Confidence float32
	From       time.Time // approximate window start
	To         time.Time // wall clock when inference started
	SourceID   string

	scores map[EventType]float32
}

// Scores returns a copy of the per-class scores. All event types are present.
func (r Result) Scores() map[EventType]float32 {
	return maps.Clone(r.scores)
}

// Score returns the score for one class.
func (r Result) Score(e EventType) float32 {
	return r.scores[e]
}

// Duration returns the length of the window the result covers.
func (r Result) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// WithSourceID returns a copy of r attributed to sourceID.
func (r Result) WithSourceID(sourceID string) Result {
	r.SourceID = sourceID
	r.scores = maps.Clone(r.scores)
	return r
}

// resultJSON is the wire form of a Result.
type resultJSON struct {
	ID         string             `json:"id"`
	Label      string             `json:"label"`
	Confidence float32            `json:"confidence"`
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	SourceID   string             `json:"source_id,omitempty"`
	Scores     map[string]float32 `json:"scores"`
}

// MarshalJSON encodes labels as strings.
func (r Result) MarshalJSON() ([]byte, error) {
	scores := make(map[string]float32, len(r.scores))
	for k, v := range r.scores {
		scores[k.String()] = v
	}
	return json.Marshal(resultJSON{
		ID:         r.ID,
		Label:      r.Label.String(),
		Confidence: r.Confidence,
		From:       r.From,
		To:         r.To,
		SourceID:   r.SourceID,
		Scores:     scores,
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var wire resultJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	label, err := ParseEventType(wire.Label)
	if err != nil {
		return err
	}
	scores := make(map[EventType]float32, len(wire.Scores))
	for k, v := range wire.Scores {
		e, err := ParseEventType(k)
		if err != nil {
			return err
		}
		scores[e] = v
	}
	*r = Result{
		ID:         wire.ID,
		Label:      label,
		Confidence: wire.Confidence,
		From:       wire.From,
		To:         wire.To,
		SourceID:   wire.SourceID,
		scores:     scores,
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
