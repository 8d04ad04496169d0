// Package detection builds detection results from model scores and keeps
// them in a time-ordered store.
package detection

import (
	"fmt"
	"strings"
)

// EventType is one of the non-verbal sound classes the model recognizes.
// Declaration order matches the model output order.
type EventType int

const (
	Cough EventType = iota
	Sneeze
	NoseBlowing
	Scream
	Pant
	Moan
	Others
)

// NumEventTypes is the number of classes scored by the model.
const NumEventTypes = 7

var eventNames = [NumEventTypes]string{
	"COUGH",
	"SNEEZE",
	"NOSE_BLOWING",
	"SCREAM",
	"PANT",
	"MOAN",
	"OTHERS",
}

// EventTypes returns all event types in declaration order.
func EventTypes() []EventType {
	types := make([]EventType, NumEventTypes)
	for i := range types {
		types[i] = EventType(i)
	}
	return types
}

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	return e >= 0 && int(e) < NumEventTypes
}

func (e EventType) String() string {
	if !e.Valid() {
		return fmt.Sprintf("EventType(%d)", int(e))
	}
	return eventNames[e]
}

// ParseEventType parses a label case-insensitively. Hyphens and spaces are
// accepted in place of underscores.
func ParseEventType(s string) (EventType, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for i, name := range eventNames {
		if name == norm {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// MarshalText encodes the event type as its label.
func (e EventType) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid event type %d", int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText decodes a label.
func (e *EventType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventType(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
