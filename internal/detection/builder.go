package detection

import (
	"time"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
)

// ValidScores reports whether a model output holds at least one score per class.
func ValidScores(scores []float32) bool {
	return len(scores) >= NumEventTypes
}

// Build classifies one window. scores must hold exactly NumEventTypes values
// in EventType order. When several classes share the highest score the
// earliest declared one wins.
func Build(scores []float32, from, to time.Time) (Result, error) {
	if len(scores) != NumEventTypes {
		return Result{}, errors.Newf("got %d scores, want %d", len(scores), NumEventTypes).
			Component("detection").
			Category(errors.CategoryValidation).
			Build()
	}
	if to.Before(from) {
		return Result{}, errors.Newf("window end %v precedes start %v", to, from).
			Component("detection").
			Category(errors.CategoryValidation).
			Build()
	}

	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}

	perClass := make(map[EventType]float32, NumEventTypes)
	for i, s := range scores {
		perClass[EventType(i)] = s
	}

	return Result{
		ID:         newID(),
		Label:      EventType(best),
		Confidence: scores[best],
		From:       from,
		To:         to,
		scores:     perClass,
	}, nil
}
