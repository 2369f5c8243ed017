package fsrs

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultDecay is the forgetting curve decay used when a card carries none (FSRS-4.5).
const DefaultDecay = 0.5

// MemoryState is the FSRS state stored in a card's data column.
type MemoryState struct {
	Stability        float64 `json:"s,omitempty"`
	Difficulty       float64 `json:"d,omitempty"`
	DesiredRetention float64 `json:"dr,omitempty"`
	Decay            float64 `json:"decay,omitempty"`
	// LastReview is the epoch seconds of the last review, when the client recorded it.
	LastReview int64 `json:"lrt,omitempty"`
}

// PayloadEmpty reports whether a data column carries nothing worth copying.
func PayloadEmpty(data string) bool {
	trimmed := strings.TrimSpace(data)
	return trimmed == "" || trimmed == "{}"
}

// ParseMemoryState decodes a card's data column. Keys the scheduler does not
// own (custom data, queue position) are ignored.
func ParseMemoryState(data string) (MemoryState, error) {
	var ms MemoryState
	if PayloadEmpty(data) {
		return ms, nil
	}
	if err := json.Unmarshal([]byte(data), &ms); err != nil {
		return ms, fmt.Errorf("failed to parse memory state: %w", err)
	}
	return ms, nil
}

// IsEmpty reports whether the card has never been scheduled by FSRS.
func (ms MemoryState) IsEmpty() bool {
	return ms.Stability == 0 && ms.Difficulty == 0
}

// decay returns the card's decay or the default.
func (ms MemoryState) decay() float64 {
	if ms.Decay > 0 {
		return ms.Decay
	}
	return DefaultDecay
}

// Retrievability is the probability of recall after elapsedDays, following
// R(t) = (1 + factor * t / S) ^ -decay with factor chosen so R(S) = 0.9.
func (ms MemoryState) Retrievability(elapsedDays float64) float64 {
	if ms.Stability <= 0 {
		return 0
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	decay := ms.decay()
	factor := math.Pow(0.9, -1/decay) - 1
	return math.Pow(1+factor*elapsedDays/ms.Stability, -decay)
}

// RetrievabilityAt computes Retrievability from the recorded last review time.
// It returns false when the state has no last review.
func (ms MemoryState) RetrievabilityAt(now time.Time) (float64, bool) {
	if ms.IsEmpty() || ms.LastReview == 0 {
		return 0, false
	}
	elapsed := now.Sub(time.Unix(ms.LastReview, 0)).Hours() / 24
	return ms.Retrievability(elapsed), true
}
