package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityType enumerates the pet-care events that can be logged.
type ActivityType string

const (
	ActivityTypeWalk       ActivityType = "walk"
	ActivityTypeMeal       ActivityType = "meal"
	ActivityTypeMedication ActivityType = "medication"
)

// Valid reports whether t belongs to the closed set of activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTypeWalk, ActivityTypeMeal, ActivityTypeMedication:
		return true
	}
	return false
}

// Activity is one accepted pet-care event. Values are never mutated once stored.
type Activity struct {
	ID         string
	PetName    string
	Type       ActivityType
	Amount     float64
	Timestamp  time.Time
	RecordedAt time.Time
}

// NewActivityID composes an identifier from a store-assigned sequence number
// and a random suffix. The sequence alone guarantees uniqueness within a
// store; the suffix keeps ids opaque across restarts.
func NewActivityID(seq int64) string {
	return fmt.Sprintf("%d_%s", seq, uuid.NewString()[:8])
}

// DailyTotals holds per-type sums for one calendar day.
type DailyTotals struct {
	WalkMinutes float64
	Meals       float64
	Meds        float64
}

// Add folds a into the bucket for its type.
func (t *DailyTotals) Add(a Activity) {
	switch a.Type {
	case ActivityTypeWalk:
		t.WalkMinutes += a.Amount
	case ActivityTypeMeal:
		t.Meals += a.Amount
	case ActivityTypeMedication:
		t.Meds += a.Amount
	}
}

// ChatRole identifies the author of a chat entry.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatEntry is one side of a chat exchange.
type ChatEntry struct {
	Timestamp time.Time
	Role      ChatRole
	Text      string
}
