// Package events defines the payloads exchanged with Kafka.
package events

import (
	"encoding/json"
	"time"

	"example.com/petcare/internal/domain"
)

// Event types carried in the event_type header.
const (
	TypeActivityLogged    = "pet_activity.logged"
	TypeActivitySubmitted = "pet_activity.submitted"
)

// ActivityLogged is emitted after an activity is accepted into the store.
type ActivityLogged struct {
	ActivityID string    `json:"activity_id"`
	PetName    string    `json:"pet_name"`
	Type       string    `json:"type"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewActivityLogged maps a stored activity to its event payload.
func NewActivityLogged(a domain.Activity) ActivityLogged {
	return ActivityLogged{
		ActivityID: a.ID,
		PetName:    a.PetName,
		Type:       string(a.Type),
		Amount:     a.Amount,
		OccurredAt: a.Timestamp.UTC(),
		RecordedAt: a.RecordedAt.UTC(),
	}
}

// ActivitySubmitted is produced by devices (smart feeders, collars) that log
// activities on the owner's behalf. Amount keeps the raw JSON so that numeric
// strings are accepted like on the HTTP path.
type ActivitySubmitted struct {
	PetName string          `json:"petName"`
	Type    string          `json:"type"`
	Amount  json.RawMessage `json:"amount"`
	IsoDate string          `json:"isoDate"`
	Source  string          `json:"source,omitempty"`
}

// Submission converts the payload to a domain submission.
func (e ActivitySubmitted) Submission() domain.Submission {
	return domain.Submission{
		PetName:   e.PetName,
		Type:      e.Type,
		Amount:    RawAmount(e.Amount),
		Timestamp: e.IsoDate,
	}
}

// RawAmount returns the text of a JSON number or the contents of a JSON
// string. Any other JSON value yields text that fails numeric parsing.
func RawAmount(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
