package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxPetNameLength bounds the trimmed pet name, in characters.
	MaxPetNameLength = 50
	// DefaultFutureSkew is how far ahead of server time a timestamp may be.
	DefaultFutureSkew = 60 * time.Second
)

// Submission is a candidate activity as received from a caller.
// Amount carries the raw text of a JSON number or numeric string.
type Submission struct {
	PetName   string
	Type      string
	Amount    string
	Timestamp string
}

// Validator checks submissions against field and temporal rules.
type Validator struct {
	calendar Calendar
	now      func() time.Time
	skew     time.Duration
}

// NewValidator constructs a Validator. A nil clock uses time.Now.
func NewValidator(calendar Calendar, now func() time.Time, skew time.Duration) *Validator {
	if now == nil {
		now = time.Now
	}
	if skew < 0 {
		skew = DefaultFutureSkew
	}
	return &Validator{calendar: calendar, now: now, skew: skew}
}

// Validate applies the rules in order and returns the first failure.
// The returned Activity has no ID; the store assigns one on append.
func (v *Validator) Validate(sub Submission) (Activity, error) {
	name := strings.TrimSpace(sub.PetName)
	if name == "" || utf8.RuneCountInString(name) > MaxPetNameLength {
		return Activity{}, InvalidField("petName")
	}

	kind := ActivityType(sub.Type)
	if !kind.Valid() {
		return Activity{}, InvalidField("type")
	}

	amount, ok := parseAmount(sub.Amount)
	if !ok {
		return Activity{}, InvalidField("amount")
	}

	ts, ok := v.calendar.ParseTimestamp(sub.Timestamp)
	if !ok {
		return Activity{}, InvalidField("timestamp")
	}

	now := v.now()
	if ts.After(now.Add(v.skew)) {
		return Activity{}, ErrFutureTimestamp
	}

	return Activity{
		PetName:    name,
		Type:       kind,
		Amount:     amount,
		Timestamp:  ts.Truncate(time.Millisecond),
		RecordedAt: now.UTC(),
	}, nil
}

func parseAmount(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, value > 0
}
