package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReplyPrefix marks assistant replies that were built from the day's totals.
const ReplyPrefix = "Context-aware reply → "

// DefaultHistoryWindow is the number of history entries rendered as context.
const DefaultHistoryWindow = 5

// ChatHistory stores chat entries in append order.
type ChatHistory interface {
	Append(ctx context.Context, entry ChatEntry) error
	Last(ctx context.Context, n int) ([]ChatEntry, error)
}

// TodaySummarizer yields the aggregation of the current day.
type TodaySummarizer interface {
	Today(ctx context.Context) (DaySummary, error)
}

// ReplyRule pairs a predicate with a response template. Rules are evaluated
// in order and the first match wins.
type ReplyRule struct {
	Name    string
	Matches func(message string, today DailyTotals) bool
	Render  func(today DailyTotals) string
}

// DefaultRules is the assistant's decision list.
var DefaultRules = []ReplyRule{
	{
		Name: "walk_suggestion",
		Matches: func(msg string, today DailyTotals) bool {
			return containsAny(msg, "walk") && today.WalkMinutes == 0
		},
		Render: func(DailyTotals) string {
			return "No walks logged yet today. A 20–30 minute walk would be great."
		},
	},
	{
		Name:    "walk_total",
		Matches: func(msg string, _ DailyTotals) bool { return containsAny(msg, "walk") },
		Render: func(today DailyTotals) string {
			return fmt.Sprintf("Today's total walk time is %s min.", formatAmount(today.WalkMinutes))
		},
	},
	{
		Name:    "meals",
		Matches: func(msg string, _ DailyTotals) bool { return containsAny(msg, "meal", "food") },
		Render: func(today DailyTotals) string {
			return fmt.Sprintf("Meals recorded today: %s.", formatAmount(today.Meals))
		},
	},
	{
		Name:    "meds",
		Matches: func(msg string, _ DailyTotals) bool { return containsAny(msg, "med", "pill", "medicine") },
		Render: func(today DailyTotals) string {
			return fmt.Sprintf("Medication doses recorded today: %s.", formatAmount(today.Meds))
		},
	},
	{
		Name:    "summary",
		Matches: func(msg string, _ DailyTotals) bool { return containsAny(msg, "summary", "today") },
		Render: func(today DailyTotals) string {
			return fmt.Sprintf("Today: walk %s min, meals %s, meds %s.",
				formatAmount(today.WalkMinutes), formatAmount(today.Meals), formatAmount(today.Meds))
		},
	},
}

var fallbackRule = ReplyRule{
	Name:    "capabilities",
	Matches: func(string, DailyTotals) bool { return true },
	Render: func(DailyTotals) string {
		return "I'm tracking activities and can answer about walks, meals, meds, or give you today's summary."
	},
}

// Classify returns the first rule matching message. It never fails: a
// capability description is the fallback.
func Classify(rules []ReplyRule, message string, today DailyTotals) ReplyRule {
	lowered := strings.ToLower(message)
	for _, rule := range rules {
		if rule.Matches(lowered, today) {
			return rule
		}
	}
	return fallbackRule
}

// ChatReply is the assistant answer plus the context it was built from.
type ChatReply struct {
	Reply        string
	Rule         string
	Today        DailyTotals
	LastMessages string
}

// Responder answers chat messages from today's totals and records the exchange.
type Responder struct {
	history ChatHistory
	summary TodaySummarizer
	rules   []ReplyRule
	window  int
	now     func() time.Time
}

// NewResponder constructs a Responder using DefaultRules.
func NewResponder(history ChatHistory, summary TodaySummarizer, window int, now func() time.Time) *Responder {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Responder{history: history, summary: summary, rules: DefaultRules, window: window, now: now}
}

// Reply records message, selects a canned answer and records the answer.
// The user entry is written first; if today's totals or the recent history
// cannot be read afterwards, the entry stays in history without a reply.
func (r *Responder) Reply(ctx context.Context, message string) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	now := r.now().UTC()
	if err := r.history.Append(ctx, ChatEntry{Timestamp: now, Role: ChatRoleUser, Text: message}); err != nil {
		return nil, internalFault("record user message", err)
	}

	today, err := r.summary.Today(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := r.history.Last(ctx, r.window)
	if err != nil {
		return nil, internalFault("read chat history", err)
	}

	rule := Classify(r.rules, message, today.Totals)
	reply := ReplyPrefix + rule.Render(today.Totals)

	if err := r.history.Append(ctx, ChatEntry{Timestamp: now, Role: ChatRoleAssistant, Text: reply}); err != nil {
		return nil, internalFault("record assistant reply", err)
	}

	return &ChatReply{
		Reply:        reply,
		Rule:         rule.Name,
		Today:        today.Totals,
		LastMessages: RenderHistory(recent),
	}, nil
}

// RenderHistory formats entries as "role: text" joined by " | ".
func RenderHistory(entries []ChatEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Role, e.Text))
	}
	return strings.Join(parts, " | ")
}

func containsAny(lowered string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
