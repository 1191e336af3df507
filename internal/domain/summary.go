package domain

import (
	"context"
	"math"
	"time"
)

// DaySummary is the aggregation of one calendar day.
type DaySummary struct {
	Date         string
	Totals       DailyTotals
	Activities   []Activity
	WalkReminder bool
	Progress     DailyTotals
}

// Summarize recomputes totals for the calendar day containing day.
// Nothing is cached: every call reads the current store contents.
func (s *Service) Summarize(ctx context.Context, day time.Time) (DaySummary, error) {
	start, end := s.calendar.DayWindow(day)
	items, err := s.repo.ListBetween(ctx, start, end)
	if err != nil {
		return DaySummary{}, internalFault("summarize", err)
	}
	if items == nil {
		items = []Activity{}
	}

	var totals DailyTotals
	for _, a := range items {
		totals.Add(a)
	}

	now := s.now().In(s.calendar.Location())
	isToday := s.calendar.FormatDate(now) == s.calendar.FormatDate(start)

	return DaySummary{
		Date:         s.calendar.FormatDate(start),
		Totals:       totals,
		Activities:   items,
		WalkReminder: isToday && now.Hour() >= s.reminderHour && totals.WalkMinutes == 0,
		Progress:     progress(totals, s.goals),
	}, nil
}

// Today summarises the current date in the reference time zone.
func (s *Service) Today(ctx context.Context) (DaySummary, error) {
	return s.Summarize(ctx, s.now())
}

func progress(totals, goals DailyTotals) DailyTotals {
	return DailyTotals{
		WalkMinutes: percentOf(totals.WalkMinutes, goals.WalkMinutes),
		Meals:       percentOf(totals.Meals, goals.Meals),
		Meds:        percentOf(totals.Meds, goals.Meds),
	}
}

func percentOf(value, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return math.Min(100, math.Round(value/goal*100))
}
