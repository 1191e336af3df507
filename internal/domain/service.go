// Package domain defines the business logic for the pet care tracker.
package domain

import (
	"context"
	"time"
)

// ActivityRepository captures persistence operations. Implementations are
// append-only and return activities in insertion order.
type ActivityRepository interface {
	Append(ctx context.Context, activity Activity) (string, error)
	ListAll(ctx context.Context) ([]Activity, error)
	ListBetween(ctx context.Context, start, end time.Time) ([]Activity, error)
}

// Publisher receives accepted activities after they are stored.
// Publish must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, activity Activity)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Activity) {}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPublisher registers a sink for accepted activities.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithFutureSkew overrides the tolerated clock skew for timestamps.
func WithFutureSkew(skew time.Duration) Option {
	return func(s *Service) {
		s.skew = skew
	}
}

// WithGoals overrides the daily goals used for progress reporting.
func WithGoals(goals DailyTotals) Option {
	return func(s *Service) {
		s.goals = goals
	}
}

// WithReminderHour sets the local hour from which a missing walk raises a reminder.
func WithReminderHour(hour int) Option {
	return func(s *Service) {
		s.reminderHour = hour
	}
}

// DefaultGoals mirror the scale of the dashboard bars.
var DefaultGoals = DailyTotals{WalkMinutes: 60, Meals: 4, Meds: 4}

// DefaultReminderHour is the local hour after which an unwalked day is flagged.
const DefaultReminderHour = 18

// Service orchestrates activity workflows.
type Service struct {
	repo         ActivityRepository
	calendar     Calendar
	validator    *Validator
	publisher    Publisher
	now          func() time.Time
	skew         time.Duration
	goals        DailyTotals
	reminderHour int
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, calendar Calendar, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		calendar:     calendar,
		publisher:    noopPublisher{},
		now:          time.Now,
		skew:         DefaultFutureSkew,
		goals:        DefaultGoals,
		reminderHour: DefaultReminderHour,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(calendar, s.now, s.skew)
	return s
}

// Calendar exposes the reference calendar.
func (s *Service) Calendar() Calendar {
	return s.calendar
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// LogActivity validates the submission and appends it to the store.
func (s *Service) LogActivity(ctx context.Context, sub Submission) (*Activity, error) {
	activity, err := s.validator.Validate(sub)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.Append(ctx, activity)
	if err != nil {
		return nil, internalFault("append activity", err)
	}
	activity.ID = id

	s.publisher.Publish(ctx, activity)
	return &activity, nil
}

// ListActivities returns every activity, or only those on day when day is non-nil.
func (s *Service) ListActivities(ctx context.Context, day *time.Time) ([]Activity, error) {
	if day == nil {
		items, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, internalFault("list activities", err)
		}
		return items, nil
	}

	start, end := s.calendar.DayWindow(*day)
	items, err := s.repo.ListBetween(ctx, start, end)
	if err != nil {
		return nil, internalFault("list activities", err)
	}
	return items, nil
}
