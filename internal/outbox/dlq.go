package outbox

import (
	"context"
	"sync"
	"time"
)

// DeadLetter is an event whose delivery failed.
type DeadLetter struct {
	Message       Message
	Reason        string
	RetryCount    int
	NextRetryAt   time.Time
	QuarantinedAt *time.Time
}

// DefaultMaxQuarantined bounds how many quarantined entries are kept for inspection.
const DefaultMaxQuarantined = 256

// DeadLetters retries failed events with exponential backoff and quarantines
// entries that exhaust their retries. Only the most recent quarantined
// entries are kept; older ones are evicted.
type DeadLetters struct {
	mu             sync.Mutex
	entries        []*DeadLetter
	quarantined    []*DeadLetter
	maxRetries     int
	maxQuarantined int
	baseDelay      time.Duration
	now            func() time.Time
}

// NewDeadLetters constructs a list with the provided retry configuration.
func NewDeadLetters(maxRetries int, baseDelay time.Duration) *DeadLetters {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DeadLetters{
		maxRetries:     maxRetries,
		maxQuarantined: DefaultMaxQuarantined,
		baseDelay:      baseDelay,
		now:            time.Now,
	}
}

// Add records a failed message, due for retry immediately.
func (l *DeadLetters) Add(msg Message, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, &DeadLetter{Message: msg, Reason: reason, NextRetryAt: l.now()})
	dlqCounter.WithLabelValues(msg.Topic).Inc()
	l.updateBacklog()
}

// RunOnce redelivers up to batchSize due entries and returns how many were
// delivered. Delivered entries are removed; failures are rescheduled or
// quarantined once the retry limit is reached.
func (l *DeadLetters) RunOnce(ctx context.Context, batchSize int, deliver func(context.Context, []Message) error) (int, error) {
	due := l.due(batchSize)

	processed := 0
	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		err := deliver(ctx, []Message{entry.Message})
		l.settle(entry, err)
		if err == nil {
			processed++
		}
	}
	return processed, nil
}

// Snapshot returns a copy of the entries awaiting retry followed by the
// retained quarantined entries.
func (l *DeadLetters) Snapshot() []DeadLetter {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]DeadLetter, 0, len(l.entries)+len(l.quarantined))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	for _, e := range l.quarantined {
		out = append(out, *e)
	}
	return out
}

// Backlog reports how many entries are awaiting retry.
func (l *DeadLetters) Backlog() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// due selects up to batchSize entries ready for retry and moves entries that
// exhausted their retries to the quarantine.
func (l *DeadLetters) due(batchSize int) []*DeadLetter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]*DeadLetter, 0)
	active := l.entries[:0]
	for _, e := range l.entries {
		if len(out) >= batchSize || e.NextRetryAt.After(now) {
			active = append(active, e)
			continue
		}
		if e.RetryCount >= l.maxRetries {
			l.quarantine(e, now)
			continue
		}
		active = append(active, e)
		out = append(out, e)
	}
	for i := len(active); i < len(l.entries); i++ {
		l.entries[i] = nil
	}
	l.entries = active
	l.updateBacklog()
	return out
}

func (l *DeadLetters) quarantine(e *DeadLetter, now time.Time) {
	ts := now
	e.QuarantinedAt = &ts
	e.Reason = "retry limit reached"
	dlqQuarantinedCounter.WithLabelValues(e.Message.Topic, e.Message.EventType).Inc()

	l.quarantined = append(l.quarantined, e)
	if over := len(l.quarantined) - l.maxQuarantined; over > 0 {
		l.quarantined = append([]*DeadLetter(nil), l.quarantined[over:]...)
	}
}

func (l *DeadLetters) settle(entry *DeadLetter, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		for i, e := range l.entries {
			if e == entry {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				break
			}
		}
		dlqProcessedCounter.WithLabelValues(entry.Message.Topic, entry.Message.EventType).Inc()
		l.updateBacklog()
		return
	}

	entry.RetryCount++
	entry.Reason = err.Error()
	entry.NextRetryAt = l.now().Add(l.backoffDelay(entry.RetryCount))
	dlqRetryCounter.WithLabelValues(entry.Message.Topic, entry.Message.EventType).Inc()
}

// backoffDelay calculates exponential backoff capped at one hour.
func (l *DeadLetters) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * l.baseDelay
	if delay > time.Hour || delay <= 0 {
		delay = time.Hour
	}
	return delay
}

func (l *DeadLetters) updateBacklog() {
	dlqBacklogGauge.Set(float64(len(l.entries)))
}
