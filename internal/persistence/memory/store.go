// Package memory provides process-lifetime storage for activities and chat history.
package memory

import (
	"context"
	"sync"
	"time"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/observability"
)

// ActivityStore is an append-only, insertion-ordered activity log.
type ActivityStore struct {
	mu    sync.RWMutex
	seq   int64
	items []domain.Activity
}

// NewActivityStore constructs an empty store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{}
}

// Append implements domain.ActivityRepository.
func (s *ActivityStore) Append(ctx context.Context, activity domain.Activity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	activity.ID = domain.NewActivityID(s.seq)
	s.items = append(s.items, activity)
	observability.RecordActivityPersisted(activity.RecordedAt)
	return activity.ID, nil
}

// ListAll returns a copy of every stored activity.
func (s *ActivityStore) ListAll(ctx context.Context) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Activity, len(s.items))
	copy(out, s.items)
	return out, nil
}

// ListBetween returns activities whose timestamp lies in [start, end].
func (s *ActivityStore) ListBetween(ctx context.Context, start, end time.Time) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Activity, 0)
	for _, a := range s.items {
		if a.Timestamp.Before(start) || a.Timestamp.After(end) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// ChatHistory keeps chat entries in append order.
type ChatHistory struct {
	mu      sync.RWMutex
	entries []domain.ChatEntry
}

// NewChatHistory constructs an empty history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{}
}

// Append implements domain.ChatHistory.
func (h *ChatHistory) Append(ctx context.Context, entry domain.ChatEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	return nil
}

// Last returns up to n of the most recent entries, oldest first.
func (h *ChatHistory) Last(ctx context.Context, n int) ([]domain.ChatEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	slice := h.entries
	if n >= 0 && len(slice) > n {
		slice = slice[len(slice)-n:]
	}
	out := make([]domain.ChatEntry, len(slice))
	copy(out, slice)
	return out, nil
}

// Len reports the number of stored entries.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
