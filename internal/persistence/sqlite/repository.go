// Package sqlite stores activities and chat history in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/observability"
)

const driverName = "sqlite"

// Repository implements domain.ActivityRepository and domain.ChatHistory.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serialises writers; sqlite allows a single writer anyway
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pet_activities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_id TEXT NOT NULL UNIQUE,
			pet_name TEXT NOT NULL,
			activity_type TEXT NOT NULL CHECK (activity_type IN ('walk', 'meal', 'medication')),
			amount REAL NOT NULL CHECK (amount > 0),
			occurred_at_ms INTEGER NOT NULL,
			recorded_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pet_activities_occurred ON pet_activities(occurred_at_ms);`,
		`CREATE TABLE IF NOT EXISTS chat_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Append inserts an activity and returns its generated id.
func (r *Repository) Append(ctx context.Context, activity domain.Activity) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pet_activities(activity_id, pet_name, activity_type, amount, occurred_at_ms, recorded_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, activity.PetName, string(activity.Type), activity.Amount, activity.Timestamp.UnixMilli(), activity.RecordedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert activity: %w", err)
	}
	observability.RecordActivityPersisted(activity.RecordedAt)
	return id, nil
}

// ListAll returns every activity in insertion order.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Activity, error) {
	return r.queryActivities(ctx, `
		SELECT activity_id, pet_name, activity_type, amount, occurred_at_ms, recorded_at_ms
		FROM pet_activities
		ORDER BY seq ASC
	`)
}

// ListBetween returns activities whose timestamp lies in [start, end], in insertion order.
func (r *Repository) ListBetween(ctx context.Context, start, end time.Time) ([]domain.Activity, error) {
	return r.queryActivities(ctx, `
		SELECT activity_id, pet_name, activity_type, amount, occurred_at_ms, recorded_at_ms
		FROM pet_activities
		WHERE occurred_at_ms >= ? AND occurred_at_ms <= ?
		ORDER BY seq ASC
	`, start.UnixMilli(), end.UnixMilli())
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var (
			a          domain.Activity
			kind       string
			occurredMs int64
			recordedMs int64
		)
		if err := rows.Scan(&a.ID, &a.PetName, &kind, &a.Amount, &occurredMs, &recordedMs); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Type = domain.ActivityType(kind)
		a.Timestamp = time.UnixMilli(occurredMs).UTC()
		a.RecordedAt = time.UnixMilli(recordedMs).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) appendChat(ctx context.Context, entry domain.ChatEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_entries(role, body, created_at_ms) VALUES (?, ?, ?)
	`, string(entry.Role), entry.Text, entry.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert chat entry: %w", err)
	}
	return nil
}

func (r *Repository) lastChat(ctx context.Context, n int) ([]domain.ChatEntry, error) {
	if n <= 0 {
		return []domain.ChatEntry{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT role, body, created_at_ms FROM (
			SELECT seq, role, body, created_at_ms FROM chat_entries ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query chat entries: %w", err)
	}
	defer rows.Close()

	out := []domain.ChatEntry{}
	for rows.Next() {
		var (
			e         domain.ChatEntry
			role      string
			createdMs int64
		)
		if err := rows.Scan(&role, &e.Text, &createdMs); err != nil {
			return nil, fmt.Errorf("scan chat entry: %w", err)
		}
		e.Role = domain.ChatRole(role)
		e.Timestamp = time.UnixMilli(createdMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// ChatHistory adapts the repository to domain.ChatHistory.
func (r *Repository) ChatHistory() domain.ChatHistory {
	return chatHistory{repo: r}
}

type chatHistory struct {
	repo *Repository
}

func (h chatHistory) Append(ctx context.Context, entry domain.ChatEntry) error {
	return h.repo.appendChat(ctx, entry)
}

func (h chatHistory) Last(ctx context.Context, n int) ([]domain.ChatEntry, error) {
	return h.repo.lastChat(ctx, n)
}
