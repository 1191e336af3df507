// Package postgres provides a Postgres-backed activity store.
package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/observability"
)

const selectColumns = `SELECT activity_id::text, pet_name, activity_type, amount, occurred_at, recorded_at FROM pet_activities`

// Repository persists activities in the pet_activities table. Ids are UUIDs
// guarded by a unique constraint; seq preserves insertion order.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts the activity and returns its assigned id.
func (r *Repository) Append(ctx context.Context, activity domain.Activity) (string, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	id := uuid.NewString()
	recordedAt := activity.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	const stmt = `INSERT INTO pet_activities (activity_id, pet_name, activity_type, amount, occurred_at, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, stmt,
		id,
		activity.PetName,
		string(activity.Type),
		activity.Amount,
		activity.Timestamp,
		recordedAt,
	)
	if err != nil {
		return "", err
	}

	if err = tx.Commit(ctx); err != nil {
		return "", err
	}
	observability.RecordActivityPersisted(recordedAt)
	return id, nil
}

// ListAll returns every activity in insertion order.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Activity, error) {
	return r.query(ctx, selectColumns+` ORDER BY seq`)
}

// ListBetween returns activities with occurred_at in [start, end], in insertion order.
func (r *Repository) ListBetween(ctx context.Context, start, end time.Time) ([]domain.Activity, error) {
	return r.query(ctx, selectColumns+` WHERE occurred_at >= $1 AND occurred_at <= $2 ORDER BY seq`, start, end)
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			a    domain.Activity
			kind string
		)
		if err := rows.Scan(&a.ID, &a.PetName, &kind, &a.Amount, &a.Timestamp, &a.RecordedAt); err != nil {
			return nil, err
		}
		a.Type = domain.ActivityType(kind)
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
