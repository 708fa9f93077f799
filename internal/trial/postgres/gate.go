// Package postgres provides a PostgreSQL-backed implementation of
// [trial.Gate]. Usage rows are keyed by user ID so recording is naturally
// idempotent across replicas.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oratiohq/oratio/internal/trial"
)

var _ trial.Gate = (*Gate)(nil)

const ddlTrialUsage = `
CREATE TABLE IF NOT EXISTS trial_usage (
    user_id  TEXT         PRIMARY KEY,
    used_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Gate is the PostgreSQL-backed [trial.Gate]. All methods are safe for
// concurrent use.
type Gate struct {
	pool *pgxpool.Pool
}

// NewGate creates a Gate using an existing connection pool and ensures the
// trial_usage table exists.
func NewGate(ctx context.Context, pool *pgxpool.Pool) (*Gate, error) {
	if _, err := pool.Exec(ctx, ddlTrialUsage); err != nil {
		return nil, fmt.Errorf("trial gate: migrate: %w", err)
	}
	return &Gate{pool: pool}, nil
}

// HasUsedTrial implements [trial.Gate].
func (g *Gate) HasUsedTrial(ctx context.Context, userID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM trial_usage WHERE user_id = $1)`

	var used bool
	if err := g.pool.QueryRow(ctx, q, userID).Scan(&used); err != nil {
		return false, fmt.Errorf("trial gate: has used trial: %w", err)
	}
	return used, nil
}

// RecordUsage implements [trial.Gate]. The insert is idempotent: a second
// call for the same user returns [trial.ErrUsed] without modifying the row.
func (g *Gate) RecordUsage(ctx context.Context, userID string) error {
	const q = `
		INSERT INTO trial_usage (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`

	tag, err := g.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("trial gate: record usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return trial.ErrUsed
	}
	return nil
}
