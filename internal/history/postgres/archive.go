// Package postgres provides a PostgreSQL-backed [history.Archive].
// Transcripts and reports are stored as JSONB so the schema survives
// changes to the turn and report shapes.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oratiohq/oratio/internal/history"
	"github.com/oratiohq/oratio/internal/interview"
)

var _ history.Archive = (*Archive)(nil)

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id          TEXT         PRIMARY KEY,
    user_id     TEXT         NOT NULL DEFAULT '',
    job_title   TEXT         NOT NULL,
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ  NOT NULL,
    transcript  JSONB        NOT NULL,
    report      JSONB
);

CREATE INDEX IF NOT EXISTS idx_interviews_user_ended
    ON interviews (user_id, ended_at DESC);
`

// Archive is the PostgreSQL-backed [history.Archive]. All methods are safe
// for concurrent use.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive creates an Archive using an existing connection pool and
// ensures the interviews table exists.
func NewArchive(ctx context.Context, pool *pgxpool.Pool) (*Archive, error) {
	if _, err := pool.Exec(ctx, ddlInterviews); err != nil {
		return nil, fmt.Errorf("history archive: migrate: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Save implements [history.Archive].
func (a *Archive) Save(ctx context.Context, rec history.Record) error {
	transcript, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("history archive: marshal transcript: %w", err)
	}
	var report []byte
	if rec.Report != nil {
		if report, err = json.Marshal(rec.Report); err != nil {
			return fmt.Errorf("history archive: marshal report: %w", err)
		}
	}

	const q = `
		INSERT INTO interviews (id, user_id, job_title, started_at, ended_at, transcript, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id    = EXCLUDED.user_id,
			job_title  = EXCLUDED.job_title,
			started_at = EXCLUDED.started_at,
			ended_at   = EXCLUDED.ended_at,
			transcript = EXCLUDED.transcript,
			report     = EXCLUDED.report`

	if _, err := a.pool.Exec(ctx, q,
		rec.ID, rec.UserID, rec.JobTitle, rec.StartedAt, rec.EndedAt, transcript, report); err != nil {
		return fmt.Errorf("history archive: save: %w", err)
	}
	return nil
}

// Get implements [history.Archive].
func (a *Archive) Get(ctx context.Context, id string) (*history.Record, error) {
	const q = `
		SELECT id, user_id, job_title, started_at, ended_at, transcript, report
		FROM interviews
		WHERE id = $1`

	rec, err := scanRecord(a.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, history.ErrNotFound
		}
		return nil, fmt.Errorf("history archive: get: %w", err)
	}
	return rec, nil
}

// ListByUser implements [history.Archive].
func (a *Archive) ListByUser(ctx context.Context, userID string, limit int) ([]history.Record, error) {
	q := `
		SELECT id, user_id, job_title, started_at, ended_at, transcript, report
		FROM interviews
		WHERE user_id = $1
		ORDER BY ended_at DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := a.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history archive: list: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("history archive: list: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history archive: list: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*history.Record, error) {
	var (
		rec        history.Record
		transcript []byte
		report     []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.JobTitle,
		&rec.StartedAt, &rec.EndedAt, &transcript, &report); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(transcript, &rec.Turns); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	if len(report) > 0 {
		rec.Report = &interview.FeedbackReport{}
		if err := json.Unmarshal(report, rec.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	return &rec, nil
}
