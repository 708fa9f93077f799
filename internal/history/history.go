// Package history archives completed mock interviews. A session writes its
// record once, after the feedback report lands; the archive never feeds back
// into a running session.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/oratiohq/oratio/internal/interview"
)

// ErrNotFound is returned when no record exists for the requested ID.
var ErrNotFound = errors.New("history: record not found")

// Record is one completed interview.
type Record struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"user_id,omitempty"`
	JobTitle  string                    `json:"job_title"`
	StartedAt time.Time                 `json:"started_at"`
	EndedAt   time.Time                 `json:"ended_at"`
	Turns     []interview.Turn          `json:"turns"`
	Report    *interview.FeedbackReport `json:"report,omitempty"`
}

// Archive stores completed interview records.
type Archive interface {
	// Save persists a record. Saving the same ID twice overwrites the
	// earlier record.
	Save(ctx context.Context, rec Record) error

	// Get returns the record with the given ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (*Record, error)

	// ListByUser returns the most recent records for a user, newest first,
	// up to limit. A limit of 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}
