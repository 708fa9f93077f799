// Package trial tracks free mock-interview usage. Each authenticated user
// gets exactly one free interview; the [Gate] answers whether a user has
// spent it and records the usage once the interview completes with feedback.
package trial

import (
	"context"
	"errors"
)

// ErrUsed is returned by [Gate.RecordUsage] when the user's free interview
// has already been recorded.
var ErrUsed = errors.New("trial: free interview already used")

// Gate answers and records free-interview usage.
//
// Implementations must be safe for concurrent use.
type Gate interface {
	// HasUsedTrial reports whether userID has already consumed the free
	// interview.
	HasUsedTrial(ctx context.Context, userID string) (bool, error)

	// RecordUsage marks the free interview as consumed for userID. It is
	// called exactly once per completed interview, after feedback has been
	// produced. Returns [ErrUsed] when usage was already recorded.
	RecordUsage(ctx context.Context, userID string) error
}
