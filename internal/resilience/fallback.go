package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oratiohq/oratio/internal/observe"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] either
// failed or had an open breaker. The last entry's error is wrapped so
// sentinel checks (errors.Is) still work through the group.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// Breaker is the per-entry breaker configuration. The Name field is
	// overwritten with the entry name.
	Breaker BreakerConfig

	// Permanent reports whether an error is a final answer that must be
	// returned to the caller immediately, without trying further entries.
	// Optional.
	Permanent func(error) bool

	// Metrics, when set, receives a provider-error count for every entry
	// failure. Permanent errors are not counted; they are answers, not
	// faults.
	Metrics *observe.Metrics

	// Kind labels the provider concern ("llm", "stt", "tts") on recorded
	// provider errors. The typed wrappers fill this in.
	Kind string
}

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same provider type. Entries are tried in registration order; entries with
// an open breaker are skipped.
//
// FallbackGroup is safe for concurrent use once assembled. Register all
// fallbacks before the first call.
type FallbackGroup[T any] struct {
	entries []entry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as the first entry.
func NewFallbackGroup[T any](primary T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	bc := cfg.Breaker
	bc.Name = name
	if bc.Ignore == nil {
		bc.Ignore = cfg.Permanent
	}
	return &FallbackGroup[T]{
		entries: []entry[T]{{name: name, value: primary, breaker: NewBreaker(bc)}},
		cfg:     cfg,
	}
}

// AddFallback appends a fallback entry, tried after all earlier entries.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := g.cfg.Breaker
	bc.Name = name
	if bc.Ignore == nil {
		bc.Ignore = g.cfg.Permanent
	}
	g.entries = append(g.entries, entry[T]{name: name, value: value, breaker: NewBreaker(bc)})
}

// Primary returns the first entry's value.
func (g *FallbackGroup[T]) Primary() T { return g.entries[0].value }

// Do runs fn against each entry in order until one succeeds.
func (g *FallbackGroup[T]) Do(fn func(T) error) error {
	_, err := DoWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoWithResult runs fn against each entry in order until one succeeds and
// returns its result. It is a package-level function because Go methods
// cannot introduce type parameters.
func DoWithResult[T any, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(e.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if g.cfg.Permanent != nil && g.cfg.Permanent(err) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("provider skipped, breaker open", "provider", e.name)
		} else {
			if g.cfg.Metrics != nil {
				g.cfg.Metrics.RecordProviderError(context.Background(), e.name, g.cfg.Kind)
			}
			slog.Warn("provider failed, trying next", "provider", e.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
