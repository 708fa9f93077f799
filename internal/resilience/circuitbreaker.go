// Package resilience provides circuit breaker and provider failover
// primitives for the AI backends.
//
// The central type is [Breaker], a three-state circuit breaker
// (closed, open, half-open) that stops a flapping backend from being hammered
// with doomed calls. [FallbackGroup] composes several instances of a provider
// type with a breaker per entry so a failing primary is bypassed in favour of
// healthy fallbacks.
//
// Capability errors are special: an error the configured classifier marks as
// permanent (for example [stt.ErrUnsupported]) never counts toward tripping a
// breaker, because the backend is working as designed.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Probes
	// decide whether the breaker closes again or re-opens.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [Breaker]. Zero-value fields
// take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// TripAfter is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	TripAfter int

	// Cooldown is how long the breaker stays open before allowing probes.
	// Default: 15s.
	Cooldown time.Duration

	// ProbeBudget is the number of half-open probe calls that must succeed
	// before the breaker closes. Any probe failure re-opens it.
	// Default: 2.
	ProbeBudget int

	// Ignore reports whether an error is a deliberate response rather than a
	// backend fault. Ignored errors are returned to the caller but never
	// counted as failures. Optional.
	Ignore func(error) bool
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name        string
	tripAfter   int
	cooldown    time.Duration
	probeBudget int
	ignore      func(error) bool
	logger      *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	return &Breaker{
		name:        cfg.Name,
		tripAfter:   cfg.TripAfter,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
		ignore:      cfg.Ignore,
		logger:      slog.Default().With("breaker", cfg.Name),
	}
}

// Do runs fn if the breaker allows it. In the open state fn is not called and
// [ErrBreakerOpen] is returned. In the half-open state only the probe budget
// worth of calls pass through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeFails = 0
		b.logger.Info("breaker half-open, probing")

	case StateHalfOpen:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == StateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && (b.ignore == nil || !b.ignore(err)) {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure updates failure accounting. Callers hold b.mu.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		b.probeFails++
		b.state = StateOpen
		b.failures = b.tripAfter
		b.logger.Warn("probe failed, breaker re-opened")
		return
	}

	b.failures++
	if b.state == StateClosed && b.failures >= b.tripAfter {
		b.state = StateOpen
		b.logger.Warn("breaker opened", "consecutive_failures", b.failures)
	}
}

// onSuccess updates success accounting. Callers hold b.mu.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = StateClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			b.logger.Info("breaker closed after successful probes")
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports [StateHalfOpen]; the transition itself happens on the
// next [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
