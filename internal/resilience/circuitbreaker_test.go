package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.tripAfter != 3 {
		t.Errorf("tripAfter = %d, want 3", b.tripAfter)
	}
	if b.cooldown != 15*time.Second {
		t.Errorf("cooldown = %v, want 15s", b.cooldown)
	}
	if b.probeBudget != 2 {
		t.Errorf("probeBudget = %d, want 2", b.probeBudget)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_ClosedForwardsCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errBackend })
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	err := b.Do(func() error {
		t.Fatal("fn called while breaker open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("got %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 2, Cooldown: time.Hour})

	_ = b.Do(func() error { return errBackend })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errBackend })

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after interleaved success", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:        "test",
		TripAfter:   1,
		Cooldown:    time.Millisecond,
		ProbeBudget: 2,
	})

	_ = b.Do(func() error { return errBackend })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}

	// Two successful probes close the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after probes", b.State())
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:      "test",
		TripAfter: 1,
		Cooldown:  time.Millisecond,
	})

	_ = b.Do(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	_ = b.Do(func() error { return errBackend })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	sentinel := errors.New("not supported")
	b := NewBreaker(BreakerConfig{
		Name:      "test",
		TripAfter: 1,
		Cooldown:  time.Hour,
		Ignore:    func(err error) bool { return errors.Is(err, sentinel) },
	})

	for i := 0; i < 5; i++ {
		if err := b.Do(func() error { return sentinel }); !errors.Is(err, sentinel) {
			t.Fatalf("got %v, want sentinel", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed: ignored errors must not trip", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 1, Cooldown: time.Hour})
	_ = b.Do(func() error { return errBackend })
	if b.State() != StateOpen {
		t.Fatal("breaker did not open")
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %v after Reset, want closed", b.State())
	}
}
