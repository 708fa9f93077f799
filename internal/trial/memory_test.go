package trial_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/oratiohq/oratio/internal/trial"
)

func TestMemoryGate_RecordOnce(t *testing.T) {
	t.Parallel()

	g := trial.NewMemoryGate()
	ctx := context.Background()

	used, err := g.HasUsedTrial(ctx, "user-1")
	if err != nil {
		t.Fatalf("HasUsedTrial: %v", err)
	}
	if used {
		t.Error("fresh user reported as used")
	}

	if err := g.RecordUsage(ctx, "user-1"); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	used, err = g.HasUsedTrial(ctx, "user-1")
	if err != nil {
		t.Fatalf("HasUsedTrial after record: %v", err)
	}
	if !used {
		t.Error("recorded user not reported as used")
	}

	if err := g.RecordUsage(ctx, "user-1"); !errors.Is(err, trial.ErrUsed) {
		t.Errorf("second RecordUsage: got %v, want ErrUsed", err)
	}

	// Other users are unaffected.
	used, _ = g.HasUsedTrial(ctx, "user-2")
	if used {
		t.Error("unrelated user reported as used")
	}
}

func TestMemoryGate_ConcurrentRecordExactlyOnce(t *testing.T) {
	t.Parallel()

	g := trial.NewMemoryGate()
	ctx := context.Background()

	const goroutines = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, goroutines)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.RecordUsage(ctx, "user-1"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	var n int
	for range successes {
		n++
	}
	if n != 1 {
		t.Errorf("expected exactly 1 successful RecordUsage, got %d", n)
	}
}
