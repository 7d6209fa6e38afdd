package throttle

import (
	"context"
	"testing"
	"time"
)

func TestNewPacer_RejectsEmptyAndNegative(t *testing.T) {
	if _, err := NewPacer(nil); err == nil {
		t.Fatal("expected error for empty class map")
	}
	if _, err := NewPacer(map[Class]time.Duration{"parse": -time.Second}); err == nil {
		t.Fatal("expected error for negative period")
	}
}

func TestPacer_Wait_EnforcesSpacingPerClass(t *testing.T) {
	pacer, err := NewPacer(map[Class]time.Duration{
		"parse": 50 * time.Millisecond,
		"raw":   0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := t.Context()
	if err := pacer.Wait(ctx, "parse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	started := time.Now()
	if err := pacer.Wait(ctx, "parse"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 40*time.Millisecond {
		t.Fatalf("second call started after %v, want at least the class period", elapsed)
	}

	// The raw class has its own schedule and must not be delayed.
	started = time.Now()
	if err := pacer.Wait(ctx, "raw"); err != nil {
		t.Fatalf("raw wait: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 20*time.Millisecond {
		t.Fatalf("raw call blocked for %v, want immediate start", elapsed)
	}
}

func TestPacer_Wait_UnknownClass(t *testing.T) {
	pacer, err := NewPacer(map[Class]time.Duration{"parse": time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pacer.Wait(t.Context(), "unknown"); err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestPacer_Wait_ContextCancellationKeepsSlotFree(t *testing.T) {
	pacer, err := NewPacer(map[Class]time.Duration{"parse": 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pacer.Wait(t.Context(), "parse"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	if err := pacer.Wait(ctx, "parse"); err == nil {
		t.Fatal("expected context error while period still running")
	}

	// The cancelled attempt must not have consumed the slot: waiting out
	// the period succeeds without an extra full period.
	started := time.Now()
	if err := pacer.Wait(t.Context(), "parse"); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 150*time.Millisecond {
		t.Fatalf("third call delayed %v, cancelled attempt should not consume the slot", elapsed)
	}
}
