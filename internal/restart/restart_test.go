package restart

import (
	"errors"
	"testing"
	"time"
)

func TestShouldRestart_NeverPolicy(t *testing.T) {
	r := New(Never, 3, time.Minute, time.Second, 10*time.Second, 2.0)
	if r.ShouldRestart("crash") {
		t.Fatalf("policy Never should never permit a restart")
	}
}

func TestShouldRestart_RespectsMaxAttemptsWithinWindow(t *testing.T) {
	r := New(Always, 2, time.Minute, time.Millisecond, time.Millisecond, 2.0)
	if !r.ShouldRestart("a") {
		t.Fatalf("expected first restart permitted")
	}
	r.AttemptRestart(func() error { return nil }, "a", false)
	if !r.ShouldRestart("b") {
		t.Fatalf("expected second restart permitted")
	}
	r.AttemptRestart(func() error { return nil }, "b", false)
	if r.ShouldRestart("c") {
		t.Fatalf("expected third restart blocked by max attempts")
	}
}

func TestCalculateBackoff_ExponentialWithCap(t *testing.T) {
	r := New(Always, 10, time.Hour, time.Second, 10*time.Second, 2.0)

	if got := r.CalculateBackoff(); got != time.Second {
		t.Errorf("backoff with no history = %v, want %v", got, time.Second)
	}

	cases := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for _, want := range cases {
		r.AttemptRestart(func() error { return errors.New("fail") }, "x", false)
		if got := r.CalculateBackoff(); got != want {
			t.Errorf("after %d attempts, backoff = %v, want %v", len(r.History()), got, want)
		}
	}
}

func TestAttemptRestart_ReturnsSuccessOutcome(t *testing.T) {
	r := New(Always, 5, time.Minute, time.Millisecond, time.Millisecond, 2.0)

	if ok := r.AttemptRestart(func() error { return nil }, "clean", false); !ok {
		t.Fatalf("expected success")
	}
	if ok := r.AttemptRestart(func() error { return errors.New("boom") }, "dirty", false); ok {
		t.Fatalf("expected failure")
	}

	succeeded, failed := r.Totals()
	if succeeded != 1 || failed != 1 {
		t.Fatalf("totals = (%d, %d), want (1, 1)", succeeded, failed)
	}
}

func TestAttemptRestart_NotPermittedReturnsFalseAndDoesNotRecord(t *testing.T) {
	r := New(Never, 5, time.Minute, time.Millisecond, time.Millisecond, 2.0)
	if r.AttemptRestart(func() error { return nil }, "x", false) {
		t.Fatalf("expected false when policy forbids restart")
	}
	if len(r.History()) != 0 {
		t.Fatalf("expected no history recorded")
	}
}

func TestResetHistory_PreservesTotals(t *testing.T) {
	r := New(Always, 5, time.Minute, time.Millisecond, time.Millisecond, 2.0)
	r.AttemptRestart(func() error { return nil }, "a", false)
	r.AttemptRestart(func() error { return nil }, "b", false)

	r.ResetHistory()
	if len(r.History()) != 0 {
		t.Fatalf("expected history cleared")
	}
	succeeded, _ := r.Totals()
	if succeeded != 2 {
		t.Fatalf("expected totals preserved across reset, got %d", succeeded)
	}
}

func TestHistory_BoundedAt100(t *testing.T) {
	r := New(Always, 1000, time.Hour, 0, 0, 1.0)
	for i := 0; i < 150; i++ {
		r.AttemptRestart(func() error { return nil }, "a", false)
	}
	if len(r.History()) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(r.History()), maxHistory)
	}
	succeeded, _ := r.Totals()
	if succeeded != 150 {
		t.Fatalf("totals should reflect all attempts, got %d", succeeded)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":           Never,
		"never":      Never,
		"on_failure": OnFailure,
		"on-failure": OnFailure,
		"always":     Always,
	}
	for s, want := range cases {
		got, err := ParsePolicy(s)
		if err != nil {
			t.Fatalf("ParsePolicy(%q) error: %v", s, err)
		}
		if got != want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := ParsePolicy("bogus"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}
