package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 2}, func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, errTransient)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_UnrecognizedErrorNotRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Standard, func() error {
		attempts++
		return errFatal
	}, errTransient)
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected errFatal, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for unrecognized error, got %d", attempts)
	}
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 1, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errTransient
	}, errTransient)
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected errTransient, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("max_attempts=1 should mean no retries, got %d attempts", attempts)
	}
}

func TestDelayForAttempt_ExponentialWithCap(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Factor: 2.0}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
	}
	for _, c := range cases {
		if got := p.delayForAttempt(c.attempt); got != c.want {
			t.Errorf("delayForAttempt(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Do(ctx, Policy{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Factor: 1}, func() error {
		attempts++
		return errTransient
	}, errTransient)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation observed, got %d", attempts)
	}
}

func TestPresets(t *testing.T) {
	if Quick.MaxAttempts != 2 {
		t.Errorf("Quick.MaxAttempts = %d, want 2", Quick.MaxAttempts)
	}
	if Standard.MaxAttempts != 3 {
		t.Errorf("Standard.MaxAttempts = %d, want 3", Standard.MaxAttempts)
	}
	if Persistent.MaxAttempts != 5 {
		t.Errorf("Persistent.MaxAttempts = %d, want 5", Persistent.MaxAttempts)
	}
}
