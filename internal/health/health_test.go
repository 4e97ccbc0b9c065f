package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsHealthy_ThresholdBoundary(t *testing.T) {
	c := New(time.Minute, time.Second, 3)

	for i := 0; i < 2; i++ {
		c.CheckSessionExists(func() bool { return false })
	}
	if !c.IsHealthy() {
		t.Fatalf("expected healthy at 2/3 consecutive failures")
	}

	c.CheckSessionExists(func() bool { return false })
	if c.IsHealthy() {
		t.Fatalf("expected unhealthy once consecutive failures reach max_failed_checks")
	}
}

func TestIsHealthy_SuccessResetsConsecutiveFailures(t *testing.T) {
	c := New(time.Minute, time.Second, 2)
	c.CheckSessionExists(func() bool { return false })
	c.CheckSessionExists(func() bool { return true })
	if !c.IsHealthy() {
		t.Fatalf("expected a success to reset the consecutive-failure streak")
	}
	stats := c.Stats()
	if stats.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", stats.ConsecutiveFailures)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("total failures = %d, want 1 (not reset by success)", stats.TotalFailures)
	}
}

func TestShouldCheck_RespectsInterval(t *testing.T) {
	c := New(time.Hour, time.Second, 3)
	if !c.ShouldCheck() {
		t.Fatalf("expected ShouldCheck true before any check has run")
	}
	c.CheckSessionExists(func() bool { return true })
	if c.ShouldCheck() {
		t.Fatalf("expected ShouldCheck false immediately after a check within the interval")
	}
}

func TestCheckOutputResponsive_InsufficientOutput(t *testing.T) {
	c := New(time.Minute, time.Second, 3)
	result := c.CheckOutputResponsive(func() (string, error) { return "hi", nil }, 10)
	if result.Healthy {
		t.Fatalf("expected unhealthy result for output shorter than min length")
	}
}

func TestCheckOutputResponsive_CaptureError(t *testing.T) {
	c := New(time.Minute, time.Second, 3)
	result := c.CheckOutputResponsive(func() (string, error) { return "", errors.New("capture failed") }, 1)
	if result.Healthy || result.Error == "" {
		t.Fatalf("expected unhealthy result with error message, got %+v", result)
	}
}

func TestCheckCommandEcho_FullRoundTrip(t *testing.T) {
	c := New(time.Minute, time.Second, 3)
	result := c.CheckCommandEcho(
		context.Background(),
		func(string) error { return nil },
		func(context.Context, time.Duration) bool { return true },
		func() (string, error) { return "output containing # health_check marker", nil },
		"# health_check",
	)
	if !result.Healthy {
		t.Fatalf("expected healthy result, got %+v", result)
	}
}

func TestCheckCommandEcho_TimeoutIsUnhealthy(t *testing.T) {
	c := New(time.Minute, time.Second, 3)
	result := c.CheckCommandEcho(
		context.Background(),
		func(string) error { return nil },
		func(context.Context, time.Duration) bool { return false },
		func() (string, error) { return "", nil },
		"# health_check",
	)
	if result.Healthy {
		t.Fatalf("expected unhealthy result on timeout")
	}
	if result.Details["stage"] != "timeout" {
		t.Errorf("expected stage=timeout, got %v", result.Details["stage"])
	}
}

func TestCheckCommandEcho_SendFailureIsUnhealthy(t *testing.T) {
	c := New(time.Minute, time.Second, 3)
	result := c.CheckCommandEcho(
		context.Background(),
		func(string) error { return errors.New("send failed") },
		func(context.Context, time.Duration) bool { return true },
		func() (string, error) { return "", nil },
		"# health_check",
	)
	if result.Healthy {
		t.Fatalf("expected unhealthy result when send fails")
	}
}

func TestReset_ClearsConsecutiveFailuresKeepsTotals(t *testing.T) {
	c := New(time.Minute, time.Second, 1)
	c.CheckSessionExists(func() bool { return false })
	if c.IsHealthy() {
		t.Fatalf("expected unhealthy before reset")
	}
	c.Reset()
	if !c.IsHealthy() {
		t.Fatalf("expected healthy after reset")
	}
	if c.Stats().TotalFailures != 1 {
		t.Errorf("expected total failures preserved across reset")
	}
}

func TestLastResult_Memoized(t *testing.T) {
	c := New(time.Minute, time.Second, 3)
	c.CheckSessionExists(func() bool { return true })
	result, ok := c.LastResult(SessionAlive)
	if !ok {
		t.Fatalf("expected memoized result for SessionAlive")
	}
	if !result.Healthy {
		t.Errorf("expected memoized result to be healthy")
	}
	if _, ok := c.LastResult(CommandEcho); ok {
		t.Errorf("expected no memoized result for a kind never checked")
	}
}
