package classifier

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.Failure()
	if !b.Allow() {
		t.Fatalf("expected breaker to stay closed after one failure")
	}
	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if b.Allow() {
		t.Fatalf("expected open breaker to reject calls")
	}
}

func TestBreakerHalfOpenTrial(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.Failure()
	now = now.Add(61 * time.Second)

	if !b.Allow() {
		t.Fatalf("expected trial after cooldown")
	}
	if b.Allow() {
		t.Fatalf("expected only one trial in half-open state")
	}

	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("failed trial should reopen, got %s", b.State())
	}

	now = now.Add(61 * time.Second)
	if !b.Allow() {
		t.Fatalf("expected second trial")
	}
	b.Success()
	if b.State() != BreakerClosed || !b.Allow() {
		t.Fatalf("expected breaker closed after successful trial")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.Failure()
	b.Success()
	b.Failure()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}
