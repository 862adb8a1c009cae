package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/hookpost/hookpost/ratelimit"
)

func TestZeroLimitIsUnlimited(t *testing.T) {
	l := ratelimit.New()

	for i := 0; i < 1000; i++ {
		if !l.Allow("ep-1", 0) {
			t.Fatal("zero rate limit should never block")
		}
	}
}

func TestAllowExhaustsBurst(t *testing.T) {
	l := ratelimit.New()

	// Burst equals the per-second rate; the bucket starts full.
	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow("ep-2", 5) {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("allowed %d immediate deliveries, want 5", allowed)
	}
}

func TestLimitsAreKeyedPerEndpoint(t *testing.T) {
	l := ratelimit.New()

	for i := 0; i < 3; i++ {
		l.Allow("ep-a", 3)
	}
	// ep-a's bucket is empty; ep-b's is untouched.
	if l.Allow("ep-a", 3) {
		t.Error("ep-a should be exhausted")
	}
	if !l.Allow("ep-b", 3) {
		t.Error("ep-b should have a full bucket")
	}
}

func TestResetClearsBucket(t *testing.T) {
	l := ratelimit.New()

	for i := 0; i < 3; i++ {
		l.Allow("ep-3", 3)
	}
	if l.Allow("ep-3", 3) {
		t.Fatal("bucket should be exhausted")
	}

	l.Reset("ep-3")
	if !l.Allow("ep-3", 3) {
		t.Error("Reset did not refill the bucket")
	}
}

func TestChangedLimitRebuildsBucket(t *testing.T) {
	l := ratelimit.New()

	for i := 0; i < 2; i++ {
		l.Allow("ep-4", 2)
	}
	if l.Allow("ep-4", 2) {
		t.Fatal("bucket should be exhausted at rate 2")
	}

	// A different configured rate replaces the bucket.
	if !l.Allow("ep-4", 10) {
		t.Error("changed rate limit did not rebuild the bucket")
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := ratelimit.New()

	// Drain the bucket so Wait must block; a 1/s bucket cannot refill
	// within the 20ms deadline.
	l.Allow("ep-5", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "ep-5", 1); err == nil {
		t.Error("Wait returned nil despite an exhausted bucket and a short deadline")
	}
}

func TestWaitUnlimitedReturnsImmediately(t *testing.T) {
	l := ratelimit.New()

	start := time.Now()
	if err := l.Wait(context.Background(), "ep-6", 0); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("unlimited Wait should not block")
	}
}
