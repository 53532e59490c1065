package shared

import (
	"context"
	"testing"
	"time"
)

func TestWeightedLimiterAllowsWithinBudget(t *testing.T) {
	limiter := NewWeightedLimiter()
	if !limiter.Allow(100) {
		t.Fatalf("expected fresh limiter to allow weight 100")
	}
	if !limiter.Allow(0) {
		t.Fatalf("expected zero weight to count as one")
	}
}

func TestWeightedLimiterRejectsBurstOverflow(t *testing.T) {
	limiter := NewWeightedLimiter()
	if !limiter.Allow(6000) {
		t.Fatalf("expected full burst to be allowed")
	}
	if limiter.Allow(100) {
		t.Fatalf("expected depleted limiter to reject")
	}
}

func TestWeightedLimiterWaitHonorsContext(t *testing.T) {
	limiter := NewWeightedLimiter()
	if !limiter.Allow(6000) {
		t.Fatalf("expected full burst to be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, 100); err == nil {
		t.Fatalf("expected wait on depleted limiter to fail fast")
	}
}

func TestWeightedLimiterWaitOrderConsumesBothBudgets(t *testing.T) {
	limiter := NewWeightedLimiter()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := limiter.WaitOrder(ctx, 4); err != nil {
			t.Fatalf("WaitOrder() error on attempt %d: %v", i, err)
		}
	}

	// Order bucket is drained even though request weight remains.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.WaitOrder(ctx, 4); err == nil {
		t.Fatalf("expected order budget to be exhausted")
	}
}

func TestWeightedLimiterNilIsNoop(t *testing.T) {
	var limiter *WeightedLimiter
	if err := limiter.Wait(context.Background(), 10); err != nil {
		t.Fatalf("nil limiter Wait() error = %v", err)
	}
	if err := limiter.WaitOrder(context.Background(), 10); err != nil {
		t.Fatalf("nil limiter WaitOrder() error = %v", err)
	}
	if !limiter.Allow(10) {
		t.Fatalf("nil limiter should allow")
	}
}
