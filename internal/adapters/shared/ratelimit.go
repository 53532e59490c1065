package shared

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Venue budgets: a weighted request pool refilled per minute plus a separate
// order-action pool refilled per ten seconds.
const (
	requestWeightPerMinute = 6000
	ordersPerTenSeconds    = 50
)

// WeightedLimiter enforces the venue REST budgets. Every call draws its
// endpoint weight from the shared pool; order placement and cancellation
// additionally draw one token from the order pool.
type WeightedLimiter struct {
	requests *rate.Limiter
	orders   *rate.Limiter
}

// NewWeightedLimiter creates a limiter with the venue's published budgets.
func NewWeightedLimiter() *WeightedLimiter {
	return &WeightedLimiter{
		requests: rate.NewLimiter(rate.Limit(float64(requestWeightPerMinute)/60.0), requestWeightPerMinute),
		orders:   rate.NewLimiter(rate.Limit(float64(ordersPerTenSeconds)/10.0), ordersPerTenSeconds),
	}
}

// Wait blocks until the request weight is available or ctx is done.
func (l *WeightedLimiter) Wait(ctx context.Context, weight int) error {
	if l == nil {
		return nil
	}
	if weight <= 0 {
		weight = 1
	}
	if err := l.requests.WaitN(ctx, weight); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// WaitOrder blocks until both the request weight and an order token are available.
func (l *WeightedLimiter) WaitOrder(ctx context.Context, weight int) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx, weight); err != nil {
		return err
	}
	if err := l.orders.WaitN(ctx, 1); err != nil {
		return fmt.Errorf("order rate limit wait: %w", err)
	}
	return nil
}

// Allow reports whether weight is immediately available without blocking.
func (l *WeightedLimiter) Allow(weight int) bool {
	if l == nil {
		return true
	}
	if weight <= 0 {
		weight = 1
	}
	return l.requests.AllowN(time.Now(), weight)
}
