package shared

import (
	"context"
	"errors"
	"testing"
)

type stubSubscriber struct {
	subscribed   []string
	unsubscribed []string
	failOn       string
}

func (s *stubSubscriber) SubscribeSymbol(_ context.Context, symbol string) error {
	if symbol == s.failOn {
		return errors.New("subscribe failed")
	}
	s.subscribed = append(s.subscribed, symbol)
	return nil
}

func (s *stubSubscriber) UnsubscribeSymbol(_ context.Context, symbol string) error {
	s.unsubscribed = append(s.unsubscribed, symbol)
	return nil
}

func TestSubscriptionManagerActivateIsIdempotent(t *testing.T) {
	subscriber := &stubSubscriber{}
	manager := NewSubscriptionManager(subscriber)

	if err := manager.Activate(context.Background(), "btc-usdt"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := manager.Activate(context.Background(), "BTC-USDT"); err != nil {
		t.Fatalf("repeat Activate() error = %v", err)
	}

	if len(subscriber.subscribed) != 1 {
		t.Fatalf("expected 1 subscribe call, got %d", len(subscriber.subscribed))
	}
	if subscriber.subscribed[0] != "BTC-USDT" {
		t.Fatalf("expected normalized symbol, got %s", subscriber.subscribed[0])
	}
}

func TestSubscriptionManagerActivateFailureLeavesSetUnchanged(t *testing.T) {
	subscriber := &stubSubscriber{failOn: "ETH-USDT"}
	manager := NewSubscriptionManager(subscriber)

	if err := manager.Activate(context.Background(), "ETH-USDT"); err == nil {
		t.Fatalf("expected activate failure to propagate")
	}
	if got := manager.Snapshot(); got != nil {
		t.Fatalf("expected empty active set after failure, got %v", got)
	}
}

func TestSubscriptionManagerDeactivateRemovesSymbol(t *testing.T) {
	subscriber := &stubSubscriber{}
	manager := NewSubscriptionManager(subscriber)

	if err := manager.Activate(context.Background(), "BTC-USDT"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := manager.Deactivate(context.Background(), "BTC-USDT"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if err := manager.Deactivate(context.Background(), "BTC-USDT"); err != nil {
		t.Fatalf("repeat Deactivate() error = %v", err)
	}

	if len(subscriber.unsubscribed) != 1 {
		t.Fatalf("expected a single unsubscribe call, got %d", len(subscriber.unsubscribed))
	}
	if got := manager.Snapshot(); got != nil {
		t.Fatalf("expected empty active set, got %v", got)
	}
}

func TestSubscriptionManagerSyncComputesDelta(t *testing.T) {
	subscriber := &stubSubscriber{}
	manager := NewSubscriptionManager(subscriber)

	if err := manager.Sync(context.Background(), []string{"BTC-USDT", "ETH-USDT"}); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := manager.Sync(context.Background(), []string{"ETH-USDT", "SOL-USDT"}); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if len(subscriber.subscribed) != 3 {
		t.Fatalf("expected 3 subscribe calls, got %v", subscriber.subscribed)
	}
	if len(subscriber.unsubscribed) != 1 || subscriber.unsubscribed[0] != "BTC-USDT" {
		t.Fatalf("expected BTC-USDT unsubscribed, got %v", subscriber.unsubscribed)
	}
	want := []string{"ETH-USDT", "SOL-USDT"}
	got := manager.Snapshot()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected active set %v, got %v", want, got)
	}
}

func TestSubscriptionManagerClearSkipsVenueCalls(t *testing.T) {
	subscriber := &stubSubscriber{}
	manager := NewSubscriptionManager(subscriber)

	if err := manager.Activate(context.Background(), "BTC-USDT"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	manager.Clear()

	if len(subscriber.unsubscribed) != 0 {
		t.Fatalf("expected no unsubscribe calls on clear, got %v", subscriber.unsubscribed)
	}
	if got := manager.Snapshot(); got != nil {
		t.Fatalf("expected empty active set after clear, got %v", got)
	}
}
