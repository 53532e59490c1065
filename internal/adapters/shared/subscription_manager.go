// Package shared provides common utilities for adapter implementations.
package shared

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ChannelSubscriber applies venue-level subscribe and unsubscribe calls for a symbol.
type ChannelSubscriber interface {
	SubscribeSymbol(ctx context.Context, symbol string) error
	UnsubscribeSymbol(ctx context.Context, symbol string) error
}

// SubscriptionManager tracks the desired per-symbol subscription set and
// issues only the venue calls needed to converge on it.
type SubscriptionManager struct {
	mu         sync.Mutex
	active     map[string]struct{}
	subscriber ChannelSubscriber
}

// NewSubscriptionManager creates a new manager instance.
func NewSubscriptionManager(subscriber ChannelSubscriber) *SubscriptionManager {
	return &SubscriptionManager{
		active:     make(map[string]struct{}),
		subscriber: subscriber,
	}
}

// Activate subscribes the symbol when it is not already active.
func (m *SubscriptionManager) Activate(ctx context.Context, symbol string) error {
	key := normalizeSymbol(symbol)
	if key == "" {
		return fmt.Errorf("activate: symbol required")
	}

	m.mu.Lock()
	_, exists := m.active[key]
	m.mu.Unlock()
	if exists {
		return nil
	}

	if m.subscriber != nil {
		if err := m.subscriber.SubscribeSymbol(ctx, key); err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
	}

	m.mu.Lock()
	m.active[key] = struct{}{}
	m.mu.Unlock()
	return nil
}

// Deactivate unsubscribes the symbol when it is active.
func (m *SubscriptionManager) Deactivate(ctx context.Context, symbol string) error {
	key := normalizeSymbol(symbol)
	if key == "" {
		return fmt.Errorf("deactivate: symbol required")
	}

	m.mu.Lock()
	_, exists := m.active[key]
	if exists {
		delete(m.active, key)
	}
	m.mu.Unlock()
	if !exists {
		return nil
	}

	if m.subscriber != nil {
		if err := m.subscriber.UnsubscribeSymbol(ctx, key); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", key, err)
		}
	}
	return nil
}

// Sync converges the active set onto desired, unsubscribing symbols that
// left the set and subscribing new ones.
func (m *SubscriptionManager) Sync(ctx context.Context, desired []string) error {
	want := make(map[string]struct{}, len(desired))
	for _, symbol := range desired {
		if key := normalizeSymbol(symbol); key != "" {
			want[key] = struct{}{}
		}
	}

	for _, symbol := range m.Snapshot() {
		if _, keep := want[symbol]; !keep {
			if err := m.Deactivate(ctx, symbol); err != nil {
				return err
			}
		}
	}
	keys := make([]string, 0, len(want))
	for key := range want {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := m.Activate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Active reports whether the symbol is in the desired set.
func (m *SubscriptionManager) Active(symbol string) bool {
	key := normalizeSymbol(symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[key]
	return ok
}

// Snapshot returns a sorted copy of the currently active symbols.
func (m *SubscriptionManager) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) == 0 {
		return nil
	}
	symbols := make([]string, 0, len(m.active))
	for symbol := range m.active {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Clear forgets all active symbols without issuing venue calls. Used when a
// disconnect already invalidated the venue-side subscription state.
func (m *SubscriptionManager) Clear() {
	m.mu.Lock()
	m.active = make(map[string]struct{})
	m.mu.Unlock()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
