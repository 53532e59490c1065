package provider

import (
	"context"

	"github.com/coachpo/bookwire/internal/schema"
)

// Instance represents a running venue provider with per-queue event streams.
// Consumers hand events back through Release once processed so the provider
// can recycle them.
type Instance interface {
	Name() string
	Start(ctx context.Context) error
	Trades() <-chan *schema.Event
	Diffs() <-chan *schema.Event
	Snapshots() <-chan *schema.Event
	Account() <-chan *schema.Event
	Errors() <-chan error
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
	Instruments() []schema.Instrument
	Release(evt *schema.Event)
}
