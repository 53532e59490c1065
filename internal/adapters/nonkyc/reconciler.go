package nonkyc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coachpo/bookwire/internal/adapters/shared"
	"github.com/coachpo/bookwire/internal/observability"
	"github.com/coachpo/bookwire/internal/schema"
	"github.com/coachpo/bookwire/internal/telemetry"
)

// snapshotFetch pulls a fresh REST order book snapshot for one pair.
type snapshotFetch func(ctx context.Context, symbol string) (schema.BookSnapshotPayload, error)

// bookReconciler validates the per pair diff stream against tracked sequence
// numbers and recovers from gaps with asynchronous REST resyncs.
//
// A pair without a tracked sequence has no baseline and its diffs are dropped
// until a snapshot arrives. In order diffs advance the sequence and flow
// downstream. A gapped diff logs one warning and launches a single flight
// snapshot fetch; diffs observed while that fetch is outstanding are dropped,
// and a failed fetch leaves recovery to the next gapped diff rather than a
// timer. Snapshots arriving on the stream always win over a concurrent REST
// fetch.
//
// handleDiff and handleSnapshot are invoked from the single connection read
// loop; the internal mutex exists for the resync goroutines and reconnect
// handling that race with it.
type bookReconciler struct {
	fetch   snapshotFetch
	router  *shared.Router
	tracker *sequenceTracker
	metrics *providerMetrics
	clock   func() time.Time

	mu         sync.Mutex
	epoch      uint64
	lastToken  uint64
	resyncs    map[string]uint64
	coldstarts map[string]time.Time
}

func newBookReconciler(tracker *sequenceTracker, fetch snapshotFetch, router *shared.Router, metrics *providerMetrics, clock func() time.Time) *bookReconciler {
	if clock == nil {
		clock = time.Now
	}
	return &bookReconciler{
		fetch:      fetch,
		router:     router,
		tracker:    tracker,
		metrics:    metrics,
		clock:      clock,
		resyncs:    make(map[string]uint64),
		coldstarts: make(map[string]time.Time),
	}
}

// handleDiff applies the reconciliation rules to one classified diff.
func (r *bookReconciler) handleDiff(ctx context.Context, symbol string, book *bookParams) {
	if r.resyncing(symbol) {
		return
	}
	last, ok := r.tracker.last(symbol)
	if !ok {
		// No baseline yet; only a snapshot can establish one.
		return
	}
	seq := uint64(book.Sequence)
	switch {
	case seq <= last:
		return
	case seq == last+1:
		r.tracker.set(symbol, seq)
		payload := book.diffPayload()
		if payload.LastUpdate.IsZero() {
			payload.LastUpdate = r.clock()
		}
		r.router.PublishBookDiff(ctx, symbol, payload)
		r.metrics.recordEvent(ctx, telemetry.EventTypeBookDiff, symbol)
	default:
		observability.Log().Warn(fmt.Sprintf(
			"Orderbook sequence gap for %s: expected %d, got %d. Requesting REST snapshot resync.",
			symbol, last+1, seq))
		r.metrics.recordSequenceGap(ctx, symbol)
		token, epoch, started := r.beginResync(symbol)
		if !started {
			return
		}
		go r.resync(ctx, symbol, token, epoch)
	}
}

// handleSnapshot adopts a streamed snapshot as the pair's new baseline. It
// applies unconditionally: any pending resync for the pair is cancelled
// because the streamed state is at least as fresh as what REST could return.
func (r *bookReconciler) handleSnapshot(ctx context.Context, symbol string, book *bookParams) {
	r.mu.Lock()
	delete(r.resyncs, symbol)
	r.tracker.set(symbol, uint64(book.Sequence))
	start, marked := r.coldstarts[symbol]
	delete(r.coldstarts, symbol)
	r.mu.Unlock()

	payload := book.snapshotPayload()
	if payload.LastUpdate.IsZero() {
		payload.LastUpdate = r.clock()
	}
	r.router.PublishBookSnapshot(ctx, symbol, payload)
	r.metrics.recordEvent(ctx, telemetry.EventTypeBookSnapshot, symbol)
	if marked {
		r.metrics.recordColdStart(ctx, symbol, r.clock().Sub(start))
	}
}

// handleReconnect invalidates all per pair state. The venue restarts its
// sequence numbering on a fresh connection, so every pair must wait for a new
// snapshot, and resyncs fetched against the old connection are rejected by
// the epoch bump.
func (r *bookReconciler) handleReconnect() {
	r.mu.Lock()
	r.epoch++
	r.resyncs = make(map[string]uint64)
	r.coldstarts = make(map[string]time.Time)
	r.mu.Unlock()
	r.tracker.clearAll()
}

// forget drops all state for an unsubscribed pair.
func (r *bookReconciler) forget(symbol string) {
	r.mu.Lock()
	delete(r.resyncs, symbol)
	delete(r.coldstarts, symbol)
	r.mu.Unlock()
	r.tracker.clear(symbol)
}

// markColdStart stamps the pair so the latency until its first baseline can
// be reported.
func (r *bookReconciler) markColdStart(symbol string) {
	r.mu.Lock()
	r.coldstarts[symbol] = r.clock()
	r.mu.Unlock()
}

func (r *bookReconciler) resyncing(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.resyncs[symbol]
	return ok
}

func (r *bookReconciler) beginResync(symbol string) (token, epoch uint64, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, inFlight := r.resyncs[symbol]; inFlight {
		return 0, 0, false
	}
	r.lastToken++
	r.resyncs[symbol] = r.lastToken
	return r.lastToken, r.epoch, true
}

func (r *bookReconciler) abandonResync(symbol string, token uint64) {
	r.mu.Lock()
	if r.resyncs[symbol] == token {
		delete(r.resyncs, symbol)
	}
	r.mu.Unlock()
}

// adoptBaseline installs a fetched snapshot as the pair's baseline. Adoption
// is refused when the connection epoch moved on or when a streamed snapshot
// already cleared the resync, so a stale fetch can never overwrite a newer
// baseline.
func (r *bookReconciler) adoptBaseline(symbol string, token, epoch, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		return false
	}
	if r.resyncs[symbol] != token {
		return false
	}
	delete(r.resyncs, symbol)
	r.tracker.set(symbol, seq)
	return true
}

func (r *bookReconciler) resync(ctx context.Context, symbol string, token, epoch uint64) {
	start := r.clock()
	snapshot, err := r.fetch(ctx, symbol)
	elapsed := r.clock().Sub(start)
	if err != nil {
		r.abandonResync(symbol, token)
		observability.Log().Warn("orderbook resync fetch failed",
			observability.Field{Key: "symbol", Value: symbol},
			observability.Field{Key: "error", Value: err.Error()})
		r.metrics.recordResync(ctx, "error", elapsed)
		return
	}
	if !r.adoptBaseline(symbol, token, epoch, snapshot.Sequence) {
		r.metrics.recordResync(ctx, "superseded", elapsed)
		return
	}
	r.router.PublishBookSnapshot(ctx, symbol, snapshot)
	r.metrics.recordEvent(ctx, telemetry.EventTypeBookSnapshot, symbol)
	r.metrics.recordResync(ctx, "ok", elapsed)
}
