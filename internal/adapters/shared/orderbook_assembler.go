package shared

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/bookwire/internal/schema"
)

// ErrSnapshotSequenceRequired indicates that a snapshot carried no sequence identifier.
var ErrSnapshotSequenceRequired = errors.New("orderbook assembler: snapshot sequence required")

// OrderBookAssembler materializes a full in-memory book from the snapshot and
// diff streams a provider emits. Diffs that arrive before the first snapshot
// are buffered and replayed once a baseline exists.
type OrderBookAssembler struct {
	mu          sync.Mutex
	depth       int
	initialized bool
	bids        map[string]decimal.Decimal
	asks        map[string]decimal.Decimal
	pending     []schema.BookDiffPayload
	lastSeq     uint64
	lastUpdate  time.Time
}

// NewOrderBookAssembler constructs a new assembler limited to depth price levels (<=0 keeps full depth).
func NewOrderBookAssembler(depth int) *OrderBookAssembler {
	return &OrderBookAssembler{
		depth: depth,
		bids:  make(map[string]decimal.Decimal),
		asks:  make(map[string]decimal.Decimal),
	}
}

// HasSnapshot reports whether the assembler has adopted a baseline snapshot.
func (a *OrderBookAssembler) HasSnapshot() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// LastSequence returns the sequence of the most recently applied record.
func (a *OrderBookAssembler) LastSequence() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeq
}

// ApplySnapshot resets the book state from a full snapshot and replays any
// buffered diffs that extend it.
func (a *OrderBookAssembler) ApplySnapshot(snapshot schema.BookSnapshotPayload) (schema.BookSnapshotPayload, error) {
	if snapshot.Sequence == 0 {
		return schema.BookSnapshotPayload{}, ErrSnapshotSequenceRequired
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buffered := a.pending
	a.resetLocked()
	if err := a.replaceSideLocked(a.bids, snapshot.Bids); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	if err := a.replaceSideLocked(a.asks, snapshot.Asks); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	a.initialized = true
	a.lastSeq = snapshot.Sequence
	if !snapshot.LastUpdate.IsZero() {
		a.lastUpdate = snapshot.LastUpdate
	} else {
		a.lastUpdate = time.Now()
	}

	result := a.buildSnapshotLocked()
	if len(buffered) == 0 {
		return result, nil
	}

	sort.SliceStable(buffered, func(i, j int) bool {
		return buffered[i].Sequence < buffered[j].Sequence
	})
	for _, diff := range buffered {
		if diff.Sequence <= a.lastSeq {
			continue
		}
		updated, err := a.applyDiffLocked(diff)
		if err != nil {
			return schema.BookSnapshotPayload{}, err
		}
		result = updated
	}
	return result, nil
}

// ApplyDiff applies a single diff update. It returns the resulting full book
// view and whether the diff was applied.
func (a *OrderBookAssembler) ApplyDiff(diff schema.BookDiffPayload) (schema.BookSnapshotPayload, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		a.pending = append(a.pending, diff)
		return schema.BookSnapshotPayload{}, false, nil
	}
	if diff.Sequence == 0 || diff.Sequence <= a.lastSeq {
		return schema.BookSnapshotPayload{}, false, nil
	}

	payload, err := a.applyDiffLocked(diff)
	if err != nil {
		return schema.BookSnapshotPayload{}, false, err
	}
	return payload, true, nil
}

func (a *OrderBookAssembler) applyDiffLocked(diff schema.BookDiffPayload) (schema.BookSnapshotPayload, error) {
	if err := a.updateSideLocked(a.bids, diff.Bids); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	if err := a.updateSideLocked(a.asks, diff.Asks); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	a.lastSeq = diff.Sequence
	if !diff.LastUpdate.IsZero() {
		a.lastUpdate = diff.LastUpdate
	} else {
		a.lastUpdate = time.Now()
	}
	return a.buildSnapshotLocked(), nil
}

func (a *OrderBookAssembler) resetLocked() {
	for price := range a.bids {
		delete(a.bids, price)
	}
	for price := range a.asks {
		delete(a.asks, price)
	}
	a.pending = nil
	a.initialized = false
}

func (a *OrderBookAssembler) replaceSideLocked(target map[string]decimal.Decimal, levels []schema.PriceLevel) error {
	for price := range target {
		delete(target, price)
	}
	for _, level := range levels {
		qty, err := decimal.NewFromString(strings.TrimSpace(level.Quantity))
		if err != nil {
			return err
		}
		if qty.Sign() <= 0 {
			continue
		}
		target[strings.TrimSpace(level.Price)] = qty
	}
	return nil
}

func (a *OrderBookAssembler) updateSideLocked(target map[string]decimal.Decimal, updates []schema.PriceLevel) error {
	for _, update := range updates {
		priceKey := strings.TrimSpace(update.Price)
		if priceKey == "" {
			continue
		}
		qtyStr := strings.TrimSpace(update.Quantity)
		if qtyStr == "" {
			delete(target, priceKey)
			continue
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return err
		}
		if qty.Sign() <= 0 {
			delete(target, priceKey)
			continue
		}
		target[priceKey] = qty
	}
	return nil
}

func (a *OrderBookAssembler) buildSnapshotLocked() schema.BookSnapshotPayload {
	return schema.BookSnapshotPayload{
		Bids:       a.buildSideSnapshotLocked(a.bids, true),
		Asks:       a.buildSideSnapshotLocked(a.asks, false),
		Sequence:   a.lastSeq,
		LastUpdate: a.lastUpdate,
	}
}

func (a *OrderBookAssembler) buildSideSnapshotLocked(source map[string]decimal.Decimal, isBid bool) []schema.PriceLevel {
	if len(source) == 0 {
		return nil
	}
	type entry struct {
		price decimal.Decimal
		qty   decimal.Decimal
		key   string
	}
	levels := make([]entry, 0, len(source))
	for key, qty := range source {
		price, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		if qty.Sign() <= 0 {
			continue
		}
		levels = append(levels, entry{price: price, qty: qty, key: key})
	}
	sort.Slice(levels, func(i, j int) bool {
		cmp := levels[i].price.Cmp(levels[j].price)
		if cmp == 0 {
			return levels[i].key < levels[j].key
		}
		if isBid {
			return cmp > 0
		}
		return cmp < 0
	})

	limit := len(levels)
	if a.depth > 0 && limit > a.depth {
		limit = a.depth
	}
	out := make([]schema.PriceLevel, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, schema.PriceLevel{
			Price:    levels[i].price.String(),
			Quantity: levels[i].qty.String(),
		})
	}
	return out
}
