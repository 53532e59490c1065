package shared

import (
	"testing"
	"time"

	"github.com/coachpo/bookwire/internal/schema"
)

func TestAssemblerSnapshotEstablishesBaseline(t *testing.T) {
	asm := NewOrderBookAssembler(0)
	if asm.HasSnapshot() {
		t.Fatalf("expected no snapshot before apply")
	}

	snap, err := asm.ApplySnapshot(schema.BookSnapshotPayload{
		Bids:       []schema.PriceLevel{{Price: "100.5", Quantity: "2"}, {Price: "101", Quantity: "1"}},
		Asks:       []schema.PriceLevel{{Price: "102", Quantity: "3"}},
		Sequence:   6064,
		LastUpdate: time.Unix(1700000000, 0),
	})
	if err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}
	if !asm.HasSnapshot() || asm.LastSequence() != 6064 {
		t.Fatalf("expected baseline at 6064, got %d", asm.LastSequence())
	}
	if len(snap.Bids) != 2 || snap.Bids[0].Price != "101" {
		t.Fatalf("expected bids sorted descending, got %+v", snap.Bids)
	}
	if len(snap.Asks) != 1 || snap.Asks[0].Price != "102" {
		t.Fatalf("unexpected asks %+v", snap.Asks)
	}
}

func TestAssemblerSnapshotRequiresSequence(t *testing.T) {
	asm := NewOrderBookAssembler(0)
	if _, err := asm.ApplySnapshot(schema.BookSnapshotPayload{}); err != ErrSnapshotSequenceRequired {
		t.Fatalf("expected ErrSnapshotSequenceRequired, got %v", err)
	}
}

func TestAssemblerDiffAppliesRemovesAndDrops(t *testing.T) {
	asm := NewOrderBookAssembler(0)
	if _, err := asm.ApplySnapshot(schema.BookSnapshotPayload{
		Bids:     []schema.PriceLevel{{Price: "100", Quantity: "2"}},
		Asks:     []schema.PriceLevel{{Price: "101", Quantity: "2"}},
		Sequence: 10,
	}); err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}

	// Stale diff dropped.
	if _, applied, err := asm.ApplyDiff(schema.BookDiffPayload{Sequence: 10}); err != nil || applied {
		t.Fatalf("expected stale diff dropped, applied=%v err=%v", applied, err)
	}

	// Zero quantity removes the level, fresh level inserts.
	view, applied, err := asm.ApplyDiff(schema.BookDiffPayload{
		Bids:     []schema.PriceLevel{{Price: "100", Quantity: "0"}, {Price: "99.5", Quantity: "4"}},
		Sequence: 11,
	})
	if err != nil || !applied {
		t.Fatalf("expected diff applied, applied=%v err=%v", applied, err)
	}
	if len(view.Bids) != 1 || view.Bids[0].Price != "99.5" || view.Bids[0].Quantity != "4" {
		t.Fatalf("unexpected bids after diff: %+v", view.Bids)
	}
	if view.Sequence != 11 {
		t.Fatalf("expected sequence 11, got %d", view.Sequence)
	}
}

func TestAssemblerBuffersDiffsUntilSnapshot(t *testing.T) {
	asm := NewOrderBookAssembler(0)

	if _, applied, err := asm.ApplyDiff(schema.BookDiffPayload{
		Bids:     []schema.PriceLevel{{Price: "99", Quantity: "1"}},
		Sequence: 12,
	}); err != nil || applied {
		t.Fatalf("expected pre-baseline diff buffered, applied=%v err=%v", applied, err)
	}
	if _, applied, err := asm.ApplyDiff(schema.BookDiffPayload{
		Bids:     []schema.PriceLevel{{Price: "98", Quantity: "1"}},
		Sequence: 9,
	}); err != nil || applied {
		t.Fatalf("expected pre-baseline diff buffered, applied=%v err=%v", applied, err)
	}

	view, err := asm.ApplySnapshot(schema.BookSnapshotPayload{
		Bids:     []schema.PriceLevel{{Price: "100", Quantity: "2"}},
		Sequence: 10,
	})
	if err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}
	// Buffered seq 9 discarded, seq 12 replayed.
	if asm.LastSequence() != 12 {
		t.Fatalf("expected replay to land on 12, got %d", asm.LastSequence())
	}
	if len(view.Bids) != 2 {
		t.Fatalf("expected merged bids, got %+v", view.Bids)
	}
}

func TestAssemblerDepthTrimsLevels(t *testing.T) {
	asm := NewOrderBookAssembler(2)
	view, err := asm.ApplySnapshot(schema.BookSnapshotPayload{
		Bids: []schema.PriceLevel{
			{Price: "100", Quantity: "1"},
			{Price: "99", Quantity: "1"},
			{Price: "98", Quantity: "1"},
		},
		Sequence: 5,
	})
	if err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}
	if len(view.Bids) != 2 || view.Bids[0].Price != "100" || view.Bids[1].Price != "99" {
		t.Fatalf("expected top two bids, got %+v", view.Bids)
	}
}
