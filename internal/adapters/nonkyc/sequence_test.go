package nonkyc

import "testing"

func TestSequenceTrackerLifecycle(t *testing.T) {
	tracker := newSequenceTracker()

	if _, ok := tracker.last("BTC-USDT"); ok {
		t.Fatal("fresh tracker reported a baseline")
	}

	tracker.set("BTC-USDT", 1215881)
	tracker.set("ETH-USDT", 7)

	if last, ok := tracker.last("BTC-USDT"); !ok || last != 1215881 {
		t.Fatalf("got (%d, %v), want (1215881, true)", last, ok)
	}

	// Unsubscribe semantics: clearing one pair leaves the others alone.
	tracker.clear("BTC-USDT")
	if _, ok := tracker.last("BTC-USDT"); ok {
		t.Fatal("cleared pair still has a baseline")
	}
	if last, ok := tracker.last("ETH-USDT"); !ok || last != 7 {
		t.Fatalf("unrelated pair lost its baseline: (%d, %v)", last, ok)
	}

	// Reconnect semantics: everything goes.
	tracker.clearAll()
	if _, ok := tracker.last("ETH-USDT"); ok {
		t.Fatal("clearAll left a baseline behind")
	}
}

func TestSequenceTrackerClearUnknownPairIsHarmless(t *testing.T) {
	tracker := newSequenceTracker()
	tracker.clear("BTC-USDT")
	tracker.set("BTC-USDT", 5)
	if last, _ := tracker.last("BTC-USDT"); last != 5 {
		t.Fatalf("got %d, want 5", last)
	}
}
