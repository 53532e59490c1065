package nonkyc

import "sync"

// sequenceTracker records the last applied order book sequence per trading
// pair. It is the sole authority consulted for gap detection. Entries are
// removed when a pair is unsubscribed and the whole store is dropped on
// reconnect, since a new connection restarts the venue's numbering contract.
type sequenceTracker struct {
	mu      sync.Mutex
	entries map[string]uint64
}

func newSequenceTracker() *sequenceTracker {
	return &sequenceTracker{entries: make(map[string]uint64)}
}

// last returns the tracked sequence for the pair and whether one exists.
func (t *sequenceTracker) last(pair string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq, ok := t.entries[pair]
	return seq, ok
}

// set records the pair's latest applied sequence.
func (t *sequenceTracker) set(pair string, seq uint64) {
	t.mu.Lock()
	t.entries[pair] = seq
	t.mu.Unlock()
}

// clear forgets the pair entirely so later lookups report no baseline.
func (t *sequenceTracker) clear(pair string) {
	t.mu.Lock()
	delete(t.entries, pair)
	t.mu.Unlock()
}

// clearAll drops every tracked pair.
func (t *sequenceTracker) clearAll() {
	t.mu.Lock()
	t.entries = make(map[string]uint64)
	t.mu.Unlock()
}
