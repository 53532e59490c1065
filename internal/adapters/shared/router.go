package shared

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coachpo/bookwire/internal/schema"
)

// Queue identifies one of the router's independent delivery queues.
type Queue string

const (
	// QueueTrades carries trade executions.
	QueueTrades Queue = "trades"
	// QueueDiffs carries incremental order book updates.
	QueueDiffs Queue = "diffs"
	// QueueSnapshots carries full order book refreshes.
	QueueSnapshots Queue = "snapshots"
	// QueueAccount carries execution reports and balance updates.
	QueueAccount Queue = "account"
)

// Router fans canonical events out over independent per-class queues. A
// publish never blocks the producer: each queue buffers beyond its channel
// capacity and drains through its own pump goroutine, so a stalled consumer
// of one class cannot hold back another. Within a class, delivery order
// matches publish order.
type Router struct {
	providerName string
	clock        func() time.Time

	trades    *eventQueue
	diffs     *eventQueue
	snapshots *eventQueue
	account   *eventQueue

	pool  sync.Pool
	seqMu sync.Mutex
	seq   map[string]uint64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRouter creates a router whose queues expose channels with the given
// buffer capacity (<=0 uses a small default).
func NewRouter(providerName string, buffer int, clock func() time.Time) *Router {
	if buffer <= 0 {
		buffer = 16
	}
	if clock == nil {
		clock = time.Now
	}
	r := &Router{
		providerName: providerName,
		clock:        clock,
		trades:       newEventQueue(buffer),
		diffs:        newEventQueue(buffer),
		snapshots:    newEventQueue(buffer),
		account:      newEventQueue(buffer),
		seq:          make(map[string]uint64),
		done:         make(chan struct{}),
	}
	r.pool.New = func() any { return new(schema.Event) }
	for _, q := range []*eventQueue{r.trades, r.diffs, r.snapshots, r.account} {
		r.wg.Add(1)
		go r.pump(q)
	}
	return r
}

// Trades returns the trade delivery channel.
func (r *Router) Trades() <-chan *schema.Event { return r.trades.out }

// Diffs returns the order book diff delivery channel.
func (r *Router) Diffs() <-chan *schema.Event { return r.diffs.out }

// Snapshots returns the order book snapshot delivery channel.
func (r *Router) Snapshots() <-chan *schema.Event { return r.snapshots.out }

// Account returns the execution report and balance delivery channel.
func (r *Router) Account() <-chan *schema.Event { return r.account.out }

// PublishTrade creates and enqueues a trade event.
func (r *Router) PublishTrade(ctx context.Context, symbol string, payload schema.TradePayload) {
	r.publish(ctx, r.trades, schema.EventTypeTrade, symbol, payload, payload.Timestamp)
}

// PublishBookDiff creates and enqueues an order book diff event.
func (r *Router) PublishBookDiff(ctx context.Context, symbol string, payload schema.BookDiffPayload) {
	r.publish(ctx, r.diffs, schema.EventTypeBookDiff, symbol, payload, payload.LastUpdate)
}

// PublishBookSnapshot creates and enqueues an order book snapshot event.
func (r *Router) PublishBookSnapshot(ctx context.Context, symbol string, payload schema.BookSnapshotPayload) {
	r.publish(ctx, r.snapshots, schema.EventTypeBookSnapshot, symbol, payload, payload.LastUpdate)
}

// PublishExecReport creates and enqueues an execution report event.
func (r *Router) PublishExecReport(ctx context.Context, symbol string, payload schema.ExecReportPayload) {
	r.publish(ctx, r.account, schema.EventTypeExecReport, symbol, payload, payload.Timestamp)
}

// PublishBalance creates and enqueues a balance event keyed by currency.
func (r *Router) PublishBalance(ctx context.Context, currency string, payload schema.BalancePayload) {
	r.publish(ctx, r.account, schema.EventTypeBalance, currency, payload, payload.Timestamp)
}

// Release returns a delivered event to the router pool. Consumers call it
// once they are done with the event and must not touch it afterwards.
func (r *Router) Release(evt *schema.Event) {
	if evt == nil || evt.IsReturned() {
		return
	}
	evt.Reset()
	evt.SetReturned(true)
	r.pool.Put(evt)
}

// Close stops the pumps and closes every delivery channel. Publishing after
// Close drops events. Close must not run concurrently with publishes.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		for _, q := range []*eventQueue{r.trades, r.diffs, r.snapshots, r.account} {
			q.wake()
		}
		r.wg.Wait()
		for _, q := range []*eventQueue{r.trades, r.diffs, r.snapshots, r.account} {
			for _, evt := range q.drain() {
				r.Release(evt)
			}
			close(q.out)
		}
	})
}

func (r *Router) publish(ctx context.Context, q *eventQueue, evtType schema.EventType, symbol string, payload any, ts time.Time) {
	select {
	case <-r.done:
		return
	default:
	}
	if err := ctx.Err(); err != nil {
		return
	}
	if ts.IsZero() {
		ts = r.clock().UTC()
	}

	seq := r.nextSeq(evtType, symbol)
	evt := r.pool.Get().(*schema.Event)
	evt.SetReturned(false)
	evt.EventID = fmt.Sprintf("%s:%s:%s:%d", r.providerName, strings.ReplaceAll(symbol, "-", ""), evtType, seq)
	evt.Provider = r.providerName
	evt.Symbol = symbol
	evt.Type = evtType
	evt.SeqProvider = seq
	evt.IngestTS = ts
	evt.EmitTS = r.clock().UTC()
	evt.Payload = payload

	q.enqueue(evt)
}

func (r *Router) pump(q *eventQueue) {
	defer r.wg.Done()
	for {
		evt, ok := q.next(r.done)
		if !ok {
			return
		}
		select {
		case q.out <- evt:
		case <-r.done:
			r.Release(evt)
			return
		}
	}
}

func (r *Router) nextSeq(evtType schema.EventType, symbol string) uint64 {
	key := fmt.Sprintf("%s|%s", evtType, symbol)
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.seq[key]++
	return r.seq[key]
}

// eventQueue pairs a delivery channel with an overflow buffer so enqueue
// never blocks. The pump goroutine owns draining order.
type eventQueue struct {
	mu      sync.Mutex
	pending []*schema.Event
	signal  chan struct{}
	out     chan *schema.Event
}

func newEventQueue(buffer int) *eventQueue {
	return &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan *schema.Event, buffer),
	}
}

func (q *eventQueue) enqueue(evt *schema.Event) {
	q.mu.Lock()
	q.pending = append(q.pending, evt)
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// next blocks until an event is pending or done closes.
func (q *eventQueue) next(done <-chan struct{}) (*schema.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			evt := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return evt, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-done:
			return nil, false
		}
	}
}

func (q *eventQueue) drain() []*schema.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}
