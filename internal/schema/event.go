// Package schema defines canonical event schemas and payload types.
package schema

import (
	"time"
)

// Event represents a canonical event emitted by a venue provider.
type Event struct {
	returned    bool
	EventID     string    `json:"event_id"`
	Provider    string    `json:"provider"`
	Symbol      string    `json:"symbol"`
	Type        EventType `json:"type"`
	SeqProvider uint64    `json:"seq_provider"`
	IngestTS    time.Time `json:"ingest_ts"`
	EmitTS      time.Time `json:"emit_ts"`
	Payload     any       `json:"payload"`
}

// Reset zeroes the event for pool reuse.
func (e *Event) Reset() {
	if e == nil {
		return
	}
	e.EventID = ""
	e.Provider = ""
	e.Symbol = ""
	e.Type = ""
	e.SeqProvider = 0
	e.IngestTS = time.Time{}
	e.EmitTS = time.Time{}
	e.Payload = nil
	e.returned = false
}

// SetReturned toggles the ownership flag for pooling.
func (e *Event) SetReturned(flag bool) {
	if e == nil {
		return
	}
	e.returned = flag
}

// IsReturned reports whether the event currently resides in a pool.
func (e *Event) IsReturned() bool {
	if e == nil {
		return false
	}
	return e.returned
}

// EventType enumerates canonical event categories.
type EventType string

const (
	// EventTypeBookSnapshot identifies full depth snapshots establishing a baseline.
	EventTypeBookSnapshot EventType = "BookSnapshot"
	// EventTypeBookDiff identifies incremental depth updates applied on a baseline.
	EventTypeBookDiff EventType = "BookDiff"
	// EventTypeTrade identifies trade executions.
	EventTypeTrade EventType = "Trade"
	// EventTypeExecReport identifies order execution reports.
	EventTypeExecReport EventType = "ExecReport"
	// EventTypeBalance identifies account balance updates.
	EventTypeBalance EventType = "Balance"
)

// PriceLevel describes an order book price level using decimal strings.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// BookSnapshotPayload conveys a full view of order book depth. Its sequence
// replaces any previously tracked baseline for the symbol.
type BookSnapshotPayload struct {
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Sequence   uint64       `json:"sequence"`
	LastUpdate time.Time    `json:"last_update"`
}

// BookDiffPayload conveys changed depth levels. A zero quantity removes the
// level. Valid only when Sequence extends the tracked baseline by one.
type BookDiffPayload struct {
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Sequence   uint64       `json:"sequence"`
	LastUpdate time.Time    `json:"last_update"`
}

// TradeSide captures the direction of a trade.
type TradeSide string

const (
	// TradeSideBuy indicates buy side fills.
	TradeSideBuy TradeSide = "Buy"
	// TradeSideSell indicates sell side fills.
	TradeSideSell TradeSide = "Sell"
)

// TradePayload represents an executed trade event.
type TradePayload struct {
	TradeID   string    `json:"trade_id"`
	Side      TradeSide `json:"side"`
	Price     string    `json:"price"`
	Quantity  string    `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecReportState enumerates order lifecycle states.
type ExecReportState string

const (
	// ExecReportStateACK indicates acknowledgement.
	ExecReportStateACK ExecReportState = "ACK"
	// ExecReportStatePARTIAL indicates partial fill.
	ExecReportStatePARTIAL ExecReportState = "PARTIAL"
	// ExecReportStateFILLED indicates full fill.
	ExecReportStateFILLED ExecReportState = "FILLED"
	// ExecReportStateCANCELLED indicates cancellation.
	ExecReportStateCANCELLED ExecReportState = "CANCELLED"
	// ExecReportStateREJECTED indicates rejection.
	ExecReportStateREJECTED ExecReportState = "REJECTED"
	// ExecReportStateEXPIRED indicates expiry.
	ExecReportStateEXPIRED ExecReportState = "EXPIRED"
)

// OrderType enumerates order types supported in execution reports.
type OrderType string

const (
	// OrderTypeLimit represents limit orders.
	OrderTypeLimit OrderType = "Limit"
	// OrderTypeMarket represents market orders.
	OrderTypeMarket OrderType = "Market"
)

// ExecReportPayload represents state transitions for submitted orders.
type ExecReportPayload struct {
	ClientOrderID   string          `json:"client_order_id"`
	ExchangeOrderID string          `json:"exchange_order_id"`
	State           ExecReportState `json:"state"`
	Side            TradeSide       `json:"side"`
	OrderType       OrderType       `json:"order_type"`
	Price           string          `json:"price"`
	Quantity        string          `json:"quantity"`
	FilledQuantity  string          `json:"filled_quantity"`
	RemainingQty    string          `json:"remaining_qty"`
	AvgFillPrice    string          `json:"avg_fill_price"`
	TradeID         string          `json:"trade_id,omitempty"`
	LastFillPrice   string          `json:"last_fill_price,omitempty"`
	LastFillQty     string          `json:"last_fill_qty,omitempty"`
	FeeAsset        string          `json:"fee_asset,omitempty"`
	FeeAmount       string          `json:"fee_amount,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	RejectReason    *string         `json:"reject_reason,omitempty"`
}

// BalancePayload conveys the funds state for a single currency.
type BalancePayload struct {
	Currency  string    `json:"currency"`
	Available string    `json:"available"`
	Held      string    `json:"held"`
	Total     string    `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}
