package nonkyc

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/bookwire/internal/schema"
)

// wsFrame is the envelope shared by every NonKYC websocket message. Event
// frames carry method and params; RPC responses carry result or error along
// with the id of the request they answer. Balance snapshots are the odd one
// out and put their payload in result while still naming a method.
type wsFrame struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *wsErrorBody    `json:"error"`
	ID     json.RawMessage `json:"id"`
}

// wsErrorBody carries venue error details on websocket and REST responses.
type wsErrorBody struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (e *wsErrorBody) text() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(e.Description)
}

// wireScalar accepts a JSON string or number and normalizes it to its text
// form. The venue is inconsistent about which of the two it emits for prices,
// quantities and timestamps.
type wireScalar string

func (s *wireScalar) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*s = wireScalar(strings.TrimSpace(text))
		return nil
	}
	*s = wireScalar(trimmed)
	return nil
}

func (s wireScalar) String() string { return string(s) }

func (s wireScalar) empty() bool { return strings.TrimSpace(string(s)) == "" }

// decimalValue parses the scalar as a decimal, reporting false for empty or
// unparseable input.
func (s wireScalar) decimalValue() (decimal.Decimal, bool) {
	text := strings.TrimSpace(string(s))
	if text == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// wireSequence decodes the venue's monotonic book sequence, which arrives as
// either a JSON number or a decimal string.
type wireSequence uint64

func (s *wireSequence) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = 0
		return nil
	}
	value, err := strconv.ParseUint(string(trimmed), 10, 64)
	if err != nil {
		parsed, floatErr := strconv.ParseFloat(string(trimmed), 64)
		if floatErr != nil || parsed < 0 {
			return err
		}
		value = uint64(parsed)
	}
	*s = wireSequence(value)
	return nil
}

var errMalformedLevel = errors.New("nonkyc: malformed order book level")

// wireLevel is one order book price level. The venue emits levels as either a
// two element array [price, quantity] or a keyed object {"price","quantity"};
// REST snapshots and websocket frames disagree, so both shapes are accepted
// everywhere.
type wireLevel struct {
	Price    string
	Quantity string
}

func (l *wireLevel) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errMalformedLevel
	}
	switch trimmed[0] {
	case '[':
		var tuple []wireScalar
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return err
		}
		if len(tuple) < 2 {
			return errMalformedLevel
		}
		l.Price = tuple[0].String()
		l.Quantity = tuple[1].String()
		return nil
	case '{':
		var keyed struct {
			Price    wireScalar `json:"price"`
			Quantity wireScalar `json:"quantity"`
		}
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return err
		}
		l.Price = keyed.Price.String()
		l.Quantity = keyed.Quantity.String()
		return nil
	default:
		return errMalformedLevel
	}
}

// convertWireLevels translates venue levels into canonical price levels,
// skipping entries without a price. Zero quantities are preserved because a
// zero quantity inside a diff is a level removal.
func convertWireLevels(levels []wireLevel) []schema.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	converted := make([]schema.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if strings.TrimSpace(level.Price) == "" {
			continue
		}
		converted = append(converted, schema.PriceLevel{Price: level.Price, Quantity: level.Quantity})
	}
	return converted
}

// bookParams carries updateOrderbook and snapshotOrderbook payloads.
type bookParams struct {
	Symbol    string       `json:"symbol"`
	Sequence  wireSequence `json:"sequence"`
	Bids      []wireLevel  `json:"bids"`
	Asks      []wireLevel  `json:"asks"`
	Timestamp wireScalar   `json:"timestamp"`
}

func (b *bookParams) snapshotPayload() schema.BookSnapshotPayload {
	return schema.BookSnapshotPayload{
		Bids:       convertWireLevels(b.Bids),
		Asks:       convertWireLevels(b.Asks),
		Sequence:   uint64(b.Sequence),
		LastUpdate: parseMilliTimestamp(b.Timestamp.String()),
	}
}

func (b *bookParams) diffPayload() schema.BookDiffPayload {
	return schema.BookDiffPayload{
		Bids:       convertWireLevels(b.Bids),
		Asks:       convertWireLevels(b.Asks),
		Sequence:   uint64(b.Sequence),
		LastUpdate: parseMilliTimestamp(b.Timestamp.String()),
	}
}

// tradeParams carries updateTrades and snapshotTrades payloads. Data holds one
// or more executions in venue order.
type tradeParams struct {
	Symbol string      `json:"symbol"`
	Data   []wireTrade `json:"data"`
}

// wireTrade is a single execution inside a trade frame. TimestampMS is the
// millisecond epoch variant and wins over the ISO Timestamp when both are set.
type wireTrade struct {
	ID          wireScalar `json:"id"`
	Price       wireScalar `json:"price"`
	Quantity    wireScalar `json:"quantity"`
	Side        string     `json:"side"`
	Timestamp   string     `json:"timestamp"`
	TimestampMS wireScalar `json:"timestampms"`
}

// reportParams carries order lifecycle events from the authenticated stream.
// Fill reports (reportType "trade") additionally populate the trade fields.
type reportParams struct {
	ID                wireScalar `json:"id"`
	UserProvidedID    string     `json:"userProvidedId"`
	Symbol            string     `json:"symbol"`
	ReportType        string     `json:"reportType"`
	Status            string     `json:"status"`
	Side              string     `json:"side"`
	Type              string     `json:"type"`
	Price             wireScalar `json:"price"`
	Quantity          wireScalar `json:"quantity"`
	ExecutedQuantity  wireScalar `json:"executedQuantity"`
	TradeID           wireScalar `json:"tradeId"`
	TradeQuantity     wireScalar `json:"tradeQuantity"`
	TradePrice        wireScalar `json:"tradePrice"`
	TradeFee          wireScalar `json:"tradeFee"`
	AlternateFeeAsset string     `json:"alternateFeeAsset"`
	AlternateFee      wireScalar `json:"alternateFee"`
	UpdatedAt         wireScalar `json:"updatedAt"`
}

// balanceEntry is the funds state for one currency. The websocket stream keys
// the currency as ticker while the REST balances endpoint uses asset.
type balanceEntry struct {
	Ticker    string     `json:"ticker"`
	Asset     string     `json:"asset"`
	Available wireScalar `json:"available"`
	Held      wireScalar `json:"held"`
}

func (b balanceEntry) currency() string {
	if ticker := strings.TrimSpace(b.Ticker); ticker != "" {
		return ticker
	}
	return strings.TrimSpace(b.Asset)
}

// balancePayload computes the canonical funds view for one currency. Total is
// derived as available plus held; venue side pending amounts are excluded.
func balancePayload(currency string, entry balanceEntry, ts time.Time) schema.BalancePayload {
	available, _ := entry.Available.decimalValue()
	held, _ := entry.Held.decimalValue()
	return schema.BalancePayload{
		Currency:  currency,
		Available: available.String(),
		Held:      held.String(),
		Total:     available.Add(held).String(),
		Timestamp: ts,
	}
}

// orderRecord is the venue's order object, shared by the REST order endpoints
// and the activeOrders stream event.
type orderRecord struct {
	ID               wireScalar `json:"id"`
	UserProvidedID   string     `json:"userProvidedId"`
	Symbol           string     `json:"symbol"`
	Side             string     `json:"side"`
	Type             string     `json:"type"`
	Price            wireScalar `json:"price"`
	Quantity         wireScalar `json:"quantity"`
	ExecutedQuantity wireScalar `json:"executedQuantity"`
	Status           string     `json:"status"`
	CreatedAt        wireScalar `json:"createdAt"`
	UpdatedAt        wireScalar `json:"updatedAt"`
}

// fillProgress derives filled and remaining quantities from the order's
// executed amount. Reported false when the record carries no usable numbers.
func fillProgress(quantity, executed wireScalar) (filled, remaining string, ok bool) {
	executedValue, haveExecuted := executed.decimalValue()
	if !haveExecuted {
		return "", "", false
	}
	filled = executedValue.String()
	if total, haveTotal := quantity.decimalValue(); haveTotal {
		remaining = total.Sub(executedValue).String()
	}
	return filled, remaining, true
}

// parseMilliTimestamp converts a millisecond epoch, possibly fractional or
// quoted, into a UTC time. Returns the zero time when the input is absent or
// unparseable.
func parseMilliTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	millis, err := strconv.ParseFloat(raw, 64)
	if err != nil || millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(millis)).UTC()
}

// parseISOTimestamp parses the venue's ISO-8601 trade timestamps, with or
// without a zone designator. Zoneless values are treated as UTC.
func parseISOTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.999999999", raw); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}
