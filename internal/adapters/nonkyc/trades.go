package nonkyc

import (
	"strings"
	"time"

	"github.com/coachpo/bookwire/internal/schema"
)

// expandTrades flattens one trade frame into individual canonical payloads,
// one per execution, preserving the venue's array order. A frame with N
// entries always yields N payloads; an execution with an unparseable
// timestamp is stamped with the local clock rather than dropped.
func expandTrades(params *tradeParams, clock func() time.Time) []schema.TradePayload {
	if params == nil || len(params.Data) == 0 {
		return nil
	}
	payloads := make([]schema.TradePayload, 0, len(params.Data))
	for _, entry := range params.Data {
		ts := tradeTimestamp(entry)
		if ts.IsZero() && clock != nil {
			ts = clock()
		}
		payloads = append(payloads, schema.TradePayload{
			TradeID:   entry.ID.String(),
			Side:      tradeSide(entry.Side),
			Price:     entry.Price.String(),
			Quantity:  entry.Quantity.String(),
			Timestamp: ts,
		})
	}
	return payloads
}

// tradeSide maps the venue side string. Only an explicit sell is a sell;
// everything else, including absent or unknown values, is treated as a buy.
func tradeSide(side string) schema.TradeSide {
	if strings.EqualFold(strings.TrimSpace(side), "sell") {
		return schema.TradeSideSell
	}
	return schema.TradeSideBuy
}

// tradeTimestamp prefers the millisecond epoch field over the ISO form when
// both are present.
func tradeTimestamp(entry wireTrade) time.Time {
	if ts := parseMilliTimestamp(entry.TimestampMS.String()); !ts.IsZero() {
		return ts
	}
	return parseISOTimestamp(entry.Timestamp)
}
