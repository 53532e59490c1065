package nonkyc

import (
	"strings"

	"github.com/goccy/go-json"
)

// Websocket method names for outbound requests.
const (
	methodSubscribeTrades      = "subscribeTrades"
	methodUnsubscribeTrades    = "unsubscribeTrades"
	methodSubscribeOrderbook   = "subscribeOrderbook"
	methodUnsubscribeOrderbook = "unsubscribeOrderbook"
	methodSubscribeReports     = "subscribeReports"
	methodSubscribeBalances    = "subscribeBalances"
	methodLogin                = "login"
)

// Websocket method names on inbound event frames.
const (
	eventUpdateTrades      = "updateTrades"
	eventSnapshotTrades    = "snapshotTrades"
	eventUpdateOrderbook   = "updateOrderbook"
	eventSnapshotOrderbook = "snapshotOrderbook"
	eventReport            = "report"
	eventCurrentBalances   = "currentBalances"
	eventBalanceUpdate     = "balanceUpdate"
	eventActiveOrders      = "activeOrders"
)

// messageKind tags the logical channel of a classified frame.
type messageKind int

const (
	// kindUnroutable marks frames with no routable destination: RPC acks,
	// unknown methods, and frames whose payload failed to decode. Callers
	// drop them without logging.
	kindUnroutable messageKind = iota
	kindTrades
	kindBookDiff
	kindBookSnapshot
	kindReport
	kindBalanceSnapshot
	kindBalanceDelta
	kindActiveOrders
)

// classifiedMessage is the result of routing one inbound frame. Exactly one
// payload field is populated for the kind; Symbol carries the venue symbol
// for market data kinds.
type classifiedMessage struct {
	Kind     messageKind
	Symbol   string
	Trades   *tradeParams
	Book     *bookParams
	Report   *reportParams
	Balances []balanceEntry
	Orders   []orderRecord
}

func unroutable() classifiedMessage {
	return classifiedMessage{Kind: kindUnroutable}
}

// classifyFrame inspects one raw frame and assigns it a channel by method.
// Routing is method first: a frame naming a routable method is an event even
// when it also carries a result field. Frames answering an RPC request, with
// a result or error but no routable method, are unroutable. Book frames with
// a missing or zero sequence are unroutable because no downstream component
// could order them.
func classifyFrame(data []byte) classifiedMessage {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return unroutable()
	}

	switch strings.TrimSpace(frame.Method) {
	case eventUpdateTrades, eventSnapshotTrades:
		var params tradeParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			return unroutable()
		}
		if strings.TrimSpace(params.Symbol) == "" {
			return unroutable()
		}
		return classifiedMessage{Kind: kindTrades, Symbol: params.Symbol, Trades: &params}

	case eventUpdateOrderbook, eventSnapshotOrderbook:
		var params bookParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			return unroutable()
		}
		if strings.TrimSpace(params.Symbol) == "" || params.Sequence == 0 {
			return unroutable()
		}
		kind := kindBookDiff
		if strings.TrimSpace(frame.Method) == eventSnapshotOrderbook {
			kind = kindBookSnapshot
		}
		return classifiedMessage{Kind: kind, Symbol: params.Symbol, Book: &params}

	case eventReport:
		var params reportParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			return unroutable()
		}
		return classifiedMessage{Kind: kindReport, Symbol: params.Symbol, Report: &params}

	case eventCurrentBalances:
		// The balance snapshot delivers its payload in result, not params.
		source := frame.Result
		if len(source) == 0 {
			source = frame.Params
		}
		var entries []balanceEntry
		if err := json.Unmarshal(source, &entries); err != nil {
			return unroutable()
		}
		return classifiedMessage{Kind: kindBalanceSnapshot, Balances: entries}

	case eventBalanceUpdate:
		var entry balanceEntry
		if err := json.Unmarshal(frame.Params, &entry); err != nil {
			return unroutable()
		}
		return classifiedMessage{Kind: kindBalanceDelta, Balances: []balanceEntry{entry}}

	case eventActiveOrders:
		source := frame.Result
		if len(source) == 0 {
			source = frame.Params
		}
		var orders []orderRecord
		if err := json.Unmarshal(source, &orders); err != nil {
			return unroutable()
		}
		return classifiedMessage{Kind: kindActiveOrders, Orders: orders}
	}

	return unroutable()
}
