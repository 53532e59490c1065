package nonkyc

import (
	"testing"
)

func TestClassifyFrameRoutesTradeEvents(t *testing.T) {
	frame := []byte(`{
		"method": "updateTrades",
		"params": {
			"symbol": "BTC/USDT",
			"data": [
				{"id": 991, "price": "64000.5", "quantity": "0.02", "side": "buy", "timestampms": 1717171717000},
				{"id": 992, "price": "64001.0", "quantity": "0.01", "side": "sell", "timestampms": 1717171717500}
			]
		}
	}`)
	msg := classifyFrame(frame)
	if msg.Kind != kindTrades {
		t.Fatalf("expected kindTrades, got %d", msg.Kind)
	}
	if msg.Symbol != "BTC/USDT" {
		t.Fatalf("unexpected symbol: %s", msg.Symbol)
	}
	if msg.Trades == nil || len(msg.Trades.Data) != 2 {
		t.Fatalf("unexpected trade payload: %+v", msg.Trades)
	}
	if msg.Trades.Data[0].ID.String() != "991" {
		t.Fatalf("unexpected first trade id: %s", msg.Trades.Data[0].ID)
	}

	snapshot := []byte(`{"method":"snapshotTrades","params":{"symbol":"ETH/USDT","data":[{"id":"1","price":"3000","quantity":"1","side":"sell"}]}}`)
	msg = classifyFrame(snapshot)
	if msg.Kind != kindTrades || msg.Symbol != "ETH/USDT" {
		t.Fatalf("snapshotTrades not routed as trades: %+v", msg)
	}
}

func TestClassifyFrameSplitsBookDiffsAndSnapshots(t *testing.T) {
	diff := classifyFrame([]byte(`{
		"method": "updateOrderbook",
		"params": {
			"symbol": "BTC/USDT",
			"sequence": 1215882,
			"bids": [["64000", "0"]],
			"asks": [["64001", "1.5"]],
			"timestamp": 1717171717000
		}
	}`))
	if diff.Kind != kindBookDiff {
		t.Fatalf("expected kindBookDiff, got %d", diff.Kind)
	}
	if diff.Book == nil || uint64(diff.Book.Sequence) != 1215882 {
		t.Fatalf("unexpected diff params: %+v", diff.Book)
	}
	if len(diff.Book.Bids) != 1 || diff.Book.Bids[0].Quantity != "0" {
		t.Fatalf("zero quantity removal not preserved: %+v", diff.Book.Bids)
	}

	snap := classifyFrame([]byte(`{
		"method": "snapshotOrderbook",
		"params": {
			"symbol": "BTC/USDT",
			"sequence": "1215900",
			"bids": [{"price": "64000", "quantity": "2"}],
			"asks": [{"price": "64001", "quantity": "3"}]
		}
	}`))
	if snap.Kind != kindBookSnapshot {
		t.Fatalf("expected kindBookSnapshot, got %d", snap.Kind)
	}
	if uint64(snap.Book.Sequence) != 1215900 {
		t.Fatalf("quoted sequence not decoded: %d", snap.Book.Sequence)
	}
}

func TestClassifyFrameDropsBooksWithoutSequence(t *testing.T) {
	cases := []string{
		`{"method":"updateOrderbook","params":{"symbol":"BTC/USDT","bids":[],"asks":[]}}`,
		`{"method":"updateOrderbook","params":{"symbol":"BTC/USDT","sequence":0,"bids":[],"asks":[]}}`,
		`{"method":"snapshotOrderbook","params":{"symbol":"BTC/USDT","sequence":null,"bids":[],"asks":[]}}`,
	}
	for _, raw := range cases {
		if msg := classifyFrame([]byte(raw)); msg.Kind != kindUnroutable {
			t.Fatalf("frame %s routed as %d, want unroutable", raw, msg.Kind)
		}
	}
}

func TestClassifyFrameIgnoresRPCAcks(t *testing.T) {
	// Responses to our own requests carry result or error but no method.
	cases := []string{
		`{"result": true, "id": 1}`,
		`{"result": {"symbol": "BTC/USDT"}, "id": 2}`,
		`{"error": {"code": 1002, "message": "Authorization required"}, "id": 3}`,
		`{"jsonrpc": "2.0", "result": [], "id": 4}`,
	}
	for _, raw := range cases {
		if msg := classifyFrame([]byte(raw)); msg.Kind != kindUnroutable {
			t.Fatalf("ack %s routed as %d, want unroutable", raw, msg.Kind)
		}
	}
}

func TestClassifyFrameRoutesEventsEvenWithResultPresent(t *testing.T) {
	// Method wins over result when both appear on one frame.
	msg := classifyFrame([]byte(`{
		"method": "updateTrades",
		"result": true,
		"params": {"symbol": "BTC/USDT", "data": [{"id": 5, "price": "1", "quantity": "1", "side": "buy"}]}
	}`))
	if msg.Kind != kindTrades {
		t.Fatalf("expected kindTrades, got %d", msg.Kind)
	}
}

func TestClassifyFrameRoutesReports(t *testing.T) {
	msg := classifyFrame([]byte(`{
		"method": "report",
		"params": {
			"id": 77001,
			"userProvidedId": "c0ffee",
			"symbol": "BTC/USDT",
			"reportType": "trade",
			"status": "partly filled",
			"side": "buy",
			"type": "limit",
			"price": "64000",
			"quantity": "1",
			"executedQuantity": "0.4",
			"tradeId": 555,
			"tradeQuantity": "0.4",
			"tradePrice": "64000",
			"tradeFee": "0.512"
		}
	}`))
	if msg.Kind != kindReport {
		t.Fatalf("expected kindReport, got %d", msg.Kind)
	}
	if msg.Report == nil || msg.Report.ReportType != "trade" {
		t.Fatalf("unexpected report params: %+v", msg.Report)
	}
	if msg.Report.TradeID.String() != "555" {
		t.Fatalf("unexpected trade id: %s", msg.Report.TradeID)
	}
}

func TestClassifyFrameReadsBalanceSnapshotFromResult(t *testing.T) {
	msg := classifyFrame([]byte(`{
		"method": "currentBalances",
		"result": [
			{"ticker": "BTC", "available": "0.5", "held": "0.1"},
			{"ticker": "USDT", "available": "1000", "held": "0"}
		]
	}`))
	if msg.Kind != kindBalanceSnapshot {
		t.Fatalf("expected kindBalanceSnapshot, got %d", msg.Kind)
	}
	if len(msg.Balances) != 2 || msg.Balances[0].Ticker != "BTC" {
		t.Fatalf("unexpected balances: %+v", msg.Balances)
	}
}

func TestClassifyFrameReadsBalanceDeltaFromParams(t *testing.T) {
	msg := classifyFrame([]byte(`{
		"method": "balanceUpdate",
		"params": {"ticker": "USDT", "available": "950", "held": "50"}
	}`))
	if msg.Kind != kindBalanceDelta {
		t.Fatalf("expected kindBalanceDelta, got %d", msg.Kind)
	}
	if len(msg.Balances) != 1 || msg.Balances[0].Held.String() != "50" {
		t.Fatalf("unexpected delta: %+v", msg.Balances)
	}
}

func TestClassifyFrameRoutesActiveOrders(t *testing.T) {
	fromResult := classifyFrame([]byte(`{
		"method": "activeOrders",
		"result": [
			{"id": "o1", "symbol": "BTC/USDT", "side": "buy", "status": "active", "price": "64000", "quantity": "1"}
		]
	}`))
	if fromResult.Kind != kindActiveOrders || len(fromResult.Orders) != 1 {
		t.Fatalf("unexpected activeOrders from result: %+v", fromResult)
	}

	fromParams := classifyFrame([]byte(`{
		"method": "activeOrders",
		"params": [
			{"id": "o2", "symbol": "ETH/USDT", "side": "sell", "status": "new", "price": "3000", "quantity": "2"},
			{"id": "o3", "symbol": "ETH/USDT", "side": "sell", "status": "new", "price": "3001", "quantity": "2"}
		]
	}`))
	if fromParams.Kind != kindActiveOrders || len(fromParams.Orders) != 2 {
		t.Fatalf("unexpected activeOrders from params: %+v", fromParams)
	}
}

func TestClassifyFrameDropsGarbage(t *testing.T) {
	cases := []string{
		`not json`,
		`{"method":"somethingElse","params":{}}`,
		`{"method":"updateTrades","params":{"data":[]}}`,
		`{"method":"updateTrades","params":"oops"}`,
		`{}`,
	}
	for _, raw := range cases {
		if msg := classifyFrame([]byte(raw)); msg.Kind != kindUnroutable {
			t.Fatalf("frame %s routed as %d, want unroutable", raw, msg.Kind)
		}
	}
}
