package nonkyc

import (
	"testing"
	"time"

	"github.com/coachpo/bookwire/internal/schema"
)

func TestMapReportTradeCarriesFillFields(t *testing.T) {
	report := &reportParams{
		ID:               wireScalar("77001"),
		UserProvidedID:   "c0ffee",
		Symbol:           "BTC/USDT",
		ReportType:       "trade",
		Status:           "partly filled",
		Side:             "buy",
		Type:             "limit",
		Price:            wireScalar("64000"),
		Quantity:         wireScalar("1"),
		ExecutedQuantity: wireScalar("0.4"),
		TradeID:          wireScalar("555"),
		TradeQuantity:    wireScalar("0.4"),
		TradePrice:       wireScalar("64000"),
		TradeFee:         wireScalar("0.512"),
		UpdatedAt:        wireScalar("1717171717000"),
	}
	payload, ok := mapReport(report, nil)
	if !ok {
		t.Fatal("trade report dropped")
	}
	if payload.State != schema.ExecReportStatePARTIAL {
		t.Fatalf("state %s, want PARTIAL", payload.State)
	}
	if payload.TradeID != "555" || payload.LastFillPrice != "64000" || payload.LastFillQty != "0.4" {
		t.Fatalf("fill fields %s/%s/%s", payload.TradeID, payload.LastFillPrice, payload.LastFillQty)
	}
	if payload.FilledQuantity != "0.4" || payload.RemainingQty != "0.6" {
		t.Fatalf("progress %s/%s", payload.FilledQuantity, payload.RemainingQty)
	}
	// No discount program on this fill: the fee is billed in the quote leg.
	if payload.FeeAsset != "USDT" || payload.FeeAmount != "0.512" {
		t.Fatalf("fee %s %s, want 0.512 USDT", payload.FeeAmount, payload.FeeAsset)
	}
	if !payload.Timestamp.Equal(time.UnixMilli(1717171717000)) {
		t.Fatalf("timestamp %v", payload.Timestamp)
	}
}

func TestMapReportStatusChangeOmitsFillFields(t *testing.T) {
	report := &reportParams{
		ID:         wireScalar("77002"),
		Symbol:     "BTC/USDT",
		ReportType: "status",
		Status:     "canceled",
		Side:       "sell",
		Type:       "limit",
		Price:      wireScalar("64000"),
		Quantity:   wireScalar("1"),
	}
	now := time.UnixMilli(1717171717000)
	payload, ok := mapReport(report, func() time.Time { return now })
	if !ok {
		t.Fatal("status report dropped")
	}
	if payload.State != schema.ExecReportStateCANCELLED {
		t.Fatalf("state %s, want CANCELLED", payload.State)
	}
	if payload.TradeID != "" || payload.FeeAsset != "" {
		t.Fatalf("non-trade report gained fill fields: %+v", payload)
	}
	// Missing venue timestamp falls back to the local clock.
	if !payload.Timestamp.Equal(now) {
		t.Fatalf("timestamp %v, want clock fallback", payload.Timestamp)
	}
}

func TestMapReportDropsUnknownStatus(t *testing.T) {
	report := &reportParams{ID: wireScalar("1"), Status: "quarantined"}
	if _, ok := mapReport(report, nil); ok {
		t.Fatal("unknown status passed through")
	}
}

func TestReportFeePrefersAlternateAsset(t *testing.T) {
	report := &reportParams{
		Symbol:            "BTC/USDT",
		TradeFee:          wireScalar("0.5"),
		AlternateFeeAsset: "nkc",
		AlternateFee:      wireScalar("0.1"),
	}
	asset, amount := reportFee(report)
	if asset != "nkc" || amount != "0.1" {
		t.Fatalf("fee %s %s, want alternate 0.1 nkc", amount, asset)
	}

	report.AlternateFeeAsset = ""
	asset, amount = reportFee(report)
	if asset != "USDT" || amount != "0.5" {
		t.Fatalf("fee %s %s, want quote-leg 0.5 USDT", amount, asset)
	}

	report.TradeFee = ""
	if asset, amount = reportFee(report); asset != "" || amount != "" {
		t.Fatalf("feeless report produced %s %s", amount, asset)
	}
}

func TestQuoteCurrency(t *testing.T) {
	cases := map[string]string{
		"BTC/USDT": "USDT",
		"eth/btc":  "BTC",
		"BTCUSDT":  "",
		"BTC/":     "",
	}
	for symbol, want := range cases {
		if got := quoteCurrency(symbol); got != want {
			t.Fatalf("quoteCurrency(%q) = %q, want %q", symbol, got, want)
		}
	}
}
