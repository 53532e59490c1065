package nonkyc

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestWireScalarAcceptsStringsAndNumbers(t *testing.T) {
	cases := []struct {
		raw      string
		expected string
	}{
		{`"1.5"`, "1.5"},
		{`1.5`, "1.5"},
		{`" 64000 "`, "64000"},
		{`1717171717000`, "1717171717000"},
		{`null`, ""},
		{`""`, ""},
	}
	for _, tc := range cases {
		var scalar wireScalar
		if err := json.Unmarshal([]byte(tc.raw), &scalar); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if scalar.String() != tc.expected {
			t.Fatalf("scalar %s = %q, want %q", tc.raw, scalar, tc.expected)
		}
	}
}

func TestWireScalarDecimalValue(t *testing.T) {
	var scalar wireScalar = "0.512"
	value, ok := scalar.decimalValue()
	if !ok || value.String() != "0.512" {
		t.Fatalf("unexpected decimal: %v %v", value, ok)
	}
	if _, ok := wireScalar("").decimalValue(); ok {
		t.Fatal("empty scalar should not parse")
	}
	if _, ok := wireScalar("abc").decimalValue(); ok {
		t.Fatal("non numeric scalar should not parse")
	}
}

func TestWireSequenceDecodesBothEncodings(t *testing.T) {
	cases := []struct {
		raw      string
		expected uint64
	}{
		{`1215881`, 1215881},
		{`"1215881"`, 1215881},
		{`1215881.0`, 1215881},
		{`null`, 0},
	}
	for _, tc := range cases {
		var seq wireSequence
		if err := json.Unmarshal([]byte(tc.raw), &seq); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if uint64(seq) != tc.expected {
			t.Fatalf("sequence %s = %d, want %d", tc.raw, seq, tc.expected)
		}
	}

	var seq wireSequence
	if err := json.Unmarshal([]byte(`"not a number"`), &seq); err == nil {
		t.Fatal("expected error for non numeric sequence")
	}
}

func TestWireLevelDecodesTupleAndKeyedForms(t *testing.T) {
	cases := []struct {
		raw      string
		price    string
		quantity string
	}{
		{`["64000.5", "1.25"]`, "64000.5", "1.25"},
		{`[64000.5, 1.25]`, "64000.5", "1.25"},
		{`{"price": "64000.5", "quantity": "1.25"}`, "64000.5", "1.25"},
		{`{"price": 64000.5, "quantity": 0}`, "64000.5", "0"},
	}
	for _, tc := range cases {
		var level wireLevel
		if err := json.Unmarshal([]byte(tc.raw), &level); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if level.Price != tc.price || level.Quantity != tc.quantity {
			t.Fatalf("level %s = %+v, want %s/%s", tc.raw, level, tc.price, tc.quantity)
		}
	}

	for _, raw := range []string{`"64000"`, `["64000"]`, `[]`} {
		var level wireLevel
		if err := json.Unmarshal([]byte(raw), &level); err == nil {
			t.Fatalf("expected error for level %s", raw)
		}
	}
}

func TestConvertWireLevelsKeepsZeroQuantities(t *testing.T) {
	levels := []wireLevel{
		{Price: "64000", Quantity: "1"},
		{Price: "", Quantity: "2"},
		{Price: "64001", Quantity: "0"},
	}
	converted := convertWireLevels(levels)
	if len(converted) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(converted))
	}
	if converted[1].Price != "64001" || converted[1].Quantity != "0" {
		t.Fatalf("zero quantity removal dropped: %+v", converted[1])
	}
	if convertWireLevels(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestFillProgressDerivesRemaining(t *testing.T) {
	filled, remaining, ok := fillProgress("1", "0.4")
	if !ok || filled != "0.4" || remaining != "0.6" {
		t.Fatalf("fillProgress(1, 0.4) = %s/%s/%v", filled, remaining, ok)
	}

	filled, remaining, ok = fillProgress("", "0.4")
	if !ok || filled != "0.4" || remaining != "" {
		t.Fatalf("expected filled without remaining, got %s/%s/%v", filled, remaining, ok)
	}

	if _, _, ok := fillProgress("1", ""); ok {
		t.Fatal("missing executed quantity should report false")
	}
}

func TestBalancePayloadDerivesTotal(t *testing.T) {
	ts := time.UnixMilli(1717171717000).UTC()
	payload := balancePayload("BTC", balanceEntry{Ticker: "BTC", Available: "1.5", Held: "0.25"}, ts)
	if payload.Total != "1.75" {
		t.Fatalf("unexpected total: %s", payload.Total)
	}
	if payload.Available != "1.5" || payload.Held != "0.25" {
		t.Fatalf("unexpected funds split: %+v", payload)
	}
	if !payload.Timestamp.Equal(ts) {
		t.Fatalf("unexpected timestamp: %s", payload.Timestamp)
	}
}

func TestBalanceEntryCurrencyPrefersTicker(t *testing.T) {
	if got := (balanceEntry{Ticker: "BTC", Asset: "XBT"}).currency(); got != "BTC" {
		t.Fatalf("expected ticker, got %s", got)
	}
	if got := (balanceEntry{Asset: "USDT"}).currency(); got != "USDT" {
		t.Fatalf("expected asset fallback, got %s", got)
	}
}

func TestParseMilliTimestamp(t *testing.T) {
	ts := parseMilliTimestamp("1717171717000")
	if !ts.Equal(time.UnixMilli(1717171717000).UTC()) {
		t.Fatalf("unexpected time: %s", ts)
	}
	if !parseMilliTimestamp("").IsZero() {
		t.Fatal("empty input should yield zero time")
	}
	if !parseMilliTimestamp("soon").IsZero() {
		t.Fatal("garbage input should yield zero time")
	}
	if !parseMilliTimestamp("-5").IsZero() {
		t.Fatal("negative input should yield zero time")
	}
}

func TestParseISOTimestampHandlesZonelessValues(t *testing.T) {
	zoned := parseISOTimestamp("2024-05-31T15:28:37.123Z")
	if zoned.IsZero() || zoned.Location() != time.UTC {
		t.Fatalf("unexpected zoned parse: %s", zoned)
	}
	zoneless := parseISOTimestamp("2024-05-31T15:28:37.123")
	if !zoneless.Equal(zoned) {
		t.Fatalf("zoneless value not treated as UTC: %s vs %s", zoneless, zoned)
	}
	if !parseISOTimestamp("31/05/2024").IsZero() {
		t.Fatal("unparseable input should yield zero time")
	}
}

func TestWSErrorBodyTextPrefersMessage(t *testing.T) {
	body := &wsErrorBody{Code: 1002, Message: "Authorization required", Description: "login first"}
	if body.text() != "Authorization required" {
		t.Fatalf("unexpected text: %s", body.text())
	}
	body.Message = " "
	if body.text() != "login first" {
		t.Fatalf("expected description fallback, got %s", body.text())
	}
	var nilBody *wsErrorBody
	if nilBody.text() != "" {
		t.Fatal("nil body should yield empty text")
	}
}
