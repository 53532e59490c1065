package nonkyc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/bookwire/errs"
	"github.com/coachpo/bookwire/internal/adapters/shared"
)

var restTestClock = func() time.Time { return time.UnixMilli(1717171717000).UTC() }

func newTestRESTClient(t *testing.T, handler http.Handler) *restClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts := withDefaults(Options{Config: Config{
		APIKey:        "test-key",
		APISecret:     "test-secret",
		SnapshotLimit: 500,
	}})
	opts.applyEndpoints(srv.URL, "ws://unused.invalid")
	s := newSigner("test-key", "test-secret", restTestClock)
	return newRESTClient(opts, srv.Client(), s, shared.NewWeightedLimiter(), nil, restTestClock)
}

func TestFetchSnapshotNormalizesBothLevelShapes(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTC/USDT" {
			t.Errorf("symbol query %q, want BTC/USDT", got)
		}
		if got := r.URL.Query().Get("limit"); got != "500" {
			t.Errorf("limit query %q, want 500", got)
		}
		_, _ = io.WriteString(w, `{
			"marketid": "abc",
			"symbol": "BTC/USDT",
			"timestamp": 1717171717000,
			"sequence": "6064",
			"bids": [["64000", "1.0"], {"price": "63999.5", "quantity": "2"}],
			"asks": [{"price": "64001", "quantity": 1.5}]
		}`)
	}))

	snapshot, err := client.fetchSnapshot(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("fetchSnapshot: %v", err)
	}
	if snapshot.Sequence != 6064 {
		t.Fatalf("sequence %d, want 6064 from string encoding", snapshot.Sequence)
	}
	if len(snapshot.Bids) != 2 || len(snapshot.Asks) != 1 {
		t.Fatalf("levels not normalized: %d bids, %d asks", len(snapshot.Bids), len(snapshot.Asks))
	}
	if snapshot.Bids[0].Price != "64000" || snapshot.Bids[0].Quantity != "1.0" {
		t.Fatalf("tuple level mangled: %+v", snapshot.Bids[0])
	}
	if snapshot.Bids[1].Price != "63999.5" || snapshot.Bids[1].Quantity != "2" {
		t.Fatalf("keyed level mangled: %+v", snapshot.Bids[1])
	}
	if snapshot.Asks[0].Quantity != "1.5" {
		t.Fatalf("numeric quantity mangled: %+v", snapshot.Asks[0])
	}
	if !snapshot.LastUpdate.Equal(time.UnixMilli(1717171717000).UTC()) {
		t.Fatalf("timestamp %v", snapshot.LastUpdate)
	}
}

func TestFetchSnapshotMissingSequenceIsMalformed(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"symbol":"BTC/USDT","bids":[["1","1"]],"asks":[["2","1"]]}`)
	}))

	_, err := client.fetchSnapshot(context.Background(), "BTC/USDT")
	if !errs.HasCode(err, errs.CodeMalformed) {
		t.Fatalf("error %v, want malformed", err)
	}
	if errs.Transient(err) {
		t.Fatal("malformed response must not be classified transient")
	}
}

func TestFetchSnapshotNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	opts := withDefaults(Options{Config: Config{SnapshotLimit: 500}})
	opts.applyEndpoints(srv.URL, "ws://unused.invalid")
	client := newRESTClient(opts, srv.Client(), newSigner("k", "s", restTestClock), shared.NewWeightedLimiter(), nil, restTestClock)
	srv.Close()

	_, err := client.fetchSnapshot(context.Background(), "BTC/USDT")
	if !errs.HasCode(err, errs.CodeNetwork) {
		t.Fatalf("error %v, want network", err)
	}
	if !errs.Transient(err) {
		t.Fatal("network failure must be transient so the next gap retries it")
	}
}

func TestRateLimitRejectionIsTransient(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.fetchSnapshot(context.Background(), "BTC/USDT")
	if !errs.HasCode(err, errs.CodeRateLimited) {
		t.Fatalf("error %v, want rate_limited", err)
	}
	if !errs.Transient(err) {
		t.Fatal("rate limit rejection must be treated like a transient fetch failure")
	}
}

func TestSignedGETCoversTransmittedURL(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-KEY")
		nonce := r.Header.Get("X-API-NONCE")
		sig := r.Header.Get("X-API-SIGN")
		if key != "test-key" || nonce == "" || sig == "" {
			t.Errorf("auth headers missing: key=%q nonce=%q sig=%q", key, nonce, sig)
		}
		fullURL := "http://" + r.Host + r.URL.RequestURI()
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(key + fullURL + nonce))
		if want := hex.EncodeToString(mac.Sum(nil)); sig != want {
			t.Errorf("signature does not cover the transmitted URL %q", fullURL)
		}
		_, _ = io.WriteString(w, `[{"asset":"BTC","available":"1","held":"0.5"}]`)
	}))

	payloads, err := client.balances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(payloads) != 1 || payloads[0].Currency != "BTC" || payloads[0].Total != "1.5" {
		t.Fatalf("unexpected balances: %+v", payloads)
	}
}

func TestSignedPOSTCoversExactBodyBytes(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		key := r.Header.Get("X-API-KEY")
		nonce := r.Header.Get("X-API-NONCE")
		fullURL := "http://" + r.Host + r.URL.RequestURI()
		mac := hmac.New(sha256.New, []byte("test-secret"))
		mac.Write([]byte(key + fullURL + string(body) + nonce))
		if want := hex.EncodeToString(mac.Sum(nil)); r.Header.Get("X-API-SIGN") != want {
			t.Error("signature does not cover the exact body bytes on the wire")
		}
		_, _ = io.WriteString(w, `{"id":"ord-1","userProvidedId":"abc","symbol":"BTC/USDT","side":"buy","type":"limit","price":"64000","quantity":"1","status":"new"}`)
	}))

	record, err := client.createOrder(context.Background(), createOrderRequest{
		Symbol:         "BTC/USDT",
		Side:           "buy",
		Quantity:       "1",
		Type:           "limit",
		UserProvidedID: "abc",
		Price:          "64000",
	})
	if err != nil {
		t.Fatalf("createOrder: %v", err)
	}
	if record.ID.String() != "ord-1" || record.Status != "new" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestVenueErrorInsideOKBodyMapsOrderNotFound(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"code":20002,"message":"Order not found"}}`)
	}))

	err := client.cancelOrder(context.Background(), "ord-404")
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Fatalf("error %v, want not_found", err)
	}
}

func TestFetchMarketsFiltersInactiveAndDerivesIncrements(t *testing.T) {
	client := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
			{"symbol":"BTC/USDT","primaryTicker":"BTC","secondaryTicker":"USDT",
			 "priceDecimals":2,"quantityDecimals":"6","minimumQuantity":"0.0001",
			 "minQuote":"5","isMinQuoteActive":true,"isActive":true},
			{"symbol":"DEAD/USDT","primaryTicker":"DEAD","secondaryTicker":"USDT",
			 "priceDecimals":2,"quantityDecimals":2,"isActive":false},
			{"symbol":"OLD/USDT","primaryTicker":"OLD","secondaryTicker":"USDT",
			 "priceDecimals":4,"quantityDecimals":0,"active":"true"}
		]`)
	}))

	instruments, err := client.fetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("fetchMarkets: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("got %d instruments, want 2 (inactive filtered)", len(instruments))
	}
	btc := instruments[0]
	if btc.Symbol != "BTC-USDT" || btc.NativeSymbol != "BTC/USDT" {
		t.Fatalf("unexpected symbols: %+v", btc)
	}
	if btc.PriceIncrement != "0.01" || btc.QuantityIncrement != "0.000001" {
		t.Fatalf("increments %s / %s", btc.PriceIncrement, btc.QuantityIncrement)
	}
	if btc.MinQuantity != "0.0001" || btc.MinNotional != "5" {
		t.Fatalf("limits %s / %s", btc.MinQuantity, btc.MinNotional)
	}
	old := instruments[1]
	if old.Symbol != "OLD-USDT" || old.QuantityIncrement != "1" {
		t.Fatalf("loosely typed active record mishandled: %+v", old)
	}
}

func TestComputeFeeScheduleSplitsMakerAndTaker(t *testing.T) {
	now := restTestClock()
	trades := []accountTrade{
		// Maker: the account's side did not trigger the fill.
		{Side: "buy", TriggeredBy: "sell", Price: "100", Quantity: "2", Fee: "0.2"},
		// Taker: same side triggered.
		{Side: "buy", TriggeredBy: "buy", Price: "100", Quantity: "1", Fee: "0.4"},
		// Unusable: no fee.
		{Side: "sell", TriggeredBy: "buy", Price: "100", Quantity: "1"},
	}
	schedule := computeFeeSchedule(trades, now)
	if schedule.MakerSamples != 1 || schedule.TakerSamples != 1 {
		t.Fatalf("samples %d/%d, want 1/1", schedule.MakerSamples, schedule.TakerSamples)
	}
	if !schedule.MakerRate.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("maker rate %s, want 0.001", schedule.MakerRate)
	}
	if !schedule.TakerRate.Equal(decimal.RequireFromString("0.004")) {
		t.Fatalf("taker rate %s, want 0.004", schedule.TakerRate)
	}
}

func TestComputeFeeScheduleFallsBackToDefaults(t *testing.T) {
	schedule := computeFeeSchedule(nil, restTestClock())
	if !schedule.MakerRate.Equal(defaultMakerFeeRate) || !schedule.TakerRate.Equal(defaultTakerFeeRate) {
		t.Fatalf("rates %s/%s, want venue defaults", schedule.MakerRate, schedule.TakerRate)
	}
}

func TestMapOrderRecordDerivesFillProgress(t *testing.T) {
	record := orderRecord{
		ID:               wireScalar("ord-7"),
		UserProvidedID:   "client-7",
		Symbol:           "BTC/USDT",
		Side:             "sell",
		Type:             "limit",
		Price:            wireScalar("64000"),
		Quantity:         wireScalar("2"),
		ExecutedQuantity: wireScalar("0.5"),
		Status:           "partly filled",
		UpdatedAt:        wireScalar("1717171717000"),
	}
	payload, err := mapOrderRecord(record)
	if err != nil {
		t.Fatalf("mapOrderRecord: %v", err)
	}
	if payload.State != "PARTIAL" {
		t.Fatalf("state %s, want PARTIAL", payload.State)
	}
	if payload.FilledQuantity != "0.5" || payload.RemainingQty != "1.5" {
		t.Fatalf("fill progress %s/%s", payload.FilledQuantity, payload.RemainingQty)
	}
	if payload.ExchangeOrderID != "ord-7" || payload.ClientOrderID != "client-7" {
		t.Fatalf("ids %s/%s", payload.ExchangeOrderID, payload.ClientOrderID)
	}

	record.Status = "in some new venue state"
	if _, err := mapOrderRecord(record); !errs.HasCode(err, errs.CodeMalformed) {
		t.Fatalf("unknown status error %v, want malformed", err)
	}
}
