package nonkyc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/bookwire/errs"
	"github.com/coachpo/bookwire/internal/adapters/shared"
	"github.com/coachpo/bookwire/internal/schema"
)

// Endpoint weights against the venue's shared request budget.
const (
	weightOrderbook   = 100
	weightMarkets     = 20
	weightBalances    = 20
	weightAccountList = 20
	weightOrderAction = 4
	weightCancelAll   = 10
	weightTicker      = 2
	weightTickers     = 4
	weightTime        = 1
	weightInfo        = 1
)

const (
	maxResponseBody = 8 << 20

	feeCacheTTL     = time.Hour
	feeLookbackSpan = 24 * time.Hour

	venueCodeOrderNotFound = "20002"
)

var (
	defaultMakerFeeRate = decimal.RequireFromString("0.002")
	defaultTakerFeeRate = decimal.RequireFromString("0.002")
)

// restClient wraps the venue's spot REST API with request signing, weighted
// rate limiting and canonical error envelopes.
type restClient struct {
	opts    Options
	client  *http.Client
	signer  *signer
	limiter *shared.WeightedLimiter
	metrics *providerMetrics
	clock   func() time.Time

	feeMu       sync.Mutex
	feeSchedule FeeSchedule
}

func newRESTClient(opts Options, client *http.Client, signer *signer, limiter *shared.WeightedLimiter, metrics *providerMetrics, clock func() time.Time) *restClient {
	if client == nil {
		client = &http.Client{Timeout: opts.httpTimeoutDuration()}
	}
	if clock == nil {
		clock = time.Now
	}
	return &restClient{
		opts:    opts,
		client:  client,
		signer:  signer,
		limiter: limiter,
		metrics: metrics,
		clock:   clock,
	}
}

func (c *restClient) wait(ctx context.Context, weight int, orderBudget bool) error {
	if orderBudget {
		return c.limiter.WaitOrder(ctx, weight)
	}
	return c.limiter.Wait(ctx, weight)
}

func (c *restClient) get(ctx context.Context, op, endpoint string, query url.Values, weight int, signed, orderBudget bool) ([]byte, error) {
	if err := c.wait(ctx, weight, orderBudget); err != nil {
		return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
	}
	fullURL := endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, errs.New("nonkyc", errs.CodeInvalid,
			errs.WithMessage(op+": build request"), errs.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		// The signature covers the exact URL on the wire, query included.
		c.signer.signGET(fullURL).apply(req)
	}
	return c.send(op, req)
}

func (c *restClient) post(ctx context.Context, op, endpoint string, payload any, weight int, orderBudget bool) ([]byte, error) {
	if err := c.wait(ctx, weight, orderBudget); err != nil {
		return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.New("nonkyc", errs.CodeInvalid,
			errs.WithMessage(op+": encode request"), errs.WithCause(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New("nonkyc", errs.CodeInvalid,
			errs.WithMessage(op+": build request"), errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// The signature covers the exact body bytes placed on the wire.
	c.signer.signPOST(endpoint, body).apply(req)
	return c.send(op, req)
}

func (c *restClient) send(op string, req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.recordRESTRequest(req.Context(), op, "error")
		return nil, errs.New("nonkyc", errs.CodeNetwork,
			errs.WithMessage(op+": request failed"), errs.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.metrics.recordRESTRequest(req.Context(), op, "error")
		return nil, errs.New("nonkyc", errs.CodeNetwork,
			errs.WithMessage(op+": read response"), errs.WithCause(err))
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.recordRESTRequest(req.Context(), op, "error")
		return nil, venueError(op, resp.StatusCode, venueErrorDetail(body))
	}
	// The venue reports some failures inside an HTTP 200 body.
	if detail := venueErrorDetail(body); detail != nil {
		c.metrics.recordRESTRequest(req.Context(), op, "error")
		return nil, venueError(op, resp.StatusCode, detail)
	}
	c.metrics.recordRESTRequest(req.Context(), op, "ok")
	return body, nil
}

// venueErrorDetail probes a response body for the venue's error envelope.
func venueErrorDetail(body []byte) *wsErrorBody {
	var probe struct {
		Error *wsErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	if probe.Error == nil || (probe.Error.Code == 0 && probe.Error.text() == "") {
		return nil
	}
	return probe.Error
}

func orderNotFoundDetail(detail *wsErrorBody) bool {
	if detail == nil {
		return false
	}
	if strconv.Itoa(detail.Code) == venueCodeOrderNotFound {
		return true
	}
	switch detail.text() {
	case "Order not found", "Active order not found for cancellation":
		return true
	}
	return false
}

func venueError(op string, status int, detail *wsErrorBody) error {
	code := errs.CodeExchange
	opts := []errs.Option{errs.WithMessage(op + ": venue reported an error")}
	if status > 0 {
		opts = append(opts, errs.WithHTTP(status))
	}
	if detail != nil {
		opts = append(opts, errs.WithRawCode(strconv.Itoa(detail.Code)), errs.WithRawMessage(detail.text()))
	}
	switch {
	case orderNotFoundDetail(detail):
		code = errs.CodeNotFound
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
	case status == http.StatusTooManyRequests:
		code = errs.CodeRateLimited
		opts = append(opts,
			errs.WithCanonicalCode(errs.CanonicalRateLimited),
			errs.WithRemediation("back off and retry after the venue window resets"))
	}
	return errs.New("nonkyc", code, opts...)
}

func decodeBody(op string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return errs.New("nonkyc", errs.CodeMalformed,
			errs.WithMessage(op+": decode response"), errs.WithCause(err))
	}
	return nil
}

// fetchSnapshot pulls a full order book for one venue symbol. The response
// must carry bids, asks and a positive sequence; anything else is malformed
// because the caller cannot anchor diffs without a sequence.
func (c *restClient) fetchSnapshot(ctx context.Context, nativeSymbol string) (schema.BookSnapshotPayload, error) {
	query := url.Values{}
	query.Set("symbol", nativeSymbol)
	query.Set("limit", strconv.Itoa(c.opts.Config.SnapshotLimit))
	body, err := c.get(ctx, "orderbook", c.opts.orderbookEndpoint(), query, weightOrderbook, false, false)
	if err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	var response struct {
		Bids      json.RawMessage `json:"bids"`
		Asks      json.RawMessage `json:"asks"`
		Sequence  wireSequence    `json:"sequence"`
		Timestamp wireScalar      `json:"timestamp"`
	}
	if err := decodeBody("orderbook", body, &response); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	if len(response.Bids) == 0 || len(response.Asks) == 0 || response.Sequence == 0 {
		return schema.BookSnapshotPayload{}, errs.New("nonkyc", errs.CodeMalformed,
			errs.WithMessage("orderbook: snapshot missing bids, asks or sequence"))
	}
	var bids, asks []wireLevel
	if err := decodeBody("orderbook", response.Bids, &bids); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	if err := decodeBody("orderbook", response.Asks, &asks); err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	snapshot := schema.BookSnapshotPayload{
		Bids:       convertWireLevels(bids),
		Asks:       convertWireLevels(asks),
		Sequence:   uint64(response.Sequence),
		LastUpdate: parseMilliTimestamp(response.Timestamp.String()),
	}
	if snapshot.LastUpdate.IsZero() {
		snapshot.LastUpdate = c.clock()
	}
	return snapshot, nil
}

// marketRecord is one entry from the market list endpoint.
type marketRecord struct {
	Symbol            string          `json:"symbol"`
	PrimaryTicker     string          `json:"primaryTicker"`
	SecondaryTicker   string          `json:"secondaryTicker"`
	PriceDecimals     wireScalar      `json:"priceDecimals"`
	QuantityDecimals  wireScalar      `json:"quantityDecimals"`
	MinimumQuantity   wireScalar      `json:"minimumQuantity"`
	MaximumQuantity   wireScalar      `json:"maximumQuantity"`
	MinQuote          wireScalar      `json:"minQuote"`
	IsMinQuoteActive  bool            `json:"isMinQuoteActive"`
	AllowMarketOrders *bool           `json:"allowMarketOrders"`
	IsActive          *bool           `json:"isActive"`
	Active            json.RawMessage `json:"active"`
}

// isActive reports whether the market is open for trading. Newer payloads use
// the isActive boolean; older ones carry a loosely typed active field.
func (m marketRecord) isActive() bool {
	if m.IsActive != nil {
		return *m.IsActive
	}
	raw := bytes.TrimSpace(m.Active)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")):
		return false
	case bytes.Equal(raw, []byte("true")):
		return true
	case bytes.Equal(raw, []byte("false")), bytes.Equal(raw, []byte("0")):
		return false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.ToLower(strings.TrimSpace(text))
		return text != "" && text != "false" && text != "0"
	}
	return true
}

// instrument converts the venue record into the canonical representation.
// Decimal place counts become smallest increments, and the minimum quantity
// defaults to one quantity increment when the venue omits it.
func (m marketRecord) instrument() (schema.Instrument, error) {
	native := strings.TrimSpace(m.Symbol)
	if native == "" {
		return schema.Instrument{}, fmt.Errorf("market record missing symbol")
	}
	base := strings.ToUpper(strings.TrimSpace(m.PrimaryTicker))
	quote := strings.ToUpper(strings.TrimSpace(m.SecondaryTicker))
	if base == "" || quote == "" {
		parts := strings.Split(native, "/")
		if len(parts) != 2 {
			return schema.Instrument{}, fmt.Errorf("market %s: cannot derive currencies", native)
		}
		base = strings.ToUpper(strings.TrimSpace(parts[0]))
		quote = strings.ToUpper(strings.TrimSpace(parts[1]))
	}
	symbol := base + "-" + quote
	if err := schema.ValidateInstrument(symbol); err != nil {
		return schema.Instrument{}, err
	}
	priceIncrement, err := incrementFromDecimals(m.PriceDecimals)
	if err != nil {
		return schema.Instrument{}, fmt.Errorf("market %s: price decimals: %w", native, err)
	}
	quantityIncrement, err := incrementFromDecimals(m.QuantityDecimals)
	if err != nil {
		return schema.Instrument{}, fmt.Errorf("market %s: quantity decimals: %w", native, err)
	}
	inst := schema.Instrument{
		Symbol:            symbol,
		NativeSymbol:      native,
		BaseCurrency:      base,
		QuoteCurrency:     quote,
		PriceIncrement:    priceIncrement,
		QuantityIncrement: quantityIncrement,
		MinQuantity:       quantityIncrement,
		AllowMarketOrders: true,
	}
	if minQty, ok := m.MinimumQuantity.decimalValue(); ok && minQty.IsPositive() {
		inst.MinQuantity = minQty.String()
	}
	if maxQty, ok := m.MaximumQuantity.decimalValue(); ok && maxQty.IsPositive() {
		inst.MaxQuantity = maxQty.String()
	}
	if m.IsMinQuoteActive {
		if minQuote, ok := m.MinQuote.decimalValue(); ok && minQuote.IsPositive() {
			inst.MinNotional = minQuote.String()
		}
	}
	if m.AllowMarketOrders != nil {
		inst.AllowMarketOrders = *m.AllowMarketOrders
	}
	return inst, nil
}

func incrementFromDecimals(raw wireScalar) (string, error) {
	value, ok := raw.decimalValue()
	if !ok {
		return "", fmt.Errorf("missing decimals")
	}
	places := int32(value.IntPart())
	if places < 0 || places > 18 {
		return "", fmt.Errorf("unusable decimals %s", value)
	}
	return decimal.New(1, -places).String(), nil
}

// fetchMarkets lists tradable instruments, dropping inactive markets and
// records whose trading rules cannot be parsed.
func (c *restClient) fetchMarkets(ctx context.Context) ([]schema.Instrument, error) {
	body, err := c.get(ctx, "markets", c.opts.marketsEndpoint(), nil, weightMarkets, false, false)
	if err != nil {
		return nil, err
	}
	var records []marketRecord
	if err := decodeBody("markets", body, &records); err != nil {
		return nil, err
	}
	instruments := make([]schema.Instrument, 0, len(records))
	for _, record := range records {
		if !record.isActive() {
			continue
		}
		inst, err := record.instrument()
		if err != nil {
			continue
		}
		instruments = append(instruments, inst)
	}
	return instruments, nil
}

// serverTime reads the venue clock.
func (c *restClient) serverTime(ctx context.Context) (time.Time, error) {
	body, err := c.get(ctx, "time", c.opts.timeEndpoint(), nil, weightTime, false, false)
	if err != nil {
		return time.Time{}, err
	}
	var response struct {
		ServerTime wireScalar `json:"serverTime"`
	}
	if err := decodeBody("time", body, &response); err != nil {
		return time.Time{}, err
	}
	ts := parseMilliTimestamp(response.ServerTime.String())
	if ts.IsZero() {
		return time.Time{}, errs.New("nonkyc", errs.CodeMalformed,
			errs.WithMessage("time: response missing serverTime"))
	}
	return ts, nil
}

// ping verifies plain REST connectivity against the cheapest endpoint.
func (c *restClient) ping(ctx context.Context) error {
	_, err := c.get(ctx, "info", c.opts.infoEndpoint(), nil, weightInfo, false, false)
	return err
}

// lastPrice returns the most recent trade price for a venue symbol, falling
// back to the consolidated tickers list when the single ticker endpoint
// yields nothing usable.
func (c *restClient) lastPrice(ctx context.Context, nativeSymbol string) (string, error) {
	body, err := c.get(ctx, "ticker", c.opts.tickerEndpoint(nativeSymbol), nil, weightTicker, false, false)
	if err == nil {
		var ticker struct {
			LastPrice wireScalar `json:"last_price"`
		}
		if decodeErr := decodeBody("ticker", body, &ticker); decodeErr == nil && !ticker.LastPrice.empty() {
			return ticker.LastPrice.String(), nil
		}
	}
	body, err = c.get(ctx, "tickers", c.opts.tickersEndpoint(), nil, weightTickers, false, false)
	if err != nil {
		return "", err
	}
	var tickers []struct {
		TickerID  wireScalar `json:"ticker_id"`
		LastPrice wireScalar `json:"last_price"`
	}
	if err := decodeBody("tickers", body, &tickers); err != nil {
		return "", err
	}
	wanted := strings.ReplaceAll(nativeSymbol, "/", "_")
	for _, entry := range tickers {
		if entry.TickerID.String() != wanted {
			continue
		}
		if entry.LastPrice.empty() {
			break
		}
		return entry.LastPrice.String(), nil
	}
	return "", errs.New("nonkyc", errs.CodeNotFound,
		errs.WithMessage("ticker: no last price for "+nativeSymbol))
}

// balances reads the account's funds per currency.
func (c *restClient) balances(ctx context.Context) ([]schema.BalancePayload, error) {
	body, err := c.get(ctx, "balances", c.opts.balancesEndpoint(), nil, weightBalances, true, false)
	if err != nil {
		return nil, err
	}
	var entries []balanceEntry
	if err := decodeBody("balances", body, &entries); err != nil {
		return nil, err
	}
	now := c.clock()
	payloads := make([]schema.BalancePayload, 0, len(entries))
	for _, entry := range entries {
		currency := schema.NormalizeCurrencyCode(entry.currency())
		if currency == "" {
			continue
		}
		payloads = append(payloads, balancePayload(currency, entry, now))
	}
	return payloads, nil
}

// openOrders lists the account's orders as reported by the venue.
func (c *restClient) openOrders(ctx context.Context) ([]orderRecord, error) {
	query := url.Values{"status": []string{"active"}}
	body, err := c.get(ctx, "account_orders", c.opts.accountOrdersEndpoint(), query, weightAccountList, true, false)
	if err != nil {
		return nil, err
	}
	var orders []orderRecord
	if err := decodeBody("account_orders", body, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// accountTrade is one fill from the account trade history.
type accountTrade struct {
	ID                wireScalar `json:"id"`
	OrderID           wireScalar `json:"orderid"`
	Symbol            string     `json:"symbol"`
	Side              string     `json:"side"`
	TriggeredBy       string     `json:"triggeredBy"`
	Price             wireScalar `json:"price"`
	Quantity          wireScalar `json:"quantity"`
	Fee               wireScalar `json:"fee"`
	AlternateFeeAsset string     `json:"alternateFeeAsset"`
	AlternateFee      wireScalar `json:"alternateFee"`
	Timestamp         wireScalar `json:"timestamp"`
}

// feeRate computes fee divided by notional, reporting false when the trade
// carries no positive fee or notional.
func (t accountTrade) feeRate() (decimal.Decimal, bool) {
	fee, ok := t.Fee.decimalValue()
	if !ok || !fee.IsPositive() {
		return decimal.Decimal{}, false
	}
	price, ok := t.Price.decimalValue()
	if !ok {
		return decimal.Decimal{}, false
	}
	quantity, ok := t.Quantity.decimalValue()
	if !ok {
		return decimal.Decimal{}, false
	}
	notional := price.Mul(quantity)
	if !notional.IsPositive() {
		return decimal.Decimal{}, false
	}
	return fee.Div(notional), true
}

// maker reports whether the account's order was the resting side. The venue
// marks each fill with the side that triggered it, so the account was the
// maker exactly when its side differs from the triggering side.
func (t accountTrade) maker() bool {
	side := strings.ToLower(strings.TrimSpace(t.Side))
	triggered := strings.ToLower(strings.TrimSpace(t.TriggeredBy))
	if side == "" || triggered == "" {
		return false
	}
	return side != triggered
}

// accountTrades reads the account fill history, optionally scoped to one
// venue symbol and a millisecond lower bound.
func (c *restClient) accountTrades(ctx context.Context, nativeSymbol string, since time.Time) ([]accountTrade, error) {
	query := url.Values{}
	if strings.TrimSpace(nativeSymbol) != "" {
		query.Set("symbol", nativeSymbol)
	}
	if !since.IsZero() {
		query.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	}
	body, err := c.get(ctx, "account_trades", c.opts.accountTradesEndpoint(), query, weightAccountList, true, false)
	if err != nil {
		return nil, err
	}
	var trades []accountTrade
	if err := decodeBody("account_trades", body, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// orderStatus reads one order by its venue id or client id.
func (c *restClient) orderStatus(ctx context.Context, orderID string) (orderRecord, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return orderRecord{}, errs.New("nonkyc", errs.CodeInvalid,
			errs.WithMessage("order_status: order id required"))
	}
	body, err := c.get(ctx, "order_status", c.opts.orderInfoEndpoint(trimmed), nil, weightOrderAction, true, true)
	if err != nil {
		return orderRecord{}, err
	}
	var record orderRecord
	if err := decodeBody("order_status", body, &record); err != nil {
		return orderRecord{}, err
	}
	return record, nil
}

// createOrderRequest is the order submission body.
type createOrderRequest struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Quantity       string `json:"quantity"`
	Type           string `json:"type"`
	UserProvidedID string `json:"userProvidedId"`
	Price          string `json:"price,omitempty"`
}

func (c *restClient) createOrder(ctx context.Context, request createOrderRequest) (orderRecord, error) {
	body, err := c.post(ctx, "create_order", c.opts.createOrderEndpoint(), request, weightOrderAction, true)
	if err != nil {
		return orderRecord{}, err
	}
	var record orderRecord
	if err := decodeBody("create_order", body, &record); err != nil {
		return orderRecord{}, err
	}
	if record.ID.empty() {
		return orderRecord{}, errs.New("nonkyc", errs.CodeExchange,
			errs.WithMessage("create_order: response missing order id"))
	}
	return record, nil
}

func (c *restClient) cancelOrder(ctx context.Context, orderID string) error {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return errs.New("nonkyc", errs.CodeInvalid,
			errs.WithMessage("cancel_order: order id required"))
	}
	payload := struct {
		ID string `json:"id"`
	}{ID: trimmed}
	_, err := c.post(ctx, "cancel_order", c.opts.cancelOrderEndpoint(), payload, weightOrderAction, true)
	return err
}

// cancelAllOrders cancels every open order, optionally scoped to one venue
// symbol. The venue reports failures for this endpoint inside an HTTP 200
// body, which send already maps to an error.
func (c *restClient) cancelAllOrders(ctx context.Context, nativeSymbol string) ([]orderRecord, error) {
	payload := struct {
		Symbol string `json:"symbol,omitempty"`
	}{Symbol: strings.TrimSpace(nativeSymbol)}
	body, err := c.post(ctx, "cancel_all", c.opts.cancelAllOrdersEndpoint(), payload, weightCancelAll, true)
	if err != nil {
		return nil, err
	}
	var records []orderRecord
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}
	var single orderRecord
	if err := json.Unmarshal(body, &single); err == nil && !single.ID.empty() {
		return []orderRecord{single}, nil
	}
	return nil, nil
}

// FeeSchedule summarizes recent trading costs as maker and taker rates.
type FeeSchedule struct {
	MakerRate    decimal.Decimal
	TakerRate    decimal.Decimal
	MakerSamples int
	TakerSamples int
	ComputedAt   time.Time
}

// tradingFees estimates fee rates from the last day of account fills, cached
// for an hour. Sides without a single usable sample keep the venue's default
// rate.
func (c *restClient) tradingFees(ctx context.Context) (FeeSchedule, error) {
	c.feeMu.Lock()
	defer c.feeMu.Unlock()
	now := c.clock()
	if !c.feeSchedule.ComputedAt.IsZero() && now.Sub(c.feeSchedule.ComputedAt) < feeCacheTTL {
		return c.feeSchedule, nil
	}
	trades, err := c.accountTrades(ctx, "", now.Add(-feeLookbackSpan))
	if err != nil {
		return FeeSchedule{}, err
	}
	c.feeSchedule = computeFeeSchedule(trades, now)
	return c.feeSchedule, nil
}

func computeFeeSchedule(trades []accountTrade, now time.Time) FeeSchedule {
	schedule := FeeSchedule{
		MakerRate:  defaultMakerFeeRate,
		TakerRate:  defaultTakerFeeRate,
		ComputedAt: now,
	}
	makerTotal, takerTotal := decimal.Zero, decimal.Zero
	for _, trade := range trades {
		rate, ok := trade.feeRate()
		if !ok {
			continue
		}
		if trade.maker() {
			makerTotal = makerTotal.Add(rate)
			schedule.MakerSamples++
		} else {
			takerTotal = takerTotal.Add(rate)
			schedule.TakerSamples++
		}
	}
	if schedule.MakerSamples > 0 {
		schedule.MakerRate = makerTotal.Div(decimal.NewFromInt(int64(schedule.MakerSamples)))
	}
	if schedule.TakerSamples > 0 {
		schedule.TakerRate = takerTotal.Div(decimal.NewFromInt(int64(schedule.TakerSamples)))
	}
	return schedule
}

// mapOrderState translates a venue order status to its canonical state.
func mapOrderState(status string) (schema.ExecReportState, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "new", "active":
		return schema.ExecReportStateACK, true
	case "partly filled", "partially filled":
		return schema.ExecReportStatePARTIAL, true
	case "filled":
		return schema.ExecReportStateFILLED, true
	case "cancelled", "canceled":
		return schema.ExecReportStateCANCELLED, true
	case "expired":
		return schema.ExecReportStateEXPIRED, true
	case "rejected", "suspended":
		return schema.ExecReportStateREJECTED, true
	}
	return "", false
}

func mapOrderType(orderType string) (schema.OrderType, bool) {
	switch strings.ToLower(strings.TrimSpace(orderType)) {
	case "limit":
		return schema.OrderTypeLimit, true
	case "market":
		return schema.OrderTypeMarket, true
	}
	return "", false
}

func orderSide(side string) schema.TradeSide {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy":
		return schema.TradeSideBuy
	case "sell":
		return schema.TradeSideSell
	}
	return ""
}

// mapOrderRecord converts a venue order object into an execution report.
func mapOrderRecord(record orderRecord) (schema.ExecReportPayload, error) {
	state, ok := mapOrderState(record.Status)
	if !ok {
		return schema.ExecReportPayload{}, errs.New("nonkyc", errs.CodeMalformed,
			errs.WithMessage("unrecognized order status"),
			errs.WithRawMessage(record.Status))
	}
	payload := schema.ExecReportPayload{
		ClientOrderID:   strings.TrimSpace(record.UserProvidedID),
		ExchangeOrderID: record.ID.String(),
		State:           state,
		Side:            orderSide(record.Side),
		Price:           record.Price.String(),
		Quantity:        record.Quantity.String(),
		Timestamp:       orderRecordTime(record),
	}
	if orderType, ok := mapOrderType(record.Type); ok {
		payload.OrderType = orderType
	}
	if filled, remaining, ok := fillProgress(record.Quantity, record.ExecutedQuantity); ok {
		payload.FilledQuantity = filled
		payload.RemainingQty = remaining
	}
	return payload, nil
}

func orderRecordTime(record orderRecord) time.Time {
	if ts := parseMilliTimestamp(record.UpdatedAt.String()); !ts.IsZero() {
		return ts
	}
	return parseMilliTimestamp(record.CreatedAt.String())
}
