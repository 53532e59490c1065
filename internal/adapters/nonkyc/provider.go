// Package nonkyc streams NonKYC spot market data and account events into
// canonical per-type queues. Order books are kept gap free by reconciling
// the venue's diff stream against REST snapshots.
package nonkyc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/bookwire/errs"
	"github.com/coachpo/bookwire/internal/adapters/shared"
	"github.com/coachpo/bookwire/internal/observability"
	"github.com/coachpo/bookwire/internal/schema"
	"github.com/coachpo/bookwire/internal/telemetry"
)

const (
	errorChanBuffer      = 32
	baselineFetchTimeout = 5 * time.Second
)

// Provider is the NonKYC adapter instance. One public websocket carries all
// market data subscriptions; a second authenticated connection carries order
// reports and balances when the user stream is enabled.
type Provider struct {
	name  string
	opts  Options
	clock func() time.Time

	router  *shared.Router
	metrics *providerMetrics
	signer  *signer
	limiter *shared.WeightedLimiter
	rest    *restClient
	tracker *sequenceTracker
	recon   *bookReconciler
	subs    *shared.SubscriptionManager

	errors chan error

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	tasks   conc.WaitGroup

	instrumentMu sync.RWMutex
	instruments  map[string]schema.Instrument
	nativeIndex  map[string]string

	wsMu sync.Mutex
	ws   *wsManager

	userWSMu sync.Mutex
	userWS   *wsManager

	balanceMu sync.Mutex
	balances  map[string]fundsState
}

// New builds an unstarted provider from the options.
func New(opts Options) *Provider {
	opts = withDefaults(opts)
	p := &Provider{
		name:        opts.Config.Name,
		opts:        opts,
		clock:       time.Now,
		errors:      make(chan error, errorChanBuffer),
		instruments: make(map[string]schema.Instrument),
		nativeIndex: make(map[string]string),
		balances:    make(map[string]fundsState),
	}
	p.metrics = newProviderMetrics(p)
	p.router = shared.NewRouter(p.name, opts.Config.QueueBuffer, p.clock)
	p.signer = newSigner(opts.Config.APIKey, opts.Config.APISecret, p.clock)
	p.signer.baseTimeout = opts.Config.HandshakeTimeout
	p.limiter = shared.NewWeightedLimiter()
	p.rest = newRESTClient(opts, nil, p.signer, p.limiter, p.metrics, p.clock)
	p.tracker = newSequenceTracker()
	p.recon = newBookReconciler(p.tracker, p.fetchBaseline, p.router, p.metrics, p.clock)
	p.subs = shared.NewSubscriptionManager(marketChannels{p})
	return p
}

// Name returns the adapter identifier.
func (p *Provider) Name() string { return p.name }

// Start brings the provider online: it loads the instrument table, starts
// the refresh loop, and connects the authenticated stream when enabled. The
// market connection is dialed lazily on the first subscription. The provider
// runs until ctx is cancelled and cannot be restarted.
func (p *Provider) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errs.New(p.name, errs.CodeInvalid, errs.WithMessage("provider already started"))
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.ctx = runCtx
	p.cancel = cancel

	if err := p.refreshInstruments(runCtx); err != nil {
		p.abortStart(cancel)
		return fmt.Errorf("load instruments: %w", err)
	}
	p.tasks.Go(func() { p.instrumentRefreshLoop(runCtx) })

	if p.opts.Config.UserStream {
		if !p.opts.hasCredentials() {
			p.abortStart(cancel)
			return errs.New(p.name, errs.CodeInvalid,
				errs.WithMessage("user stream requires credentials"),
				errs.WithRemediation("set api_key and api_secret or disable user_stream"))
		}
		if err := p.startUserStream(); err != nil {
			p.abortStart(cancel)
			return err
		}
	}

	go p.supervise(runCtx)
	return nil
}

// abortStart unwinds a failed Start so no goroutines or queues leak.
func (p *Provider) abortStart(cancel context.CancelFunc) {
	cancel()
	p.tasks.Wait()
	p.router.Close()
	close(p.errors)
}

// Close stops the provider without waiting on the parent context.
func (p *Provider) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

// supervise tears the provider down once the run context ends: websocket
// managers first, then the background loops, then the output queues.
func (p *Provider) supervise(ctx context.Context) {
	<-ctx.Done()

	p.wsMu.Lock()
	if p.ws != nil {
		p.ws.stop()
		p.ws = nil
	}
	p.wsMu.Unlock()

	p.userWSMu.Lock()
	if p.userWS != nil {
		p.userWS.stop()
		p.userWS = nil
	}
	p.userWSMu.Unlock()

	// Invalidate in-flight resyncs and drop all per pair sequence state.
	p.recon.handleReconnect()
	p.subs.Clear()

	p.tasks.Wait()
	p.router.Close()
	close(p.errors)
}

// Trades is the ordered public trade queue.
func (p *Provider) Trades() <-chan *schema.Event { return p.router.Trades() }

// Diffs is the ordered order book delta queue.
func (p *Provider) Diffs() <-chan *schema.Event { return p.router.Diffs() }

// Snapshots is the order book baseline queue.
func (p *Provider) Snapshots() <-chan *schema.Event { return p.router.Snapshots() }

// Account is the execution report and balance queue.
func (p *Provider) Account() <-chan *schema.Event { return p.router.Account() }

// Errors surfaces asynchronous failures. The channel closes on shutdown.
func (p *Provider) Errors() <-chan error { return p.errors }

// Release returns a consumed event to the provider for recycling.
func (p *Provider) Release(evt *schema.Event) { p.router.Release(evt) }

// Subscribe activates trade and order book feeds for each canonical
// BASE-QUOTE symbol. Already active symbols are skipped.
func (p *Provider) Subscribe(ctx context.Context, symbols []string) error {
	if err := p.ensureRunning(); err != nil {
		return err
	}
	for _, symbol := range symbols {
		if err := schema.ValidateInstrument(symbol); err != nil {
			return err
		}
		if err := p.subs.Activate(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe deactivates the feeds for each symbol and clears its book
// state, so a later resubscribe starts clean from a fresh baseline.
func (p *Provider) Unsubscribe(ctx context.Context, symbols []string) error {
	if err := p.ensureRunning(); err != nil {
		return err
	}
	for _, symbol := range symbols {
		if err := p.subs.Deactivate(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) subscribeSymbol(ctx context.Context, symbol string) error {
	native, err := p.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	manager, err := p.ensureWS()
	if err != nil {
		return err
	}
	p.recon.markColdStart(symbol)
	return manager.subscribe(p.marketSubscriptions(native))
}

func (p *Provider) unsubscribeSymbol(ctx context.Context, symbol string) error {
	native, err := p.nativeSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	p.recon.forget(symbol)
	p.wsMu.Lock()
	manager := p.ws
	p.wsMu.Unlock()
	if manager == nil {
		return nil
	}
	return manager.unsubscribe(p.marketSubscriptions(native))
}

func (p *Provider) marketSubscriptions(native string) []wsSubscription {
	return []wsSubscription{
		{Method: methodSubscribeTrades, Symbol: native},
		{Method: methodSubscribeOrderbook, Symbol: native, Limit: p.opts.Config.BookDepth},
	}
}

// ensureWS lazily dials the market connection. All market subscriptions
// share it.
func (p *Provider) ensureWS() (*wsManager, error) {
	p.wsMu.Lock()
	defer p.wsMu.Unlock()
	if p.ws != nil {
		return p.ws, nil
	}
	manager := newWSManager(p.runCtx(), "market", p.opts.websocketURL(), p.handleMarketMessage, p.errors, p.metrics)
	manager.onConnect = p.handleMarketReconnect
	if err := manager.start(); err != nil {
		manager.stop()
		return nil, err
	}
	p.ws = manager
	return manager, nil
}

// handleMarketReconnect runs on every market connection, including the
// first. Sequence numbers do not survive a reconnect, so every pair waits
// for a fresh baseline from the replayed subscriptions.
func (p *Provider) handleMarketReconnect() {
	p.recon.handleReconnect()
	for _, symbol := range p.subs.Snapshot() {
		p.recon.markColdStart(symbol)
	}
}

// handleMarketMessage routes one market data frame. Frames for pairs
// without an active subscription are dropped, so late data cannot restart
// the book of an unsubscribed pair.
func (p *Provider) handleMarketMessage(data []byte) error {
	msg := classifyFrame(data)
	switch msg.Kind {
	case kindTrades:
		symbol, ok := p.activeSymbol(msg.Symbol)
		if !ok {
			return nil
		}
		ctx := p.runCtx()
		for _, payload := range expandTrades(msg.Trades, p.clock) {
			p.router.PublishTrade(ctx, symbol, payload)
			p.metrics.recordEvent(ctx, telemetry.EventTypeTrade, symbol)
		}
	case kindBookDiff:
		symbol, ok := p.activeSymbol(msg.Symbol)
		if !ok {
			return nil
		}
		p.recon.handleDiff(p.runCtx(), symbol, msg.Book)
	case kindBookSnapshot:
		symbol, ok := p.activeSymbol(msg.Symbol)
		if !ok {
			return nil
		}
		p.recon.handleSnapshot(p.runCtx(), symbol, msg.Book)
	}
	return nil
}

// activeSymbol maps a venue symbol onto its canonical form and reports
// whether the pair holds an active subscription.
func (p *Provider) activeSymbol(native string) (string, bool) {
	symbol := p.canonicalSymbol(native)
	if symbol == "" || !p.subs.Active(symbol) {
		return "", false
	}
	return symbol, true
}

// canonicalSymbol converts a venue symbol like BTC/USDT to the canonical
// BTC-USDT form, preferring the instrument table over string surgery.
func (p *Provider) canonicalSymbol(native string) string {
	key := strings.ToUpper(strings.TrimSpace(native))
	if key == "" {
		return ""
	}
	p.instrumentMu.RLock()
	symbol, ok := p.nativeIndex[key]
	p.instrumentMu.RUnlock()
	if ok {
		return symbol
	}
	return strings.ReplaceAll(key, "/", "-")
}

// nativeSymbol resolves the venue form of a canonical symbol, refreshing
// the instrument table once for pairs listed after the last refresh.
func (p *Provider) nativeSymbol(ctx context.Context, symbol string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if inst, ok := p.lookupInstrument(key); ok {
		return inst.NativeSymbol, nil
	}
	if err := p.refreshInstruments(ctx); err != nil {
		return "", err
	}
	if inst, ok := p.lookupInstrument(key); ok {
		return inst.NativeSymbol, nil
	}
	return "", errs.New(p.name, errs.CodeInvalid,
		errs.WithMessage("unknown instrument"),
		errs.WithRawMessage(symbol),
		errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
}

func (p *Provider) refreshInstruments(ctx context.Context) error {
	instruments, err := p.rest.fetchMarkets(ctx)
	if err != nil {
		return err
	}
	index := make(map[string]schema.Instrument, len(instruments))
	native := make(map[string]string, len(instruments))
	for _, inst := range instruments {
		index[inst.Symbol] = inst
		native[strings.ToUpper(inst.NativeSymbol)] = inst.Symbol
	}
	p.instrumentMu.Lock()
	p.instruments = index
	p.nativeIndex = native
	p.instrumentMu.Unlock()
	return nil
}

func (p *Provider) instrumentRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.instrumentRefreshDuration())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.refreshInstruments(ctx); err != nil {
				p.reportError(fmt.Errorf("instrument refresh: %w", err))
			}
		}
	}
}

// Instruments lists the tradable instruments, sorted by symbol.
func (p *Provider) Instruments() []schema.Instrument {
	p.instrumentMu.RLock()
	out := make([]schema.Instrument, 0, len(p.instruments))
	for _, inst := range p.instruments {
		out = append(out, inst)
	}
	p.instrumentMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Instrument returns the metadata for one canonical symbol.
func (p *Provider) Instrument(symbol string) (schema.Instrument, bool) {
	return p.lookupInstrument(strings.ToUpper(strings.TrimSpace(symbol)))
}

func (p *Provider) lookupInstrument(key string) (schema.Instrument, bool) {
	p.instrumentMu.RLock()
	defer p.instrumentMu.RUnlock()
	inst, ok := p.instruments[key]
	return inst, ok
}

// fetchBaseline retrieves a REST snapshot for the reconciler, under a short
// deadline so a stalled venue cannot pin the pair's resync slot.
func (p *Provider) fetchBaseline(ctx context.Context, symbol string) (schema.BookSnapshotPayload, error) {
	native, err := p.nativeSymbol(ctx, symbol)
	if err != nil {
		return schema.BookSnapshotPayload{}, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, baselineFetchTimeout)
	defer cancel()
	return p.rest.fetchSnapshot(fetchCtx, native)
}

// startUserStream brings up the authenticated connection. The reports and
// balances subscriptions are seeded before start so every reconnect replays
// them after the login handshake.
func (p *Provider) startUserStream() error {
	p.userWSMu.Lock()
	defer p.userWSMu.Unlock()
	if p.userWS != nil {
		return nil
	}
	manager := newWSManager(p.runCtx(), "account", p.opts.websocketURL(), p.handleAccountMessage, p.errors, p.metrics)
	manager.authenticate = p.login
	if err := manager.subscribe([]wsSubscription{
		{Method: methodSubscribeReports},
		{Method: methodSubscribeBalances},
	}); err != nil {
		return err
	}
	if err := manager.start(); err != nil {
		manager.stop()
		return err
	}
	p.userWS = manager
	return nil
}

// login runs the handshake on a freshly dialed connection and records its
// outcome.
func (p *Provider) login(ctx context.Context, conn *websocket.Conn) error {
	started := p.clock()
	err := p.signer.authenticate(ctx, conn)
	elapsed := p.clock().Sub(started)
	switch {
	case err == nil:
		p.metrics.recordAuth(ctx, "ok", elapsed)
	case errs.HasCode(err, errs.CodeAuthRejected):
		p.metrics.recordAuth(ctx, "rejected", elapsed)
	default:
		p.metrics.recordAuth(ctx, "timeout", elapsed)
	}
	return err
}

// PlaceOrder submits an order and returns the venue's acknowledgement as an
// execution report. A client order id is generated when the request carries
// none.
func (p *Provider) PlaceOrder(ctx context.Context, req schema.OrderRequest) (schema.ExecReportPayload, error) {
	if err := req.Validate(); err != nil {
		return schema.ExecReportPayload{}, errs.New(p.name, errs.CodeInvalid,
			errs.WithMessage(err.Error()), errs.WithCause(err))
	}
	native, err := p.nativeSymbol(ctx, req.Symbol)
	if err != nil {
		return schema.ExecReportPayload{}, err
	}
	clientID := strings.TrimSpace(req.ClientOrderID)
	if clientID == "" {
		clientID = newClientOrderID()
	}
	request := createOrderRequest{
		Symbol:         native,
		Side:           strings.ToLower(string(req.Side)),
		Quantity:       req.Quantity,
		Type:           strings.ToLower(string(req.OrderType)),
		UserProvidedID: clientID,
	}
	if req.OrderType == schema.OrderTypeLimit {
		request.Price = req.Price
	}
	record, err := p.rest.createOrder(ctx, request)
	if err != nil {
		return schema.ExecReportPayload{}, err
	}
	if strings.TrimSpace(record.UserProvidedID) == "" {
		record.UserProvidedID = clientID
	}
	if strings.TrimSpace(record.Status) == "" {
		// The create ack can omit status; an accepted order is resting.
		record.Status = "active"
	}
	return mapOrderRecord(record)
}

// newClientOrderID builds a 32 character id from a random UUID, the longest
// form the venue accepts.
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CancelOrder cancels by exchange order id. When the venue no longer knows
// that id and a client id is supplied, the cancel is retried with the client
// id, which the venue accepts in the same field.
func (p *Provider) CancelOrder(ctx context.Context, exchangeID, clientID string) error {
	exchangeID = strings.TrimSpace(exchangeID)
	clientID = strings.TrimSpace(clientID)
	if exchangeID == "" && clientID == "" {
		return errs.New(p.name, errs.CodeInvalid, errs.WithMessage("order id required"))
	}
	if exchangeID == "" {
		return p.rest.cancelOrder(ctx, clientID)
	}
	err := p.rest.cancelOrder(ctx, exchangeID)
	if err == nil || clientID == "" || !errs.HasCode(err, errs.CodeNotFound) {
		return err
	}
	return p.rest.cancelOrder(ctx, clientID)
}

// CancelAllOrders cancels every resting order, optionally scoped to one
// symbol, returning the final state of each cancelled order.
func (p *Provider) CancelAllOrders(ctx context.Context, symbol string) ([]schema.ExecReportPayload, error) {
	native := ""
	if strings.TrimSpace(symbol) != "" {
		resolved, err := p.nativeSymbol(ctx, symbol)
		if err != nil {
			return nil, err
		}
		native = resolved
	}
	records, err := p.rest.cancelAllOrders(ctx, native)
	if err != nil {
		return nil, err
	}
	return p.mapOrderRecords(records), nil
}

// OrderStatus fetches the current state of one order by exchange id.
func (p *Provider) OrderStatus(ctx context.Context, orderID string) (schema.ExecReportPayload, error) {
	record, err := p.rest.orderStatus(ctx, orderID)
	if err != nil {
		return schema.ExecReportPayload{}, err
	}
	return mapOrderRecord(record)
}

// OpenOrders lists the account's resting orders as execution reports.
func (p *Provider) OpenOrders(ctx context.Context) ([]schema.ExecReportPayload, error) {
	records, err := p.rest.openOrders(ctx)
	if err != nil {
		return nil, err
	}
	return p.mapOrderRecords(records), nil
}

func (p *Provider) mapOrderRecords(records []orderRecord) []schema.ExecReportPayload {
	reports := make([]schema.ExecReportPayload, 0, len(records))
	for _, record := range records {
		payload, err := mapOrderRecord(record)
		if err != nil {
			observability.Log().Warn("skipping unmappable order record",
				observability.Field{Key: "provider", Value: p.name},
				observability.Field{Key: "order_id", Value: record.ID.String()},
				observability.Field{Key: "error", Value: err.Error()})
			continue
		}
		reports = append(reports, payload)
	}
	return reports
}

// Balances fetches the account funds over REST and refreshes the tracked
// balance map behind the balance gauges.
func (p *Provider) Balances(ctx context.Context) ([]schema.BalancePayload, error) {
	payloads, err := p.rest.balances(ctx)
	if err != nil {
		return nil, err
	}
	p.balanceMu.Lock()
	for _, payload := range payloads {
		available, _ := decimal.NewFromString(payload.Available)
		held, _ := decimal.NewFromString(payload.Held)
		p.balances[payload.Currency] = fundsState{available: available, held: held}
	}
	p.balanceMu.Unlock()
	return payloads, nil
}

// Fill is one trade from the account history.
type Fill struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Side      schema.TradeSide
	Maker     bool
	Price     string
	Quantity  string
	FeeAsset  string
	FeeAmount string
	Timestamp time.Time
}

// AccountTrades returns the account's fills for a symbol since the given
// time.
func (p *Provider) AccountTrades(ctx context.Context, symbol string, since time.Time) ([]Fill, error) {
	native, err := p.nativeSymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	trades, err := p.rest.accountTrades(ctx, native, since)
	if err != nil {
		return nil, err
	}
	fills := make([]Fill, 0, len(trades))
	for _, trade := range trades {
		fills = append(fills, mapAccountTrade(p.canonicalSymbol(trade.Symbol), trade))
	}
	return fills, nil
}

func mapAccountTrade(symbol string, trade accountTrade) Fill {
	fill := Fill{
		TradeID:   trade.ID.String(),
		OrderID:   trade.OrderID.String(),
		Symbol:    symbol,
		Side:      orderSide(trade.Side),
		Maker:     trade.maker(),
		Price:     trade.Price.String(),
		Quantity:  trade.Quantity.String(),
		Timestamp: parseMilliTimestamp(trade.Timestamp.String()),
	}
	if alt := strings.TrimSpace(trade.AlternateFeeAsset); alt != "" {
		fill.FeeAsset = alt
		fill.FeeAmount = trade.AlternateFee.String()
	} else if !trade.Fee.empty() {
		fill.FeeAsset = quoteCurrency(trade.Symbol)
		fill.FeeAmount = trade.Fee.String()
	}
	return fill
}

// TradingFees reports the fee schedule estimated from recent fills.
func (p *Provider) TradingFees(ctx context.Context) (FeeSchedule, error) {
	return p.rest.tradingFees(ctx)
}

// LastPrice returns the venue's last traded price for a symbol.
func (p *Provider) LastPrice(ctx context.Context, symbol string) (string, error) {
	native, err := p.nativeSymbol(ctx, symbol)
	if err != nil {
		return "", err
	}
	return p.rest.lastPrice(ctx, native)
}

// ServerTime returns the venue clock reading.
func (p *Provider) ServerTime(ctx context.Context) (time.Time, error) {
	return p.rest.serverTime(ctx)
}

// Ping checks REST reachability.
func (p *Provider) Ping(ctx context.Context) error {
	return p.rest.ping(ctx)
}

func (p *Provider) ensureRunning() error {
	if !p.started.Load() || p.ctx == nil {
		return errs.New(p.name, errs.CodeInvalid,
			errs.WithMessage("provider not started"),
			errs.WithRemediation("call Start before subscribing"))
	}
	select {
	case <-p.ctx.Done():
		return errs.New(p.name, errs.CodeInvalid, errs.WithMessage("provider stopped"))
	default:
		return nil
	}
}

func (p *Provider) runCtx() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// reportError forwards an asynchronous failure without blocking the caller.
func (p *Provider) reportError(err error) {
	if err == nil {
		return
	}
	select {
	case p.errors <- err:
	default:
		observability.Log().Warn("error channel full, dropping",
			observability.Field{Key: "provider", Value: p.name},
			observability.Field{Key: "error", Value: err.Error()})
	}
}

// marketChannels adapts the provider to the subscription manager, keeping
// the venue calls for one symbol in a single place.
type marketChannels struct{ p *Provider }

func (m marketChannels) SubscribeSymbol(ctx context.Context, symbol string) error {
	return m.p.subscribeSymbol(ctx, symbol)
}

func (m marketChannels) UnsubscribeSymbol(ctx context.Context, symbol string) error {
	return m.p.unsubscribeSymbol(ctx, symbol)
}
