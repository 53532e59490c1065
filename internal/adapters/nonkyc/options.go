package nonkyc

import (
	"strings"
	"time"

	"github.com/coachpo/bookwire/internal/provider"
)

type publicMetadata struct {
	identifier  string
	displayName string
	venue       string
	description string
}

type privateMetadata struct {
	apiBaseURL          string
	wsURL               string
	orderbookPath       string
	marketsPath         string
	tickerPath          string
	tickersPath         string
	timePath            string
	infoPath            string
	balancesPath        string
	accountTradesPath   string
	accountOrdersPath   string
	createOrderPath     string
	cancelOrderPath     string
	cancelAllOrdersPath string
	orderInfoPath       string
}

var nonkycPublicMetadata = publicMetadata{
	identifier:  "nonkyc",
	displayName: "NonKYC Spot",
	venue:       "NonKYC",
	description: "NonKYC spot market data and trading adapter",
}

var nonkycPrivateMetadata = privateMetadata{
	apiBaseURL:          "https://api.nonkyc.io/api/v2",
	wsURL:               "wss://api.nonkyc.io",
	orderbookPath:       "/market/orderbook",
	marketsPath:         "/market/getlist",
	tickerPath:          "/ticker",
	tickersPath:         "/tickers",
	timePath:            "/time",
	infoPath:            "/info",
	balancesPath:        "/balances",
	accountTradesPath:   "/account/trades",
	accountOrdersPath:   "/account/orders",
	createOrderPath:     "/createorder",
	cancelOrderPath:     "/cancelorder",
	cancelAllOrdersPath: "/cancelallorders",
	orderInfoPath:       "/getorder",
}

var nonkycAdapterMetadata = provider.AdapterMetadata{
	Identifier:  nonkycPublicMetadata.identifier,
	DisplayName: nonkycPublicMetadata.displayName,
	Venue:       nonkycPublicMetadata.venue,
	Description: nonkycPublicMetadata.description,
	Capabilities: []string{
		"market-data",
		"trading",
		"user-stream",
	},
	SettingsSchema: []provider.AdapterSetting{
		{Name: "api_key", Type: "string", Description: "API key for authenticated REST and user data streams", Default: "", Required: false},
		{Name: "api_secret", Type: "string", Description: "API secret for signing REST requests", Default: "", Required: false},
		{Name: "snapshot_limit", Type: "int", Description: "Depth requested for REST order book snapshots", Default: defaultSnapshotLimit, Required: false},
		{Name: "book_depth", Type: "int", Description: "Depth requested on websocket order book subscriptions", Default: defaultBookDepth, Required: false},
		{Name: "http_timeout", Type: "duration", Description: "HTTP client timeout for REST requests", Default: defaultHTTPTimeout.String(), Required: false},
		{Name: "instrument_refresh_interval", Type: "duration", Description: "Interval between instrument metadata refreshes", Default: defaultInstrumentRefresh.String(), Required: false},
		{Name: "user_stream", Type: "bool", Description: "Run the authenticated account stream when credentials are present", Default: false, Required: false},
	},
}

const (
	defaultSnapshotLimit     = 1000
	defaultBookDepth         = 100
	defaultQueueBuffer       = 2048
	defaultHTTPTimeout       = 10 * time.Second
	defaultInstrumentRefresh = 15 * time.Minute
)

// Config captures user-overridable NonKYC settings.
type Config struct {
	Name              string
	APIKey            string
	APISecret         string
	SnapshotLimit     int
	BookDepth         int
	QueueBuffer       int
	HTTPTimeout       time.Duration
	HandshakeTimeout  time.Duration
	InstrumentRefresh time.Duration
	UserStream        bool
}

// Options configure the NonKYC adapter.
type Options struct {
	Config Config

	publicMeta  publicMetadata
	privateMeta privateMetadata
}

func withDefaults(in Options) Options {
	if in.publicMeta.identifier == "" {
		in.publicMeta = nonkycPublicMetadata
	}
	if in.privateMeta.orderbookPath == "" {
		// Endpoint overrides may land before the metadata is seeded; keep them.
		restURL, wsURL := in.privateMeta.apiBaseURL, in.privateMeta.wsURL
		in.privateMeta = nonkycPrivateMetadata
		in.applyEndpoints(restURL, wsURL)
	}
	if strings.TrimSpace(in.Config.Name) == "" {
		in.Config.Name = in.publicMeta.identifier
	}
	if in.Config.SnapshotLimit <= 0 {
		in.Config.SnapshotLimit = defaultSnapshotLimit
	}
	if in.Config.BookDepth <= 0 {
		in.Config.BookDepth = defaultBookDepth
	}
	if in.Config.QueueBuffer <= 0 {
		in.Config.QueueBuffer = defaultQueueBuffer
	}
	if in.Config.HTTPTimeout <= 0 {
		in.Config.HTTPTimeout = defaultHTTPTimeout
	}
	if in.Config.InstrumentRefresh <= 0 {
		in.Config.InstrumentRefresh = defaultInstrumentRefresh
	}
	return in
}

// applyEndpoints overrides the production endpoints, for configs pointing at
// a mirror or a test server.
func (o *Options) applyEndpoints(restURL, wsURL string) {
	if trimmed := strings.TrimSpace(restURL); trimmed != "" {
		o.privateMeta.apiBaseURL = trimmed
	}
	if trimmed := strings.TrimSpace(wsURL); trimmed != "" {
		o.privateMeta.wsURL = trimmed
	}
}

func (o Options) hasCredentials() bool {
	return strings.TrimSpace(o.Config.APIKey) != "" && strings.TrimSpace(o.Config.APISecret) != ""
}

func (o Options) restEndpoint(path string) string {
	base := strings.TrimSuffix(strings.TrimSpace(o.privateMeta.apiBaseURL), "/")
	if base == "" {
		return ""
	}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return base
	}
	if strings.HasPrefix(trimmed, "/") {
		return base + trimmed
	}
	return base + "/" + trimmed
}

func (o Options) orderbookEndpoint() string {
	return o.restEndpoint(o.privateMeta.orderbookPath)
}

func (o Options) marketsEndpoint() string {
	return o.restEndpoint(o.privateMeta.marketsPath)
}

// tickerEndpoint embeds the venue symbol in the path, slash and all, matching
// the venue's routing.
func (o Options) tickerEndpoint(symbol string) string {
	return o.restEndpoint(o.privateMeta.tickerPath) + "/" + strings.TrimSpace(symbol)
}

func (o Options) tickersEndpoint() string {
	return o.restEndpoint(o.privateMeta.tickersPath)
}

func (o Options) timeEndpoint() string {
	return o.restEndpoint(o.privateMeta.timePath)
}

func (o Options) infoEndpoint() string {
	return o.restEndpoint(o.privateMeta.infoPath)
}

func (o Options) balancesEndpoint() string {
	return o.restEndpoint(o.privateMeta.balancesPath)
}

func (o Options) accountTradesEndpoint() string {
	return o.restEndpoint(o.privateMeta.accountTradesPath)
}

func (o Options) accountOrdersEndpoint() string {
	return o.restEndpoint(o.privateMeta.accountOrdersPath)
}

func (o Options) createOrderEndpoint() string {
	return o.restEndpoint(o.privateMeta.createOrderPath)
}

func (o Options) cancelOrderEndpoint() string {
	return o.restEndpoint(o.privateMeta.cancelOrderPath)
}

func (o Options) cancelAllOrdersEndpoint() string {
	return o.restEndpoint(o.privateMeta.cancelAllOrdersPath)
}

func (o Options) orderInfoEndpoint(orderID string) string {
	return o.restEndpoint(o.privateMeta.orderInfoPath) + "/" + strings.TrimSpace(orderID)
}

func (o Options) websocketURL() string {
	return strings.TrimSpace(o.privateMeta.wsURL)
}

func (o Options) httpTimeoutDuration() time.Duration {
	return o.Config.HTTPTimeout
}

func (o Options) instrumentRefreshDuration() time.Duration {
	return o.Config.InstrumentRefresh
}
