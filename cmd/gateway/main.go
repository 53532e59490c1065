// Command gateway launches the bookwire market data gateway: it starts the
// NonKYC provider, subscribes the configured pairs, and drains the canonical
// event queues into materialized order books and operational logs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/bookwire/config"
	"github.com/coachpo/bookwire/internal/adapters"
	"github.com/coachpo/bookwire/internal/adapters/shared"
	"github.com/coachpo/bookwire/internal/observability"
	"github.com/coachpo/bookwire/internal/provider"
	"github.com/coachpo/bookwire/internal/schema"
	"github.com/coachpo/bookwire/internal/telemetry"
)

const (
	defaultConfigPath        = "config/gateway.yaml"
	gatewayLoggerPrefix      = "gateway "
	providerIdentifier       = "nonkyc"
	diffLogSampleEvery       = 500
	tradeLogSampleEvery      = 200
	shutdownTimeout          = 30 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newGatewayLogger()
	observability.SetLogger(stdLogger{base: logger})

	cfg, err := config.LoadOrDefault(ctx, resolveConfigPath(cfgPathFlag))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration initialised: env=%s, symbols=%s",
		cfg.Environment, strings.Join(cfg.Gateway.Symbols, ","))

	telemetryProvider, err := initTelemetry(ctx, logger, cfg)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	registry := provider.NewRegistry()
	adapters.RegisterAll(registry)

	instance, err := registry.Create(ctx, providerIdentifier, cfg)
	if err != nil {
		logger.Fatalf("start provider: %v", err)
	}
	logger.Printf("provider started: %s, instruments=%d", instance.Name(), len(instance.Instruments()))

	if err := instance.Subscribe(ctx, cfg.Gateway.Symbols); err != nil {
		logger.Fatalf("subscribe %s: %v", strings.Join(cfg.Gateway.Symbols, ","), err)
	}
	logger.Printf("subscriptions active: %s", strings.Join(cfg.Gateway.Symbols, ","))

	var lifecycle conc.WaitGroup
	books := newBookTracker(cfg.Venue.BookDepth)
	startConsumers(&lifecycle, logger, instance, books)

	logger.Print("gateway started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		telemetry:  telemetryProvider,
	})
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to gateway configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newGatewayLogger() *log.Logger {
	return log.New(os.Stdout, gatewayLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func initTelemetry(ctx context.Context, logger *log.Logger, cfg config.Config) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	telemetryCfg.Environment = string(cfg.Environment)
	telemetryCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.Telemetry.EnableMetrics

	tp, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}

	if telemetryCfg.Enabled {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return tp, nil
}

// bookTracker materializes depth limited books from the snapshot and diff
// queues, one assembler per symbol.
type bookTracker struct {
	mu    sync.Mutex
	depth int
	books map[string]*shared.OrderBookAssembler
}

func newBookTracker(depth int) *bookTracker {
	return &bookTracker{depth: depth, books: make(map[string]*shared.OrderBookAssembler)}
}

func (t *bookTracker) assembler(symbol string) *shared.OrderBookAssembler {
	t.mu.Lock()
	defer t.mu.Unlock()
	book, ok := t.books[symbol]
	if !ok {
		book = shared.NewOrderBookAssembler(t.depth)
		t.books[symbol] = book
	}
	return book
}

func (t *bookTracker) applySnapshot(symbol string, payload schema.BookSnapshotPayload) (schema.BookSnapshotPayload, error) {
	return t.assembler(symbol).ApplySnapshot(payload)
}

func (t *bookTracker) applyDiff(symbol string, payload schema.BookDiffPayload) (schema.BookSnapshotPayload, bool, error) {
	return t.assembler(symbol).ApplyDiff(payload)
}

func startConsumers(lifecycle *conc.WaitGroup, logger *log.Logger, instance provider.Instance, books *bookTracker) {
	lifecycle.Go(func() { consumeSnapshots(logger, instance, books) })
	lifecycle.Go(func() { consumeDiffs(logger, instance, books) })
	lifecycle.Go(func() { consumeTrades(logger, instance) })
	lifecycle.Go(func() { consumeAccount(logger, instance) })
	lifecycle.Go(func() { consumeErrors(logger, instance) })
}

func consumeSnapshots(logger *log.Logger, instance provider.Instance, books *bookTracker) {
	var count uint64
	for evt := range instance.Snapshots() {
		count++
		if payload, ok := evt.Payload.(schema.BookSnapshotPayload); ok {
			view, err := books.applySnapshot(evt.Symbol, payload)
			if err != nil {
				logger.Printf("snapshot %s seq=%d rejected: %v", evt.Symbol, evt.SeqProvider, err)
			} else {
				logger.Printf("book %s rebuilt: seq=%d %s", evt.Symbol, evt.SeqProvider, topOfBook(view))
			}
		}
		instance.Release(evt)
	}
	logger.Printf("snapshot queue closed after %d events", count)
}

func consumeDiffs(logger *log.Logger, instance provider.Instance, books *bookTracker) {
	var count uint64
	for evt := range instance.Diffs() {
		count++
		if payload, ok := evt.Payload.(schema.BookDiffPayload); ok {
			view, applied, err := books.applyDiff(evt.Symbol, payload)
			switch {
			case err != nil:
				logger.Printf("diff %s seq=%d rejected: %v", evt.Symbol, evt.SeqProvider, err)
			case applied && count%diffLogSampleEvery == 0:
				logger.Printf("book %s: seq=%d %s", evt.Symbol, evt.SeqProvider, topOfBook(view))
			}
		}
		instance.Release(evt)
	}
	logger.Printf("diff queue closed after %d events", count)
}

func consumeTrades(logger *log.Logger, instance provider.Instance) {
	var count uint64
	for evt := range instance.Trades() {
		count++
		if payload, ok := evt.Payload.(schema.TradePayload); ok && count%tradeLogSampleEvery == 1 {
			logger.Printf("trade %s: %s %s@%s", evt.Symbol, payload.Side, payload.Quantity, payload.Price)
		}
		instance.Release(evt)
	}
	logger.Printf("trade queue closed after %d events", count)
}

func consumeAccount(logger *log.Logger, instance provider.Instance) {
	var count uint64
	for evt := range instance.Account() {
		count++
		switch payload := evt.Payload.(type) {
		case schema.ExecReportPayload:
			logger.Printf("order %s: %s state=%s filled=%s", evt.Symbol, payload.ExchangeOrderID, payload.State, payload.FilledQuantity)
		case schema.BalancePayload:
			logger.Printf("balance %s: available=%s held=%s", payload.Currency, payload.Available, payload.Held)
		}
		instance.Release(evt)
	}
	logger.Printf("account queue closed after %d events", count)
}

func consumeErrors(logger *log.Logger, instance provider.Instance) {
	for err := range instance.Errors() {
		logger.Printf("provider error: %v", err)
	}
}

func topOfBook(view schema.BookSnapshotPayload) string {
	bid, ask := "-", "-"
	if len(view.Bids) > 0 {
		bid = view.Bids[0].Quantity + "@" + view.Bids[0].Price
	}
	if len(view.Asks) > 0 {
		ask = view.Asks[0].Quantity + "@" + view.Asks[0].Price
	}
	return fmt.Sprintf("bid=%s ask=%s depth=%d/%d", bid, ask, len(view.Bids), len(view.Asks))
}

type gracefulShutdownConfig struct {
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	telemetry  *telemetry.Provider
}

// performGracefulShutdown cancels the provider context, which closes the
// event queues, then waits for the queue consumers before flushing
// telemetry.
func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for queue consumers", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for consumers: %w", stepCtx.Err())
			}
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}

// stdLogger adapts the process logger to the observability interface used
// inside the adapter packages.
type stdLogger struct {
	base *log.Logger
}

func (l stdLogger) Debug(msg string, fields ...observability.Field) { l.print("DEBUG", msg, fields) }
func (l stdLogger) Info(msg string, fields ...observability.Field)  { l.print("INFO", msg, fields) }
func (l stdLogger) Warn(msg string, fields ...observability.Field)  { l.print("WARN", msg, fields) }
func (l stdLogger) Error(msg string, fields ...observability.Field) { l.print("ERROR", msg, fields) }

func (l stdLogger) print(level, msg string, fields []observability.Field) {
	if len(fields) == 0 {
		l.base.Printf("%s %s", level, msg)
		return
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", field.Key, field.Value))
	}
	l.base.Printf("%s %s %s", level, msg, strings.Join(parts, " "))
}
