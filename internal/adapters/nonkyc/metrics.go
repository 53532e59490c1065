package nonkyc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/bookwire/internal/telemetry"
)

// providerMetrics instruments the NonKYC provider. Instrument creation
// failures leave individual instruments nil, and every record method
// tolerates a nil receiver and nil instruments, so telemetry can never take
// down the data path.
type providerMetrics struct {
	environment string

	eventsEmitted  metric.Int64Counter
	sequenceGaps   metric.Int64Counter
	resyncs        metric.Int64Counter
	wsMessages     metric.Int64Counter
	wsReconnects   metric.Int64Counter
	authAttempts   metric.Int64Counter
	restRequests   metric.Int64Counter
	balanceUpdates metric.Int64Counter

	coldstartDuration metric.Float64Histogram
	resyncDuration    metric.Float64Histogram
	authDuration      metric.Float64Histogram

	balanceTotal     metric.Float64ObservableGauge
	balanceAvailable metric.Float64ObservableGauge
}

func newProviderMetrics(p *Provider) *providerMetrics {
	meter := otel.Meter("adapter.nonkyc")
	m := &providerMetrics{environment: telemetry.Environment()}

	m.eventsEmitted, _ = meter.Int64Counter("bookwire_provider_nonkyc_events_emitted",
		metric.WithDescription("Canonical events published to the output queues"))
	m.sequenceGaps, _ = meter.Int64Counter("bookwire_provider_nonkyc_sequence_gaps",
		metric.WithDescription("Order book diffs arriving beyond the expected sequence"))
	m.resyncs, _ = meter.Int64Counter("bookwire_provider_nonkyc_resyncs",
		metric.WithDescription("REST snapshot resyncs grouped by outcome"))
	m.wsMessages, _ = meter.Int64Counter("bookwire_provider_nonkyc_ws_messages",
		metric.WithDescription("Websocket frames received grouped by message type"))
	m.wsReconnects, _ = meter.Int64Counter("bookwire_provider_nonkyc_ws_reconnects",
		metric.WithDescription("Websocket connection transitions grouped by state"))
	m.authAttempts, _ = meter.Int64Counter("bookwire_provider_nonkyc_auth_attempts",
		metric.WithDescription("Login handshake attempts grouped by result"))
	m.restRequests, _ = meter.Int64Counter("bookwire_provider_nonkyc_rest_requests",
		metric.WithDescription("REST calls grouped by operation and result"))
	m.balanceUpdates, _ = meter.Int64Counter("bookwire_provider_nonkyc_balance_updates",
		metric.WithDescription("Balance events received on the authenticated stream"))

	m.coldstartDuration, _ = meter.Float64Histogram("orderbook.coldstart.duration",
		metric.WithDescription("Time from subscribe to first order book baseline"),
		metric.WithUnit("ms"))
	m.resyncDuration, _ = meter.Float64Histogram("orderbook.resync.duration",
		metric.WithDescription("Duration of REST snapshot resync fetches"),
		metric.WithUnit("ms"))
	m.authDuration, _ = meter.Float64Histogram("auth.handshake.duration",
		metric.WithDescription("Duration of websocket login handshakes"),
		metric.WithUnit("ms"))

	m.balanceTotal, _ = meter.Float64ObservableGauge("bookwire_provider_nonkyc_balance_total",
		metric.WithDescription("Total balance per currency"),
		metric.WithFloat64Callback(func(_ context.Context, observer metric.Float64Observer) error {
			p.balanceMu.Lock()
			defer p.balanceMu.Unlock()
			for currency, funds := range p.balances {
				value, _ := funds.total().Float64()
				observer.Observe(value, metric.WithAttributes(
					telemetry.BalanceAttributes(m.environment, telemetry.ProviderNonkyc, currency)...))
			}
			return nil
		}))
	m.balanceAvailable, _ = meter.Float64ObservableGauge("bookwire_provider_nonkyc_balance_available",
		metric.WithDescription("Available balance per currency"),
		metric.WithFloat64Callback(func(_ context.Context, observer metric.Float64Observer) error {
			p.balanceMu.Lock()
			defer p.balanceMu.Unlock()
			for currency, funds := range p.balances {
				value, _ := funds.available.Float64()
				observer.Observe(value, metric.WithAttributes(
					telemetry.BalanceAttributes(m.environment, telemetry.ProviderNonkyc, currency)...))
			}
			return nil
		}))

	return m
}

func (m *providerMetrics) recordEvent(ctx context.Context, eventType, symbol string) {
	if m == nil || m.eventsEmitted == nil {
		return
	}
	m.eventsEmitted.Add(ensureContext(ctx), 1, metric.WithAttributes(
		telemetry.EventAttributes(m.environment, eventType, telemetry.ProviderNonkyc, symbol)...))
}

func (m *providerMetrics) recordSequenceGap(ctx context.Context, symbol string) {
	if m == nil || m.sequenceGaps == nil {
		return
	}
	m.sequenceGaps.Add(ensureContext(ctx), 1, metric.WithAttributes(
		telemetry.EventAttributes(m.environment, telemetry.EventTypeBookDiff, telemetry.ProviderNonkyc, symbol)...))
}

func (m *providerMetrics) recordResync(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := metric.WithAttributes(
		telemetry.OperationResultAttributes(m.environment, telemetry.ProviderNonkyc, "resync", result)...)
	if m.resyncs != nil {
		m.resyncs.Add(ctx, 1, attrs)
	}
	if m.resyncDuration != nil && elapsed > 0 {
		m.resyncDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

func (m *providerMetrics) recordColdStart(ctx context.Context, symbol string, elapsed time.Duration) {
	if m == nil || m.coldstartDuration == nil || elapsed <= 0 {
		return
	}
	m.coldstartDuration.Record(ensureContext(ctx), float64(elapsed.Milliseconds()), metric.WithAttributes(
		telemetry.EventAttributes(m.environment, telemetry.EventTypeBookSnapshot, telemetry.ProviderNonkyc, symbol)...))
}

func (m *providerMetrics) recordWSMessage(ctx context.Context, messageType string) {
	if m == nil || m.wsMessages == nil {
		return
	}
	m.wsMessages.Add(ensureContext(ctx), 1, metric.WithAttributes(
		telemetry.MessageAttributes(m.environment, telemetry.ProviderNonkyc, messageType)...))
}

func (m *providerMetrics) recordWSState(ctx context.Context, state string) {
	if m == nil || m.wsReconnects == nil {
		return
	}
	m.wsReconnects.Add(ensureContext(ctx), 1, metric.WithAttributes(
		telemetry.ConnectionAttributes(m.environment, telemetry.ProviderNonkyc, state)...))
}

func (m *providerMetrics) recordAuth(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	ctx = ensureContext(ctx)
	attrs := metric.WithAttributes(
		telemetry.OperationResultAttributes(m.environment, telemetry.ProviderNonkyc, "login", result)...)
	if m.authAttempts != nil {
		m.authAttempts.Add(ctx, 1, attrs)
	}
	if m.authDuration != nil && elapsed > 0 {
		m.authDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

func (m *providerMetrics) recordRESTRequest(ctx context.Context, operation, result string) {
	if m == nil || m.restRequests == nil {
		return
	}
	m.restRequests.Add(ensureContext(ctx), 1, metric.WithAttributes(
		telemetry.OperationResultAttributes(m.environment, telemetry.ProviderNonkyc, operation, result)...))
}

func (m *providerMetrics) recordBalanceUpdate(ctx context.Context, currency string) {
	if m == nil || m.balanceUpdates == nil {
		return
	}
	m.balanceUpdates.Add(ensureContext(ctx), 1, metric.WithAttributes(
		telemetry.BalanceAttributes(m.environment, telemetry.ProviderNonkyc, currency)...))
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
