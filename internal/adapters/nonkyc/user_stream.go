package nonkyc

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/bookwire/internal/schema"
	"github.com/coachpo/bookwire/internal/telemetry"
)

// fundsState is the tracked balance for one currency, in venue terms:
// available for new orders plus held in open orders. Venue side pending
// amounts are excluded from both.
type fundsState struct {
	available decimal.Decimal
	held      decimal.Decimal
}

func (f fundsState) total() decimal.Decimal {
	return f.available.Add(f.held)
}

// handleAccountMessage routes one frame from the authenticated stream. The
// venue multiplexes order reports, balance events and the open-order
// inventory over the same connection.
func (p *Provider) handleAccountMessage(data []byte) error {
	msg := classifyFrame(data)
	switch msg.Kind {
	case kindReport:
		p.applyReport(msg.Report)
	case kindBalanceSnapshot, kindBalanceDelta:
		p.applyBalances(msg.Balances)
	case kindActiveOrders:
		p.applyActiveOrders(msg.Orders)
	}
	return nil
}

// applyReport publishes one order report as an execution report on the
// account queue.
func (p *Provider) applyReport(report *reportParams) {
	if report == nil {
		return
	}
	payload, ok := mapReport(report, p.clock)
	if !ok {
		return
	}
	ctx := p.runCtx()
	symbol := p.canonicalSymbol(report.Symbol)
	p.router.PublishExecReport(ctx, symbol, payload)
	p.metrics.recordEvent(ctx, telemetry.EventTypeExecReport, symbol)
}

// applyBalances folds balance entries into the tracked funds map and emits
// one balance event per currency. Snapshot and incremental events share the
// same shape, so both land here; entries for currencies the account no
// longer holds arrive with zero amounts rather than disappearing.
func (p *Provider) applyBalances(entries []balanceEntry) {
	ctx := p.runCtx()
	now := p.clock().UTC()
	for _, entry := range entries {
		currency := schema.NormalizeCurrencyCode(entry.currency())
		if currency == "" {
			continue
		}
		available, _ := entry.Available.decimalValue()
		held, _ := entry.Held.decimalValue()

		p.balanceMu.Lock()
		p.balances[currency] = fundsState{available: available, held: held}
		p.balanceMu.Unlock()

		p.router.PublishBalance(ctx, currency, balancePayload(currency, entry, now))
		p.metrics.recordBalanceUpdate(ctx, currency)
		p.metrics.recordEvent(ctx, telemetry.EventTypeBalance, currency)
	}
}

// applyActiveOrders emits the venue's open-order inventory as execution
// reports, letting consumers rebuild order state after a reconnect.
func (p *Provider) applyActiveOrders(orders []orderRecord) {
	ctx := p.runCtx()
	for _, record := range orders {
		payload, err := mapOrderRecord(record)
		if err != nil {
			continue
		}
		symbol := p.canonicalSymbol(record.Symbol)
		p.router.PublishExecReport(ctx, symbol, payload)
		p.metrics.recordEvent(ctx, telemetry.EventTypeExecReport, symbol)
	}
}

// mapReport converts a streamed order report into an execution report.
// Trade reports additionally carry the fill fields.
func mapReport(report *reportParams, clock func() time.Time) (schema.ExecReportPayload, bool) {
	state, ok := mapOrderState(report.Status)
	if !ok {
		return schema.ExecReportPayload{}, false
	}
	payload := schema.ExecReportPayload{
		ClientOrderID:   strings.TrimSpace(report.UserProvidedID),
		ExchangeOrderID: report.ID.String(),
		State:           state,
		Side:            orderSide(report.Side),
		Price:           report.Price.String(),
		Quantity:        report.Quantity.String(),
		Timestamp:       parseMilliTimestamp(report.UpdatedAt.String()),
	}
	if orderType, ok := mapOrderType(report.Type); ok {
		payload.OrderType = orderType
	}
	if filled, remaining, ok := fillProgress(report.Quantity, report.ExecutedQuantity); ok {
		payload.FilledQuantity = filled
		payload.RemainingQty = remaining
	}
	if strings.EqualFold(strings.TrimSpace(report.ReportType), "trade") {
		payload.TradeID = report.TradeID.String()
		payload.LastFillPrice = report.TradePrice.String()
		payload.LastFillQty = report.TradeQuantity.String()
		payload.FeeAsset, payload.FeeAmount = reportFee(report)
	}
	if payload.Timestamp.IsZero() && clock != nil {
		payload.Timestamp = clock().UTC()
	}
	return payload, true
}

// reportFee resolves the charged fee for a trade report. The venue bills an
// alternate asset when a fee discount program applies; otherwise the fee is
// denominated in the quote leg of the traded pair.
func reportFee(report *reportParams) (asset, amount string) {
	if alt := strings.TrimSpace(report.AlternateFeeAsset); alt != "" {
		return alt, report.AlternateFee.String()
	}
	if report.TradeFee.empty() {
		return "", ""
	}
	return quoteCurrency(report.Symbol), report.TradeFee.String()
}

// quoteCurrency extracts the quote leg from a venue symbol like BTC/USDT.
func quoteCurrency(symbol string) string {
	if idx := strings.LastIndex(symbol, "/"); idx >= 0 && idx+1 < len(symbol) {
		return schema.NormalizeCurrencyCode(symbol[idx+1:])
	}
	return ""
}
