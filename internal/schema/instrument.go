package schema

import (
	"strings"

	"github.com/coachpo/bookwire/errs"
)

// Instrument describes a tradable spot market on the venue.
type Instrument struct {
	Symbol            string `json:"symbol"`
	NativeSymbol      string `json:"native_symbol"`
	BaseCurrency      string `json:"base_currency"`
	QuoteCurrency     string `json:"quote_currency"`
	PriceIncrement    string `json:"price_increment,omitempty"`
	QuantityIncrement string `json:"quantity_increment,omitempty"`
	MinQuantity       string `json:"min_quantity,omitempty"`
	MaxQuantity       string `json:"max_quantity,omitempty"`
	MinNotional       string `json:"min_notional,omitempty"`
	AllowMarketOrders bool   `json:"allow_market_orders"`
}

// ValidateInstrument verifies the canonical instrument representation (BASE-QUOTE).
func ValidateInstrument(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return instrumentError("instrument required")
	}
	if !strings.Contains(symbol, "-") {
		return instrumentError("instrument must contain '-'")
	}
	parts := strings.Split(symbol, "-")
	if len(parts) != 2 {
		return instrumentError("instrument requires base-quote")
	}
	for _, part := range parts {
		if !isCurrencyCode(part) {
			return instrumentError("instrument legs must be 2-10 uppercase alphanumeric characters")
		}
	}
	return nil
}

// InstrumentCurrencies extracts the base and quote currency codes from a canonical symbol.
func InstrumentCurrencies(symbol string) (string, string, error) {
	if err := ValidateInstrument(symbol); err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.TrimSpace(symbol), "-")
	return parts[0], parts[1], nil
}

// NormalizeCurrencyCode normalizes a currency identifier to uppercase and validates its format.
func NormalizeCurrencyCode(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return ""
	}
	if !isCurrencyCode(trimmed) {
		return ""
	}
	return trimmed
}

func isCurrencyCode(segment string) bool {
	if len(segment) < 2 || len(segment) > 10 {
		return false
	}
	for _, r := range segment {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func instrumentError(msg string) error {
	return errs.New("schema/instrument", errs.CodeInvalid, errs.WithMessage(msg), errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
}
