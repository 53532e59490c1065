package schema

import (
	"fmt"
	"strings"
	"time"
)

// OrderRequest describes an order submission bound for a venue.
type OrderRequest struct {
	ClientOrderID string    `json:"client_order_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Side          TradeSide `json:"side"`
	OrderType     OrderType `json:"order_type"`
	Price         string    `json:"price,omitempty"`
	Quantity      string    `json:"quantity"`
}

// Validate checks the request for fields every venue requires. Limit orders
// must carry a price; market orders must not.
func (o OrderRequest) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("order request: symbol required")
	}
	if o.Side != TradeSideBuy && o.Side != TradeSideSell {
		return fmt.Errorf("order request: invalid side %q", o.Side)
	}
	if strings.TrimSpace(o.Quantity) == "" {
		return fmt.Errorf("order request: quantity required")
	}
	switch o.OrderType {
	case OrderTypeLimit:
		if strings.TrimSpace(o.Price) == "" {
			return fmt.Errorf("order request: limit order requires a price")
		}
	case OrderTypeMarket:
	default:
		return fmt.Errorf("order request: invalid order type %q", o.OrderType)
	}
	return nil
}

// OrderAck is the venue's acknowledgement of an accepted order.
type OrderAck struct {
	ClientOrderID   string    `json:"client_order_id"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	CreatedAt       time.Time `json:"created_at"`
}
