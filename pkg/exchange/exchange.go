// File: pkg/exchange/exchange.go
package exchange

import (
	"context"
	"time"

	"ratchet/utilities"
)

// Exchange defines the interface for interacting with a spot cryptocurrency exchange.
type Exchange interface {
	// GetHistoricalCandles retrieves up to limit OHLCV bars for a symbol and
	// interval, ordered oldest first.
	GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]utilities.OHLCVBar, error)

	// GetCurrentPrice retrieves the latest traded price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// GetFreeBalance retrieves the free (available) balance of a single asset.
	GetFreeBalance(ctx context.Context, asset string) (float64, error)

	// GetSymbolRules retrieves the trading filters for a symbol. Implementations
	// may cache the result for several minutes.
	GetSymbolRules(ctx context.Context, symbol string) (SymbolRules, error)

	// SubmitOrder submits a market order. Exactly one of quantity or
	// quoteQuantity must be positive; quoteQuantity sizes the order in the
	// quote currency.
	SubmitOrder(ctx context.Context, symbol, side string, quantity, quoteQuantity float64, clientOrderID string) (Fill, error)

	// SubscribeCandles starts a kline stream for the symbol and interval,
	// invoking onBar for every update. The returned stop function tears the
	// subscription down; it is safe to call more than once.
	SubscribeCandles(ctx context.Context, symbol, interval string, onBar func(bar utilities.OHLCVBar, closed bool)) (stop func(), err error)

	// SubscribeAccountUpdates starts a user-data stream, invoking onUpdate for
	// every balance or order update event.
	SubscribeAccountUpdates(ctx context.Context, onUpdate func(AccountUpdate)) (stop func(), err error)
}

// Order sides and statuses as reported on the wire.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// SymbolRules carries the exchange's order filters for one trading pair.
type SymbolRules struct {
	Symbol      string  `json:"symbol"`
	BaseAsset   string  `json:"base_asset"`
	QuoteAsset  string  `json:"quote_asset"`
	StepSize    float64 `json:"step_size"`
	MinQty      float64 `json:"min_qty"`
	MaxQty      float64 `json:"max_qty"`
	MinNotional float64 `json:"min_notional"`
}

// Fill is the result of an executed market order.
type Fill struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	ExecutedQty   float64   `json:"executed_qty"`
	AvgPrice      float64   `json:"avg_price"`
	QuoteQty      float64   `json:"quote_qty"`
	Commission    float64   `json:"commission"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccountUpdate is a single event from the user-data stream: either a balance
// snapshot change or an order execution report.
type AccountUpdate struct {
	Balances map[string]float64 `json:"balances,omitempty"`
	Order    *Fill              `json:"order,omitempty"`
}
