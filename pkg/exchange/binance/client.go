// File: pkg/exchange/binance/client.go
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ratchet/pkg/exchange"
	"ratchet/utilities"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"
)

const defaultRulesTTL = 5 * time.Minute

// Adapter implements exchange.Exchange against Binance spot via the official
// REST and websocket endpoints.
type Adapter struct {
	client  *gobinance.Client
	logger  *utilities.Logger
	limiter *rate.Limiter
	testnet bool

	rulesMu    sync.Mutex
	rulesCache map[string]cachedRules
	rulesTTL   time.Duration
}

type cachedRules struct {
	rules     exchange.SymbolRules
	fetchedAt time.Time
}

// NewAdapter builds a Binance spot adapter from config. Testnet mode switches
// both REST and websocket endpoints.
func NewAdapter(cfg utilities.BinanceConfig, logger *utilities.Logger) *Adapter {
	gobinance.UseTestnet = cfg.Testnet

	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 10
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	ttl := time.Duration(cfg.RulesCacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultRulesTTL
	}

	return &Adapter{
		client:     gobinance.NewClient(cfg.APIKey, cfg.APISecret),
		logger:     logger,
		limiter:    rate.NewLimiter(limit, burst),
		testnet:    cfg.Testnet,
		rulesCache: make(map[string]cachedRules),
		rulesTTL:   ttl,
	}
}

// classify maps Binance API errors onto the exchange error taxonomy.
// Codes -2015 (invalid key/permissions) and -1100 (malformed credentials on
// signed requests) are credential failures and must not be retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -2015, -1100, -1022:
			return fmt.Errorf("%w: code %d: %s", exchange.ErrCredential, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("binance api error code %d: %s", apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", exchange.ErrTransport, err)
}

func (a *Adapter) wait(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", exchange.ErrTransport, err)
	}
	return nil
}

// GetHistoricalCandles fetches up to limit klines, oldest first.
func (a *Adapter) GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]utilities.OHLCVBar, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	klines, err := a.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	bars := make([]utilities.OHLCVBar, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closeP, _ := strconv.ParseFloat(k.Close, 64)
		vol, _ := strconv.ParseFloat(k.Volume, 64)
		bars = append(bars, utilities.OHLCVBar{
			Timestamp: k.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    vol,
		})
	}
	utilities.SortBarsByTimestamp(bars)
	return bars, nil
}

// GetCurrentPrice fetches the latest traded price for a symbol.
func (a *Adapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	prices, err := a.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", symbol)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed price %q for %s: %w", prices[0].Price, symbol, err)
	}
	return p, nil
}

// GetFreeBalance fetches the free balance of one asset from the account snapshot.
func (a *Adapter) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	account, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("malformed balance %q for %s: %w", b.Free, asset, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// GetSymbolRules returns the trading filters for a symbol, served from a
// short-lived cache to keep exchange-info calls off the hot path.
func (a *Adapter) GetSymbolRules(ctx context.Context, symbol string) (exchange.SymbolRules, error) {
	a.rulesMu.Lock()
	if entry, ok := a.rulesCache[symbol]; ok && time.Since(entry.fetchedAt) < a.rulesTTL {
		a.rulesMu.Unlock()
		return entry.rules, nil
	}
	a.rulesMu.Unlock()

	if err := a.wait(ctx); err != nil {
		return exchange.SymbolRules{}, err
	}
	info, err := a.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return exchange.SymbolRules{}, classify(err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := parseSymbolRules(s)
		a.rulesMu.Lock()
		a.rulesCache[symbol] = cachedRules{rules: rules, fetchedAt: time.Now()}
		a.rulesMu.Unlock()
		return rules, nil
	}
	return exchange.SymbolRules{}, fmt.Errorf("symbol %s not present in exchange info", symbol)
}

// parseSymbolRules extracts LOT_SIZE and notional filters from the raw filter
// list. The modern NOTIONAL filter wins over the legacy MIN_NOTIONAL when both
// are present; 5.0 is the conservative fallback when neither is.
func parseSymbolRules(s gobinance.Symbol) exchange.SymbolRules {
	rules := exchange.SymbolRules{
		Symbol:      s.Symbol,
		BaseAsset:   s.BaseAsset,
		QuoteAsset:  s.QuoteAsset,
		MinNotional: 5.0,
	}

	filterFloat := func(f map[string]interface{}, key string) float64 {
		v, err := utilities.ParseFloatFromInterface(f[key])
		if err != nil {
			return 0
		}
		return v
	}

	var legacyNotional, modernNotional float64
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			rules.StepSize = filterFloat(f, "stepSize")
			rules.MinQty = filterFloat(f, "minQty")
			rules.MaxQty = filterFloat(f, "maxQty")
		case "NOTIONAL":
			modernNotional = filterFloat(f, "minNotional")
		case "MIN_NOTIONAL":
			legacyNotional = filterFloat(f, "minNotional")
		}
	}
	if modernNotional > 0 {
		rules.MinNotional = modernNotional
	} else if legacyNotional > 0 {
		rules.MinNotional = legacyNotional
	}
	return rules
}

// SubmitOrder places a market order sized either in base quantity or quote
// quantity, never both.
func (a *Adapter) SubmitOrder(ctx context.Context, symbol, side string, quantity, quoteQuantity float64, clientOrderID string) (exchange.Fill, error) {
	if (quantity <= 0) == (quoteQuantity <= 0) {
		return exchange.Fill{}, fmt.Errorf("exactly one of quantity or quoteQuantity must be positive")
	}
	if err := a.wait(ctx); err != nil {
		return exchange.Fill{}, err
	}

	svc := a.client.NewCreateOrderService().
		Symbol(symbol).
		Side(gobinance.SideType(side)).
		Type(gobinance.OrderTypeMarket)
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}

	rules, err := a.GetSymbolRules(ctx, symbol)
	if err != nil {
		return exchange.Fill{}, err
	}
	precision := utilities.StepPrecision(rules.StepSize)

	if quantity > 0 {
		svc = svc.Quantity(utilities.FormatQty(quantity, precision))
	} else {
		svc = svc.QuoteOrderQty(utilities.FormatQty(quoteQuantity, 8))
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return exchange.Fill{}, classify(err)
	}

	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)

	var commission, weightedPrice, filled float64
	for _, f := range resp.Fills {
		p, _ := strconv.ParseFloat(f.Price, 64)
		q, _ := strconv.ParseFloat(f.Quantity, 64)
		c, _ := strconv.ParseFloat(f.Commission, 64)
		weightedPrice += p * q
		filled += q
		commission += c
	}
	avgPrice := 0.0
	if filled > 0 {
		avgPrice = weightedPrice / filled
	} else if executed > 0 && quoteQty > 0 {
		avgPrice = quoteQty / executed
	}

	return exchange.Fill{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          string(resp.Side),
		ExecutedQty:   executed,
		AvgPrice:      avgPrice,
		QuoteQty:      quoteQty,
		Commission:    commission,
		Timestamp:     time.Now(),
	}, nil
}
