// File: pkg/engine/executor.go
package engine

import (
	"fmt"
	"math"
	"time"

	"ratchet/pkg/exchange"
	"ratchet/store"
	"ratchet/utilities"

	"github.com/google/uuid"
)

// The order executor: validation, normalization, minimum-notional adjustment,
// and the only two code paths that mutate PositionState on fills. Manual and
// strategy-driven orders both funnel through executeBuy/executeSell, so no two
// paths can produce inconsistent position state. Callers hold the engine lock.

// validateOrder checks an order against the symbol's lot-size and notional
// filters and returns ok plus a human-readable reason on failure.
func validateOrder(rules exchange.SymbolRules, qty, price float64, isQuote bool) (bool, string) {
	if !isQuote {
		if rules.MinQty > 0 && qty < rules.MinQty {
			return false, fmt.Sprintf("quantity %v below the symbol minimum (%v)", qty, rules.MinQty)
		}
		if rules.MaxQty > 0 && qty > rules.MaxQty {
			return false, fmt.Sprintf("quantity %v above the symbol maximum (%v)", qty, rules.MaxQty)
		}
	}

	notional := qty
	if !isQuote {
		notional = qty * price
	}
	if notional < rules.MinNotional {
		return false, fmt.Sprintf("notional %.2f below the %.2f minimum", notional, rules.MinNotional)
	}
	return true, "OK"
}

// normalizeQuantity floors qty to the symbol's step-size granularity so the
// exchange never rejects on precision.
func normalizeQuantity(rules exchange.SymbolRules, qty float64) float64 {
	if rules.StepSize <= 0 {
		return qty
	}
	return utilities.FloorToStep(qty, rules.StepSize)
}

// adjustToMinNotional computes a quantity that clears the minimum notional
// with a 5% buffer (absolute floor 6 quote units), stepped up to lot-size
// granularity. Returns false when no adjustment is needed or possible.
func adjustToMinNotional(rules exchange.SymbolRules, qty, price float64, isQuote bool) (float64, bool) {
	notional := qty
	if !isQuote {
		notional = qty * price
	}
	if notional >= rules.MinNotional {
		return 0, false
	}

	target := math.Max(rules.MinNotional*1.05, 6.0)
	if isQuote {
		return target, true
	}
	if rules.StepSize <= 0 || price <= 0 {
		return 0, false
	}

	precision := utilities.StepPrecision(rules.StepSize)
	scale := math.Pow(10, float64(precision))
	adjusted := math.Ceil(target/price*scale) / scale

	// Ceiling at step precision can still land a hair short of the minimum.
	if adjusted*price < rules.MinNotional {
		adjusted += rules.StepSize
	}
	return adjusted, true
}

// executeBuy validates, adjusts, and submits a market buy, then applies the
// weighted-average entry update and persists the position atomically.
// Position state is untouched on any failure. Caller holds the lock.
func (e *Engine) executeBuy(symbol string, qty float64, isQuote bool, price float64, strategyTag string) (exchange.Fill, error) {
	if e.settings.SniperMode {
		// All-in sizing: ~98% of the available quote balance.
		if isQuote {
			qty = e.quoteBalance * 0.98
		} else if price > 0 {
			qty = e.quoteBalance * 0.98 / price
		}
		e.logger.LogDebug("engine %s: sniper mode sized buy to %v", e.userID, qty)
	}

	rules, err := e.exchange.GetSymbolRules(e.loopCtx, symbol)
	if err != nil {
		return exchange.Fill{}, fmt.Errorf("fetching symbol rules: %w", err)
	}

	if ok, reason := validateOrder(rules, qty, price, isQuote); !ok {
		adjusted, adjustable := adjustToMinNotional(rules, qty, price, isQuote)
		if !adjustable {
			return exchange.Fill{}, fmt.Errorf("%w: %s", ErrValidation, reason)
		}
		e.logger.LogInfo("engine %s: adjusting buy from %v to %v to clear the exchange minimum", e.userID, qty, adjusted)
		qty = adjusted
	}

	totalRequired := qty
	if !isQuote {
		totalRequired = qty * price
	}
	if totalRequired > e.quoteBalance {
		return exchange.Fill{}, fmt.Errorf("%w: order needs %.2f, available %.2f", ErrInsufficientBalance, totalRequired, e.quoteBalance)
	}

	var baseQty, quoteQty float64
	if isQuote {
		quoteQty = qty
	} else {
		baseQty = normalizeQuantity(rules, qty)
		if baseQty <= 0 {
			return exchange.Fill{}, fmt.Errorf("%w: quantity %v rounds to zero at step %v", ErrValidation, qty, rules.StepSize)
		}
	}

	fill, err := e.exchange.SubmitOrder(e.loopCtx, symbol, exchange.SideBuy, baseQty, quoteQty, uuid.NewString())
	if err != nil {
		return exchange.Fill{}, fmt.Errorf("buy order failed: %w", err)
	}

	e.applyFill(fill, strategyTag)
	return fill, nil
}

// executeSell clamps the request to the held balance, validates, submits, and
// applies the sell-side state transition including the dust-threshold reset.
// Caller holds the lock.
func (e *Engine) executeSell(symbol string, qty, price float64, strategyTag string) (exchange.Fill, error) {
	if qty > e.baseBalance {
		e.logger.LogDebug("engine %s: clamping sell from %v to held balance %v", e.userID, qty, e.baseBalance)
		qty = e.baseBalance
	}
	if qty <= 0 {
		return exchange.Fill{}, fmt.Errorf("%w: no base asset available to sell", ErrInsufficientBalance)
	}

	rules, err := e.exchange.GetSymbolRules(e.loopCtx, symbol)
	if err != nil {
		return exchange.Fill{}, fmt.Errorf("fetching symbol rules: %w", err)
	}

	if ok, reason := validateOrder(rules, qty, price, false); !ok {
		adjusted, adjustable := adjustToMinNotional(rules, qty, price, false)
		if !adjustable || adjusted > e.baseBalance {
			return exchange.Fill{}, fmt.Errorf("%w: %s", ErrValidation, reason)
		}
		e.logger.LogInfo("engine %s: adjusting sell from %v to %v to clear the exchange minimum", e.userID, qty, adjusted)
		qty = adjusted
	}

	qty = normalizeQuantity(rules, qty)
	if qty <= 0 {
		return exchange.Fill{}, fmt.Errorf("%w: quantity rounds to zero at step %v", ErrValidation, rules.StepSize)
	}

	fill, err := e.exchange.SubmitOrder(e.loopCtx, symbol, exchange.SideSell, qty, 0, uuid.NewString())
	if err != nil {
		return exchange.Fill{}, fmt.Errorf("sell order failed: %w", err)
	}

	e.applyFill(fill, strategyTag)
	return fill, nil
}

// applyFill turns an executed order into a position transition, a persisted
// state write, a ledger entry, and a notification — exactly once per fill.
func (e *Engine) applyFill(fill exchange.Fill, strategyTag string) {
	actualPrice := fill.AvgPrice
	if actualPrice <= 0 && fill.ExecutedQty > 0 {
		actualPrice = fill.QuoteQty / fill.ExecutedQty
	}

	// Simulated/testnet accounting deducts the commission from the filled
	// quantity on buys; live mode reports the exchange's own fee untouched.
	commission := fill.Commission
	finalQty := fill.ExecutedQty
	if e.cfg.Binance.Testnet {
		pct := e.settings.TestnetCommissionPct / 100
		commission = fill.ExecutedQty * pct * actualPrice
		if fill.Side == exchange.SideBuy {
			finalQty = fill.ExecutedQty * (1 - pct)
		}
	}

	var pnl float64
	if fill.Side == exchange.SideBuy {
		e.pos.ApplyBuyFill(finalQty, actualPrice)
		e.quoteBalance -= fill.QuoteQty
		e.baseBalance += finalQty
	} else {
		var cleared bool
		pnl, cleared = e.pos.ApplySellFill(fill.ExecutedQty, actualPrice, e.settings.DustThreshold)
		e.quoteBalance += fill.QuoteQty
		e.baseBalance -= fill.ExecutedQty
		if e.baseBalance < 0 {
			e.baseBalance = 0
		}
		if cleared {
			e.logger.LogInfo("engine %s: position cleared for %s (residual below dust threshold)", e.userID, fill.Symbol)
		}
	}

	if err := e.persistPosition(); err != nil {
		e.logger.LogError("engine %s: persisting position after fill %s: %v", e.userID, fill.OrderID, err)
	}

	total := fill.QuoteQty
	if total <= 0 {
		total = actualPrice * fill.ExecutedQty
	}
	rec := store.TradeRecord{
		Time:        time.Now(),
		Side:        fill.Side,
		StrategyTag: strategyTag,
		Price:       actualPrice,
		Qty:         fill.ExecutedQty,
		Pnl:         pnl,
		Symbol:      fill.Symbol,
		RSIAtFill:   e.snapshot.RSI,
		Commission:  commission,
		TotalQuote:  total,
	}
	if err := e.store.AppendTrade(e.userID, rec); err != nil {
		e.logger.LogError("engine %s: appending trade %s: %v", e.userID, fill.OrderID, err)
	}

	e.notifier.Notify(e.userID, fmt.Sprintf("%s %s: %s @ %s (%s)",
		fill.Side, fill.Symbol,
		utilities.FormatQty(fill.ExecutedQty, 8),
		utilities.FormatQty(actualPrice, 8),
		strategyTag))
}
