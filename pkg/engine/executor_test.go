package engine

import (
	"testing"

	"ratchet/pkg/exchange"
	"ratchet/utilities"

	"github.com/stretchr/testify/assert"
)

func btcRules() exchange.SymbolRules {
	return exchange.SymbolRules{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		StepSize:    0.001,
		MinQty:      0.001,
		MaxQty:      1000,
		MinNotional: 5.0,
	}
}

func TestValidateOrder(t *testing.T) {
	rules := btcRules()

	t.Run("quote order below min notional", func(t *testing.T) {
		ok, reason := validateOrder(rules, 4.0, 50000, true)
		assert.False(t, ok)
		assert.Contains(t, reason, "notional")
	})

	t.Run("quote order at min notional", func(t *testing.T) {
		ok, _ := validateOrder(rules, 5.0, 50000, true)
		assert.True(t, ok)
	})

	t.Run("base qty below lot minimum", func(t *testing.T) {
		ok, reason := validateOrder(rules, 0.0005, 50000, false)
		assert.False(t, ok)
		assert.Contains(t, reason, "minimum")
	})

	t.Run("base qty above lot maximum", func(t *testing.T) {
		ok, _ := validateOrder(rules, 2000, 50000, false)
		assert.False(t, ok)
	})

	t.Run("base qty clears both filters", func(t *testing.T) {
		ok, _ := validateOrder(rules, 0.001, 50000, false)
		assert.True(t, ok)
	})

	t.Run("valid lot size but dust notional", func(t *testing.T) {
		ok, _ := validateOrder(rules, 0.001, 100, false)
		assert.False(t, ok)
	})
}

func TestAdjustToMinNotional(t *testing.T) {
	rules := btcRules()

	t.Run("no adjustment when already above", func(t *testing.T) {
		_, adjusted := adjustToMinNotional(rules, 10.0, 50000, true)
		assert.False(t, adjusted)
	})

	t.Run("quote order bumps to buffered target", func(t *testing.T) {
		qty, adjusted := adjustToMinNotional(rules, 4.0, 50000, true)
		assert.True(t, adjusted)
		assert.GreaterOrEqual(t, qty, rules.MinNotional*1.05)
	})

	t.Run("base order steps up to clear the minimum", func(t *testing.T) {
		// 0.04 * 100 = 4.0 notional against a 5.0 minimum.
		qty, adjusted := adjustToMinNotional(rules, 0.04, 100, false)
		assert.True(t, adjusted)
		assert.GreaterOrEqual(t, qty*100, rules.MinNotional*1.05)
		// Result still lands on the lot grid.
		assert.InDelta(t, qty, utilities.FloorToStep(qty, rules.StepSize), 1e-9)
	})

	t.Run("unadjustable without filter data", func(t *testing.T) {
		bare := rules
		bare.StepSize = 0
		_, adjusted := adjustToMinNotional(bare, 0.04, 100, false)
		assert.False(t, adjusted)
	})
}

func TestNormalizeQuantity(t *testing.T) {
	rules := btcRules()

	assert.InDelta(t, 0.123, normalizeQuantity(rules, 0.12345), 1e-9)
	assert.InDelta(t, 0.001, normalizeQuantity(rules, 0.0019), 1e-9)
	assert.Zero(t, normalizeQuantity(rules, 0.0009))

	t.Run("result is never larger than the request", func(t *testing.T) {
		for _, q := range []float64{0.0011, 0.0555, 1.23456789, 999.9999} {
			assert.LessOrEqual(t, normalizeQuantity(rules, q), q)
		}
	})

	t.Run("exact multiples pass through", func(t *testing.T) {
		assert.InDelta(t, 0.25, normalizeQuantity(rules, 0.25), 1e-9)
	})
}
