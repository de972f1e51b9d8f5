package engine

import (
	"testing"

	"ratchet/strategy"
	"ratchet/utilities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(utilities.TradingConfig{})

	assert.Equal(t, "BTCUSDT", s.Symbol)
	assert.Equal(t, strategy.VariantRSIRebound, s.Strategy)
	assert.Equal(t, 21.0, s.BuyRSI)
	assert.Equal(t, 75.0, s.SellRSI)
	assert.Equal(t, 3.2, s.StopLossPct)
	assert.Equal(t, 1.3, s.TakeProfitPct)
	assert.Equal(t, 35.0, s.TradeQty)
	assert.True(t, s.TradeQtyIsQuote)
	assert.Equal(t, "full", s.SellMode)
	assert.Equal(t, "15m", s.Timeframe)
	assert.Equal(t, 1.0, s.DustThreshold)
	assert.Equal(t, 0.1, s.TestnetCommissionPct)
}

func TestDefaultSettingsConfigOverlay(t *testing.T) {
	s := DefaultSettings(utilities.TradingConfig{
		Symbol:    "ethusdt",
		Strategy:  "scalper",
		BuyRSI:    30,
		Timeframe: "1hour",
		TradeQty:  50,
	})

	// Symbol passes through as configured; normalization happens at the
	// settings-update boundary.
	assert.Equal(t, "ethusdt", s.Symbol)
	assert.Equal(t, strategy.VariantSmartScalper, s.Strategy)
	assert.Equal(t, 30.0, s.BuyRSI)
	assert.Equal(t, "1h", s.Timeframe)
	assert.Equal(t, 50.0, s.TradeQty)
	// Untouched fields keep their defaults.
	assert.Equal(t, 75.0, s.SellRSI)
}

func TestSettingsApply(t *testing.T) {
	s := DefaultSettings(utilities.TradingConfig{})

	changed, err := s.Apply(map[string]string{
		"symbol":            "ethusdt",
		"active_strategy":   "breakout",
		"buy_rsi":           "25.5",
		"trailing_enabled":  "on",
		"trailing_stop_pct": "2.5",
		"max_dca_orders":    "4",
		"sell_mode":         "STEP",
		"trade_qty_type":    "base",
		"timeframe":         "1hour",
	})
	require.NoError(t, err)
	assert.Len(t, changed, 9)

	assert.Equal(t, "ETHUSDT", s.Symbol)
	assert.Equal(t, strategy.VariantBreakoutVolume, s.Strategy)
	assert.Equal(t, 25.5, s.BuyRSI)
	assert.True(t, s.TrailingEnabled)
	assert.Equal(t, 2.5, s.TrailingStopPct)
	assert.Equal(t, 4, s.MaxPositionOrders)
	assert.Equal(t, "step", s.SellMode)
	assert.False(t, s.TradeQtyIsQuote)
	assert.Equal(t, "1h", s.Timeframe)
}

func TestSettingsApplyRejects(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]string
	}{
		{"unknown key", map[string]string{"not_a_setting": "1"}},
		{"malformed float", map[string]string{"buy_rsi": "low"}},
		{"malformed bool", map[string]string{"sniper_mode": "maybe"}},
		{"malformed int", map[string]string{"max_dca_orders": "2.5"}},
		{"empty symbol", map[string]string{"symbol": "  "}},
		{"bad sell mode", map[string]string{"sell_mode": "half"}},
		{"bad qty type", map[string]string{"trade_qty_type": "eur"}},
		{"bad timeframe", map[string]string{"timeframe": "7m"}},
		{"bad strategy", map[string]string{"active_strategy": "martingale"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings(utilities.TradingConfig{})
			_, err := s.Apply(tc.values)
			assert.Error(t, err)
		})
	}
}

func TestSettingsTrailingPctAlias(t *testing.T) {
	s := DefaultSettings(utilities.TradingConfig{})
	_, err := s.Apply(map[string]string{"rsi_trailing_pct": "1.8"})
	require.NoError(t, err)
	assert.Equal(t, 1.8, s.TrailingStopPct)
}

func TestSettingsMapRoundTrip(t *testing.T) {
	s := DefaultSettings(utilities.TradingConfig{})
	s.Strategy = strategy.VariantSmartScalper
	s.TrailingEnabled = true
	s.ExclusionAsset = "ETH"

	restored := DefaultSettings(utilities.TradingConfig{})
	_, err := restored.Apply(s.Map())
	require.NoError(t, err)
	assert.Equal(t, s, restored)
}
