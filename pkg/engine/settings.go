// File: pkg/engine/settings.go
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"ratchet/strategy"
	"ratchet/utilities"
)

// Settings is the typed per-user trading configuration. Values arrive as a
// string map at the update boundary and are coerced exactly once here; every
// read site sees typed fields.
type Settings struct {
	Symbol            string
	Strategy          strategy.Variant
	BuyRSI            float64
	SellRSI           float64
	StopLossPct       float64
	TakeProfitPct     float64
	TradeQty          float64
	TradeQtyIsQuote   bool
	SellMode          string // "full" or "step"
	MaxPositionOrders int
	DcaStepPct        float64
	TrailingEnabled   bool
	TrailingStopPct   float64
	Timeframe         string
	SniperMode        bool

	ATRTakeProfitEnabled bool
	ATRMultiplier        float64

	ExclusionEnabled   bool
	ExclusionAsset     string
	ExclusionThreshold float64

	EnableTrendFilter  bool
	EnableVolumeFilter bool
	EnableFastEMA      bool

	TestnetCommissionPct float64
	DustThreshold        float64
}

// DefaultSettings builds the initial settings for a new user session from the
// application-level trading defaults.
func DefaultSettings(cfg utilities.TradingConfig) Settings {
	s := Settings{
		Symbol:               "BTCUSDT",
		Strategy:             strategy.VariantRSIRebound,
		BuyRSI:               21,
		SellRSI:              75,
		StopLossPct:          3.2,
		TakeProfitPct:        1.3,
		TradeQty:             35,
		TradeQtyIsQuote:      true,
		SellMode:             "full",
		MaxPositionOrders:    2,
		DcaStepPct:           1.5,
		TrailingEnabled:      false,
		TrailingStopPct:      1.0,
		Timeframe:            "15m",
		SniperMode:           false,
		ATRTakeProfitEnabled: false,
		ATRMultiplier:        2.0,
		ExclusionEnabled:     false,
		ExclusionAsset:       "",
		ExclusionThreshold:   0.1,
		EnableTrendFilter:    true,
		EnableVolumeFilter:   true,
		EnableFastEMA:        true,
		TestnetCommissionPct: 0.1,
		DustThreshold:        1.0,
	}

	if cfg.Symbol != "" {
		s.Symbol = cfg.Symbol
	}
	if cfg.Strategy != "" {
		if v, err := strategy.ResolveVariant(cfg.Strategy); err == nil {
			s.Strategy = v
		}
	}
	if cfg.BuyRSI > 0 {
		s.BuyRSI = cfg.BuyRSI
	}
	if cfg.SellRSI > 0 {
		s.SellRSI = cfg.SellRSI
	}
	if cfg.StopLossPct > 0 {
		s.StopLossPct = cfg.StopLossPct
	}
	if cfg.TakeProfitPct > 0 {
		s.TakeProfitPct = cfg.TakeProfitPct
	}
	if cfg.TradeQty > 0 {
		s.TradeQty = cfg.TradeQty
	}
	if cfg.MaxPositionOrders > 0 {
		s.MaxPositionOrders = cfg.MaxPositionOrders
	}
	if cfg.DcaStepPct > 0 {
		s.DcaStepPct = cfg.DcaStepPct
	}
	if cfg.TrailingStopPct > 0 {
		s.TrailingStopPct = cfg.TrailingStopPct
	}
	if cfg.Timeframe != "" {
		if tf, err := utilities.NormalizeTimeframe(cfg.Timeframe); err == nil {
			s.Timeframe = tf
		}
	}
	if cfg.ATRMultiplier > 0 {
		s.ATRMultiplier = cfg.ATRMultiplier
	}
	if cfg.ExclusionAsset != "" {
		s.ExclusionAsset = cfg.ExclusionAsset
	}
	if cfg.TestnetCommissionPct > 0 {
		s.TestnetCommissionPct = cfg.TestnetCommissionPct
	}
	if cfg.DustThreshold > 0 {
		s.DustThreshold = cfg.DustThreshold
	}
	s.TrailingEnabled = cfg.TrailingStopEnabled
	s.SniperMode = cfg.SniperMode
	s.ATRTakeProfitEnabled = cfg.ATRTakeProfitEnabled
	s.ExclusionEnabled = cfg.ExclusionFilter
	return s
}

// Apply coerces and validates a string-keyed update map into the typed
// settings, returning the keys that changed. Unknown keys are rejected so
// typos surface instead of silently persisting.
func (s *Settings) Apply(values map[string]string) ([]string, error) {
	var changed []string
	for key, raw := range values {
		if err := s.applyOne(key, raw); err != nil {
			return nil, err
		}
		changed = append(changed, key)
	}
	return changed, nil
}

func (s *Settings) applyOne(key, raw string) error {
	parseFloat := func() (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, fmt.Errorf("setting %s: expected number, got %q", key, raw)
		}
		return v, nil
	}
	parseBool := func() (bool, error) {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("setting %s: expected boolean, got %q", key, raw)
	}
	parseInt := func() (int, error) {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("setting %s: expected integer, got %q", key, raw)
		}
		return v, nil
	}

	var err error
	switch key {
	case "symbol":
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			return fmt.Errorf("setting symbol: must not be empty")
		}
		s.Symbol = sym
	case "active_strategy":
		s.Strategy, err = strategy.ResolveVariant(raw)
	case "buy_rsi":
		s.BuyRSI, err = parseFloat()
	case "sell_rsi":
		s.SellRSI, err = parseFloat()
	case "stop_loss_pct":
		s.StopLossPct, err = parseFloat()
	case "take_profit_pct":
		s.TakeProfitPct, err = parseFloat()
	case "trade_qty":
		s.TradeQty, err = parseFloat()
	case "trade_qty_type":
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "quote":
			s.TradeQtyIsQuote = true
		case "base":
			s.TradeQtyIsQuote = false
		default:
			return fmt.Errorf("setting trade_qty_type: expected quote or base, got %q", raw)
		}
	case "sell_mode":
		mode := strings.ToLower(strings.TrimSpace(raw))
		if mode != "full" && mode != "step" {
			return fmt.Errorf("setting sell_mode: expected full or step, got %q", raw)
		}
		s.SellMode = mode
	case "max_dca_orders":
		s.MaxPositionOrders, err = parseInt()
	case "dca_step_pct":
		s.DcaStepPct, err = parseFloat()
	case "trailing_enabled":
		s.TrailingEnabled, err = parseBool()
	case "trailing_stop_pct", "rsi_trailing_pct":
		s.TrailingStopPct, err = parseFloat()
	case "timeframe":
		s.Timeframe, err = utilities.NormalizeTimeframe(raw)
	case "sniper_mode":
		s.SniperMode, err = parseBool()
	case "enable_atr_tp":
		s.ATRTakeProfitEnabled, err = parseBool()
	case "atr_tp_multiplier":
		s.ATRMultiplier, err = parseFloat()
	case "enable_mutual_exclusion":
		s.ExclusionEnabled, err = parseBool()
	case "exclusion_asset":
		s.ExclusionAsset = strings.ToUpper(strings.TrimSpace(raw))
	case "exclusion_threshold":
		s.ExclusionThreshold, err = parseFloat()
	case "enable_trend_filter":
		s.EnableTrendFilter, err = parseBool()
	case "enable_vol_filter":
		s.EnableVolumeFilter, err = parseBool()
	case "enable_fast_ema":
		s.EnableFastEMA, err = parseBool()
	case "testnet_commission_pct":
		s.TestnetCommissionPct, err = parseFloat()
	case "dust_threshold":
		s.DustThreshold, err = parseFloat()
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return err
}

// Map renders the settings as the string map used for persistence.
func (s Settings) Map() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	b := strconv.FormatBool
	return map[string]string{
		"symbol":                  s.Symbol,
		"active_strategy":         s.Strategy.String(),
		"buy_rsi":                 f(s.BuyRSI),
		"sell_rsi":                f(s.SellRSI),
		"stop_loss_pct":           f(s.StopLossPct),
		"take_profit_pct":         f(s.TakeProfitPct),
		"trade_qty":               f(s.TradeQty),
		"trade_qty_type":          map[bool]string{true: "quote", false: "base"}[s.TradeQtyIsQuote],
		"sell_mode":               s.SellMode,
		"max_dca_orders":          strconv.Itoa(s.MaxPositionOrders),
		"dca_step_pct":            f(s.DcaStepPct),
		"trailing_enabled":        b(s.TrailingEnabled),
		"trailing_stop_pct":       f(s.TrailingStopPct),
		"timeframe":               s.Timeframe,
		"sniper_mode":             b(s.SniperMode),
		"enable_atr_tp":           b(s.ATRTakeProfitEnabled),
		"atr_tp_multiplier":       f(s.ATRMultiplier),
		"enable_mutual_exclusion": b(s.ExclusionEnabled),
		"exclusion_asset":         s.ExclusionAsset,
		"exclusion_threshold":     f(s.ExclusionThreshold),
		"enable_trend_filter":     b(s.EnableTrendFilter),
		"enable_vol_filter":       b(s.EnableVolumeFilter),
		"enable_fast_ema":         b(s.EnableFastEMA),
		"testnet_commission_pct":  f(s.TestnetCommissionPct),
		"dust_threshold":          f(s.DustThreshold),
	}
}

// StrategyParams projects the settings onto the strategy-facing parameter set.
func (s Settings) StrategyParams() strategy.Params {
	return strategy.Params{
		BuyRSI:               s.BuyRSI,
		SellRSI:              s.SellRSI,
		StopLossPct:          s.StopLossPct,
		TakeProfitPct:        s.TakeProfitPct,
		TrailingEnabled:      s.TrailingEnabled,
		TrailingStopPct:      s.TrailingStopPct,
		ATRTakeProfitEnabled: s.ATRTakeProfitEnabled,
		ATRMultiplier:        s.ATRMultiplier,
		EnableTrendFilter:    s.EnableTrendFilter,
		EnableVolumeFilter:   s.EnableVolumeFilter,
		EnableFastEMA:        s.EnableFastEMA,
	}
}
