package strategy

import (
	"fmt"
	"strings"
)

// Snapshot is an immutable bundle of computed technical values for one update
// cycle. Produced fresh each trading cycle and consumed read-only.
type Snapshot struct {
	Price         float64 `json:"price"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	TrendEMA      float64 `json:"trend_ema"`
	FastEMA       float64 `json:"fast_ema"`
	BollUpper     float64 `json:"boll_upper"`
	BollMiddle    float64 `json:"boll_middle"`
	BollLower     float64 `json:"boll_lower"`
	VolumeSMA     float64 `json:"volume_sma"`
	CurrentVolume float64 `json:"current_volume"`
	ADX           float64 `json:"adx"`
	ATR           float64 `json:"atr"`
	IsLateral     bool    `json:"is_lateral"`
}

// Params are the strategy-facing trading thresholds and toggles.
type Params struct {
	BuyRSI               float64
	SellRSI              float64
	StopLossPct          float64
	TakeProfitPct        float64
	TrailingEnabled      bool
	TrailingStopPct      float64
	ATRTakeProfitEnabled bool
	ATRMultiplier        float64
	EnableTrendFilter    bool
	EnableVolumeFilter   bool
	EnableFastEMA        bool
}

// PositionView is the read-only slice of position state a strategy may inspect.
type PositionView struct {
	Open           bool
	EntryPrice     float64
	AccumulatedQty float64
	HighestPrice   float64
	Orders         int
}

// Strategy maps an indicator snapshot, parameters, and position state to
// buy/sell signals. Implementations are pure: no side effects, no I/O.
type Strategy interface {
	Name() string
	RequiredIndicators() []string
	CheckBuySignal(snap Snapshot, params Params, pos PositionView) bool
	// CheckSellSignal returns the signal plus a reason tag for logging and
	// notifications.
	CheckSellSignal(snap Snapshot, params Params, pos PositionView) (bool, string)
}

// Variant is the closed enumeration of strategy implementations.
type Variant int

const (
	VariantRSIRebound Variant = iota
	VariantBreakoutVolume
	VariantSmartScalper
)

func (v Variant) String() string {
	switch v {
	case VariantRSIRebound:
		return "rsi_rebound"
	case VariantBreakoutVolume:
		return "breakout_volume"
	case VariantSmartScalper:
		return "smart_scalper"
	default:
		return "unknown"
	}
}

// aliases maps every accepted configuration spelling onto a variant. Resolved
// once at the settings boundary, never at read sites.
var aliases = map[string]Variant{
	"rsi_rebound":     VariantRSIRebound,
	"rsi":             VariantRSIRebound,
	"ema_rsi":         VariantRSIRebound,
	"rebound":         VariantRSIRebound,
	"breakout_volume": VariantBreakoutVolume,
	"breakout":        VariantBreakoutVolume,
	"volume":          VariantBreakoutVolume,
	"smart_scalper":   VariantSmartScalper,
	"scalper":         VariantSmartScalper,
	"smart":           VariantSmartScalper,
}

// ResolveVariant maps a configured strategy name or alias to its variant.
func ResolveVariant(name string) (Variant, error) {
	v, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return VariantRSIRebound, fmt.Errorf("unknown strategy %q", name)
	}
	return v, nil
}

// New constructs the strategy implementation for a variant.
func New(v Variant) Strategy {
	switch v {
	case VariantBreakoutVolume:
		return &BreakoutVolume{}
	case VariantSmartScalper:
		return &SmartScalper{}
	default:
		return &RSIRebound{}
	}
}
