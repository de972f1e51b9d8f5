package strategy

// SmartScalper buys oversold momentum: RSI below threshold with a positive
// MACD histogram, filtered by the long trend EMA and optionally confirmed by
// the fast EMA. Exits ride the standard ladder.
type SmartScalper struct{}

func (s *SmartScalper) Name() string { return "Smart Scalper" }

func (s *SmartScalper) RequiredIndicators() []string {
	return []string{"rsi", "macd_histogram", "macd_signal", "trend_ema", "fast_ema"}
}

func (s *SmartScalper) CheckBuySignal(snap Snapshot, params Params, pos PositionView) bool {
	if params.EnableTrendFilter && snap.TrendEMA > 0 && snap.Price < snap.TrendEMA {
		return false
	}
	if snap.RSI >= params.BuyRSI {
		return false
	}
	if snap.MACDHistogram <= 0 {
		return false
	}
	if params.EnableFastEMA && snap.FastEMA > 0 && snap.Price < snap.FastEMA {
		return false
	}
	return true
}

func (s *SmartScalper) CheckSellSignal(snap Snapshot, params Params, pos PositionView) (bool, string) {
	return CheckStandardExits(snap, params, pos)
}
