package strategy

// RSIRebound buys oversold dips, optionally gated by trend and volume filters,
// and sells on RSI exhaustion or the standard exit ladder.
type RSIRebound struct{}

func (s *RSIRebound) Name() string { return "RSI Rebound" }

func (s *RSIRebound) RequiredIndicators() []string {
	return []string{"rsi", "trend_ema", "volume_sma", "current_volume", "fast_ema"}
}

func (s *RSIRebound) CheckBuySignal(snap Snapshot, params Params, pos PositionView) bool {
	if snap.RSI >= params.BuyRSI {
		return false
	}
	if params.EnableTrendFilter && snap.Price < snap.TrendEMA {
		return false
	}
	if params.EnableVolumeFilter && snap.CurrentVolume <= snap.VolumeSMA {
		return false
	}
	return true
}

func (s *RSIRebound) CheckSellSignal(snap Snapshot, params Params, pos PositionView) (bool, string) {
	if pos.EntryPrice <= 0 {
		return false, ""
	}
	// Oversold exhaustion exits immediately, ahead of the shared ladder.
	if snap.RSI > params.SellRSI {
		return true, "RSI Exit"
	}
	return CheckStandardExits(snap, params, pos)
}
