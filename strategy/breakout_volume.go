package strategy

// BreakoutVolume buys closes above the upper Bollinger band confirmed by a
// volume spike and sells on reversion below the middle band or a tightened
// take-profit target.
type BreakoutVolume struct{}

func (s *BreakoutVolume) Name() string { return "Breakout Volume" }

func (s *BreakoutVolume) RequiredIndicators() []string {
	return []string{"boll_upper", "boll_middle", "current_volume", "volume_sma"}
}

func (s *BreakoutVolume) CheckBuySignal(snap Snapshot, params Params, pos PositionView) bool {
	if snap.BollUpper == 0 || snap.VolumeSMA == 0 {
		return false
	}
	return snap.Price > snap.BollUpper && snap.CurrentVolume > snap.VolumeSMA*1.5
}

func (s *BreakoutVolume) CheckSellSignal(snap Snapshot, params Params, pos PositionView) (bool, string) {
	if pos.EntryPrice <= 0 {
		return false, ""
	}
	if snap.BollMiddle > 0 && snap.Price < snap.BollMiddle {
		return true, "Band Reversion"
	}
	// Breakouts target half the configured take-profit distance.
	if params.TakeProfitPct > 0 {
		tpPrice := pos.EntryPrice * (1 + params.TakeProfitPct/200)
		if snap.Price >= tpPrice {
			return true, ReasonTakeProfit
		}
	}
	return false, ""
}
