package strategy

// Exit reason tags, ordered by the precedence used in CheckStandardExits.
const (
	ReasonStopLoss        = "Stop Loss"
	ReasonRSIGlide        = "RSI Glide"
	ReasonProfitStepTrail = "Profit Step Trail"
	ReasonManualTrailing  = "Manual Trailing"
	ReasonATRTakeProfit   = "ATR Take Profit"
	ReasonTakeProfit      = "Take Profit"
)

// CheckStandardExits evaluates the shared exit ladder: stop-loss, then
// trailing, then take-profit.
//
// Trailing activation: the profit step (highestPrice above entry) arms
// trailing on its own, independent of the manual trailing toggle. RSI above
// the sell threshold (glide) or the manual toggle arm it too. When armed and
// the price has fallen below highestPrice reduced by the trailing percentage,
// the exit fires with a reason tag chosen in the order glide > profit step >
// manual. When armed but not triggered the position is held — take-profit is
// deliberately not consulted while the trail is riding.
func CheckStandardExits(snap Snapshot, params Params, pos PositionView) (bool, string) {
	if pos.EntryPrice <= 0 {
		return false, ""
	}

	// 1. Stop loss.
	if params.StopLossPct > 0 {
		slPrice := pos.EntryPrice * (1 - params.StopLossPct/100)
		if snap.Price <= slPrice {
			return true, ReasonStopLoss
		}
	}

	// 2. Trailing.
	rsiGlide := snap.RSI > params.SellRSI
	profitStep := pos.HighestPrice > pos.EntryPrice
	shouldTrail := profitStep || rsiGlide || params.TrailingEnabled

	if pos.HighestPrice > 0 && shouldTrail {
		trailPrice := pos.HighestPrice * (1 - params.TrailingStopPct/100)
		if snap.Price < trailPrice {
			switch {
			case rsiGlide:
				return true, ReasonRSIGlide
			case profitStep && !params.TrailingEnabled:
				return true, ReasonProfitStepTrail
			default:
				return true, ReasonManualTrailing
			}
		}
		return false, ""
	}

	// 3. Take profit.
	if params.ATRTakeProfitEnabled {
		if snap.ATR > 0 {
			tpPrice := pos.EntryPrice + snap.ATR*params.ATRMultiplier
			if tpPrice <= pos.EntryPrice {
				tpPrice = pos.EntryPrice * 1.01
			}
			if snap.Price >= tpPrice {
				return true, ReasonATRTakeProfit
			}
		} else if params.TakeProfitPct > 0 {
			// ATR unavailable, fixed target as fallback.
			if snap.Price >= pos.EntryPrice*(1+params.TakeProfitPct/100) {
				return true, ReasonTakeProfit
			}
		}
	} else if params.TakeProfitPct > 0 {
		if snap.Price >= pos.EntryPrice*(1+params.TakeProfitPct/100) {
			return true, ReasonTakeProfit
		}
	}

	return false, ""
}
