package strategy

import (
	"ratchet/utilities"
)

// BacktestResult holds the performance metrics of a single backtest run.
type BacktestResult struct {
	Variant       Variant
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	NetProfit     float64
	ProfitFactor  float64
	WinRate       float64
}

// RunBacktest replays historical bars through a strategy variant with a
// simulated one-unit position, using the same signal paths the live engine
// evaluates. Fills are assumed at the bar close with no slippage or fees.
func RunBacktest(bars []utilities.OHLCVBar, cfg utilities.IndicatorsConfig, params Params, variant Variant) BacktestResult {
	strat := New(variant)
	result := BacktestResult{Variant: variant}

	var grossProfit, grossLoss float64
	var pos PositionView

	requiredBars := defaultInt(cfg.TrendEMAPeriod, 200)
	if p := defaultInt(cfg.MACDSlowPeriod, 26); p > requiredBars {
		requiredBars = p
	}

	for i := requiredBars; i < len(bars); i++ {
		window := bars[:i+1]
		price := window[len(window)-1].Close
		snap := ComputeSnapshot(window, cfg, price)

		if pos.Open && price > pos.HighestPrice {
			pos.HighestPrice = price
		}

		if !pos.Open {
			if strat.CheckBuySignal(snap, params, pos) {
				pos = PositionView{
					Open:           true,
					EntryPrice:     price,
					AccumulatedQty: 1.0,
					HighestPrice:   price,
					Orders:         1,
				}
			}
			continue
		}

		if sell, _ := strat.CheckSellSignal(snap, params, pos); sell {
			pnl := (price - pos.EntryPrice) * pos.AccumulatedQty
			result.TotalTrades++
			result.NetProfit += pnl
			if pnl >= 0 {
				result.WinningTrades++
				grossProfit += pnl
			} else {
				result.LosingTrades++
				grossLoss -= pnl
			}
			pos = PositionView{}
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = 100.0 * float64(result.WinningTrades) / float64(result.TotalTrades)
	}
	if grossLoss > 0 {
		result.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		result.ProfitFactor = grossProfit
	}
	return result
}
