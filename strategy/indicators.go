package strategy

import (
	"math"

	"ratchet/utilities"
)

// CalculateRSI calculates the Relative Strength Index (RSI) over the given bars.
func CalculateRSI(bars []utilities.OHLCVBar, period int) float64 {
	if len(bars) < period+1 || period <= 0 {
		return 50.0 // neutral
	}
	gains, losses := 0.0, 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// ComputeEMASeries computes an EMA series seeded with the SMA of the first
// period values. Returns false when there is not enough data.
func ComputeEMASeries(values []float64, period int) ([]float64, bool) {
	if period <= 0 || len(values) < period {
		return nil, false
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	out[period-1] = sum / float64(period)
	multiplier := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*multiplier + out[i-1]
	}
	return out, true
}

// CalculateEMA returns the latest EMA value over the bar closes.
func CalculateEMA(bars []utilities.OHLCVBar, period int) float64 {
	series, ok := ComputeEMASeries(extractCloses(bars), period)
	if !ok {
		return 0
	}
	return series[len(series)-1]
}

// CalculateMACD computes the MACD line, signal line, and histogram over the
// given bars.
func CalculateMACD(bars []utilities.OHLCVBar, fastPeriod, slowPeriod, signalPeriod int) (macd, signal, hist float64) {
	closes := extractCloses(bars)
	fastEMA, okFast := ComputeEMASeries(closes, fastPeriod)
	slowEMA, okSlow := ComputeEMASeries(closes, slowPeriod)
	if !okFast || !okSlow {
		return 0, 0, 0
	}
	macdSeries := make([]float64, len(closes))
	for i := range closes {
		macdSeries[i] = fastEMA[i] - slowEMA[i]
	}
	signalEMA, ok := ComputeEMASeries(macdSeries, signalPeriod)
	if !ok {
		return 0, 0, 0
	}
	idx := len(macdSeries) - 1
	return macdSeries[idx], signalEMA[idx], macdSeries[idx] - signalEMA[idx]
}

// CalculateBollinger computes the upper, middle, and lower Bollinger bands.
func CalculateBollinger(bars []utilities.OHLCVBar, period int, stdDevFactor float64) (upper, middle, lower float64) {
	if len(bars) < period || period <= 0 {
		return 0, 0, 0
	}
	window := bars[len(bars)-period:]
	sum := 0.0
	for _, b := range window {
		sum += b.Close
	}
	middle = sum / float64(period)

	variance := 0.0
	for _, b := range window {
		d := b.Close - middle
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(period))
	return middle + stdDevFactor*stdDev, middle, middle - stdDevFactor*stdDev
}

// CalculateVolumeSMA computes the simple moving average of volume, excluding
// the in-progress bar.
func CalculateVolumeSMA(bars []utilities.OHLCVBar, period int) float64 {
	if len(bars) <= period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period - 1; i < len(bars)-1; i++ {
		sum += bars[i].Volume
	}
	return sum / float64(period)
}

// CalculateATR computes the Average True Range with Wilder smoothing.
func CalculateATR(bars []utilities.OHLCVBar, period int) float64 {
	if len(bars) < period+1 || period <= 0 {
		return 0
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		trs = append(trs, math.Max(highLow, math.Max(highClose, lowClose)))
	}
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
	}
	atr /= float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

// CalculateADX computes the Average Directional Index with Wilder smoothing.
func CalculateADX(bars []utilities.OHLCVBar, period int) float64 {
	if len(bars) < 2*period+1 || period <= 0 {
		return 0
	}

	var trSum, plusDMSum, minusDMSum float64
	trs := make([]float64, 0, len(bars)-1)
	plusDMs := make([]float64, 0, len(bars)-1)
	minusDMs := make([]float64, 0, len(bars)-1)

	for i := 1; i < len(bars); i++ {
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		tr := math.Max(highLow, math.Max(highClose, lowClose))

		trs = append(trs, tr)
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	for i := 0; i < period; i++ {
		trSum += trs[i]
		plusDMSum += plusDMs[i]
		minusDMSum += minusDMs[i]
	}

	dx := func(trS, plusS, minusS float64) float64 {
		if trS == 0 {
			return 0
		}
		plusDI := 100.0 * plusS / trS
		minusDI := 100.0 * minusS / trS
		if plusDI+minusDI == 0 {
			return 0
		}
		return 100.0 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	adx := dx(trSum, plusDMSum, minusDMSum)
	count := 1.0
	for i := period; i < len(trs); i++ {
		trSum = trSum - trSum/float64(period) + trs[i]
		plusDMSum = plusDMSum - plusDMSum/float64(period) + plusDMs[i]
		minusDMSum = minusDMSum - minusDMSum/float64(period) + minusDMs[i]
		d := dx(trSum, plusDMSum, minusDMSum)
		adx = (adx*count + d) / (count + 1)
		if count < float64(period) {
			count++
		}
	}
	return adx
}

// extractCloses is a helper function to get a slice of close prices from OHLCV bars.
func extractCloses(bars []utilities.OHLCVBar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return closes
}

// ComputeSnapshot aggregates all primary indicators into one snapshot for the
// current price. Zero-valued config fields fall back to conventional periods.
func ComputeSnapshot(bars []utilities.OHLCVBar, cfg utilities.IndicatorsConfig, price float64) Snapshot {
	rsiPeriod := defaultInt(cfg.RSIPeriod, 14)
	macdFast := defaultInt(cfg.MACDFastPeriod, 12)
	macdSlow := defaultInt(cfg.MACDSlowPeriod, 26)
	macdSignal := defaultInt(cfg.MACDSignalPeriod, 9)
	trendPeriod := defaultInt(cfg.TrendEMAPeriod, 200)
	fastPeriod := defaultInt(cfg.FastEMAPeriod, 7)
	bollPeriod := defaultInt(cfg.BollingerPeriod, 20)
	bollStd := cfg.BollingerStdDev
	if bollStd <= 0 {
		bollStd = 2.0
	}
	volPeriod := defaultInt(cfg.VolumeSMAPeriod, 20)
	adxPeriod := defaultInt(cfg.ADXPeriod, 14)
	atrPeriod := defaultInt(cfg.ATRPeriod, 14)
	lateralThreshold := cfg.LateralADXThreshold
	if lateralThreshold <= 0 {
		lateralThreshold = 20.0
	}

	macd, signal, hist := CalculateMACD(bars, macdFast, macdSlow, macdSignal)
	upper, middle, lower := CalculateBollinger(bars, bollPeriod, bollStd)
	adx := CalculateADX(bars, adxPeriod)

	currentVolume := 0.0
	if len(bars) > 0 {
		currentVolume = bars[len(bars)-1].Volume
	}

	return Snapshot{
		Price:         price,
		RSI:           CalculateRSI(bars, rsiPeriod),
		MACD:          macd,
		MACDSignal:    signal,
		MACDHistogram: hist,
		TrendEMA:      CalculateEMA(bars, trendPeriod),
		FastEMA:       CalculateEMA(bars, fastPeriod),
		BollUpper:     upper,
		BollMiddle:    middle,
		BollLower:     lower,
		VolumeSMA:     CalculateVolumeSMA(bars, volPeriod),
		CurrentVolume: currentVolume,
		ADX:           adx,
		ATR:           CalculateATR(bars, atrPeriod),
		IsLateral:     adx > 0 && adx < lateralThreshold,
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
