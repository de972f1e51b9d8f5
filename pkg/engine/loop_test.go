package engine

import (
	"math"
	"testing"

	"ratchet/utilities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamedBars builds n closed candles with a gentle sine around base so every
// indicator has real variation to chew on.
func streamedBars(n int, base float64) []utilities.OHLCVBar {
	bars := make([]utilities.OHLCVBar, n)
	for i := range bars {
		px := base + base*0.05*math.Sin(float64(i)/10)
		bars[i] = utilities.OHLCVBar{
			Timestamp: int64(i+1) * 60_000,
			Open:      px - 0.2,
			High:      px + 0.5,
			Low:       px - 0.5,
			Close:     px,
			Volume:    1000 + 10*float64(i%7),
		}
	}
	return bars
}

func TestTickRecomputesSnapshotFromStreamedBars(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e := newExecutorTestEngine(t, fx)

	bars := streamedBars(300, 100)
	for _, bar := range bars {
		e.onKline("BTCUSDT", bar, true)
	}
	require.Len(t, e.bars, 300)
	require.Zero(t, e.snapshot.RSI, "snapshot starts empty")

	e.tick()

	assert.Greater(t, e.snapshot.RSI, 0.0)
	assert.Less(t, e.snapshot.RSI, 100.0)
	assert.Greater(t, e.snapshot.TrendEMA, 0.0)
	assert.Equal(t, bars[len(bars)-1].Close, e.snapshot.Price)
}

func TestTickSnapshotFollowsLatestKline(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e := newExecutorTestEngine(t, fx)

	for _, bar := range streamedBars(300, 100) {
		e.onKline("BTCUSDT", bar, true)
	}
	e.tick()
	first := e.snapshot

	next := utilities.OHLCVBar{
		Timestamp: 301 * 60_000,
		Open:      104,
		High:      112,
		Low:       103,
		Close:     111,
		Volume:    2500,
	}
	e.onKline("BTCUSDT", next, true)
	e.tick()

	assert.Equal(t, 111.0, e.snapshot.Price)
	assert.Greater(t, e.snapshot.RSI, first.RSI, "a strong up close lifts RSI within one tick")
}

func TestOnKlineBufferDedupAndTrim(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e := newExecutorTestEngine(t, fx)

	for _, bar := range streamedBars(candleHistoryLimit+50, 100) {
		e.onKline("BTCUSDT", bar, true)
	}
	assert.Len(t, e.bars, candleHistoryLimit)

	// A forming update for the newest bar replaces it in place.
	last := e.bars[len(e.bars)-1]
	last.Close = 42
	e.onKline("BTCUSDT", last, false)
	assert.Len(t, e.bars, candleHistoryLimit)
	assert.Equal(t, 42.0, e.bars[len(e.bars)-1].Close)

	// Bars for another symbol are ignored entirely.
	e.onKline("ETHUSDT", utilities.OHLCVBar{Timestamp: 1, Close: 9}, true)
	assert.Len(t, e.bars, candleHistoryLimit)
	assert.Equal(t, 42.0, e.currentPrice)
}
