package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBuyFillWeightedEntry(t *testing.T) {
	p := PositionState{Symbol: "BTCUSDT"}

	p.ApplyBuyFill(1.0, 100.0)
	assert.InDelta(t, 100.0, p.EntryPrice, 1e-8)
	assert.InDelta(t, 1.0, p.AccumulatedQty, 1e-8)
	assert.Equal(t, 1, p.PositionOrders)
	assert.True(t, p.OpenPosition)
	assert.Equal(t, 100.0, p.HighestPrice)
	assert.Equal(t, 100.0, p.LastBuyPrice)

	// (1*100 + 3*80) / 4 = 85
	p.ApplyBuyFill(3.0, 80.0)
	assert.InDelta(t, 85.0, p.EntryPrice, 1e-8)
	assert.InDelta(t, 4.0, p.AccumulatedQty, 1e-8)
	assert.Equal(t, 2, p.PositionOrders)
	assert.Equal(t, 80.0, p.LastBuyPrice)
	// The high water mark never drops on a cheaper fill.
	assert.Equal(t, 100.0, p.HighestPrice)
}

func TestApplyBuyFillIgnoresEmptyFill(t *testing.T) {
	p := PositionState{Symbol: "BTCUSDT"}
	p.ApplyBuyFill(0, 100.0)
	assert.False(t, p.OpenPosition)
	assert.Zero(t, p.PositionOrders)
}

func TestApplySellFillDustReset(t *testing.T) {
	// A sell that leaves 0.40 quote units of residue (below the 1.0 dust
	// threshold) must clear every field together.
	p := PositionState{Symbol: "BTCUSDT"}
	p.ApplyBuyFill(2.0, 1.0)
	p.HighestPrice = 1.2

	pnl, cleared := p.ApplySellFill(1.6, 1.0, 1.0)
	assert.True(t, cleared)
	assert.InDelta(t, 0.0, pnl, 1e-8)

	assert.Zero(t, p.EntryPrice)
	assert.Zero(t, p.AccumulatedQty)
	assert.Zero(t, p.PositionOrders)
	assert.Zero(t, p.HighestPrice)
	assert.Zero(t, p.LastBuyPrice)
	assert.False(t, p.OpenPosition)
}

func TestApplySellFillPartial(t *testing.T) {
	p := PositionState{Symbol: "BTCUSDT"}
	p.ApplyBuyFill(10.0, 100.0)

	pnl, cleared := p.ApplySellFill(4.0, 110.0, 1.0)
	assert.False(t, cleared)
	assert.InDelta(t, 40.0, pnl, 1e-8)
	assert.InDelta(t, 6.0, p.AccumulatedQty, 1e-8)
	assert.Equal(t, 100.0, p.EntryPrice)
	assert.True(t, p.OpenPosition)
}

func TestApplySellFillOversellFloorsAtZero(t *testing.T) {
	p := PositionState{Symbol: "BTCUSDT"}
	p.ApplyBuyFill(1.0, 100.0)

	_, cleared := p.ApplySellFill(5.0, 100.0, 1.0)
	assert.True(t, cleared)
	assert.Zero(t, p.AccumulatedQty)
}

func TestObservePriceMonotonic(t *testing.T) {
	p := PositionState{Symbol: "BTCUSDT"}
	p.ApplyBuyFill(1.0, 100.0)

	assert.True(t, p.ObservePrice(105.0))
	assert.Equal(t, 105.0, p.HighestPrice)

	// Lower prints never lower the mark.
	assert.False(t, p.ObservePrice(101.0))
	assert.Equal(t, 105.0, p.HighestPrice)

	assert.False(t, p.ObservePrice(105.0))

	p.Reset()
	assert.False(t, p.ObservePrice(200.0), "flat positions do not track highs")
	assert.Zero(t, p.HighestPrice)
}

type mapStateGetter map[string]string

func (m mapStateGetter) GetState(userID, key, def string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return def, nil
}

func TestPositionPersistenceRoundTrip(t *testing.T) {
	p := PositionState{Symbol: "ETHUSDT"}
	p.ApplyBuyFill(2.5, 1850.75)
	p.ObservePrice(1900.25)

	stored := mapStateGetter(p.stateMap())
	restored, err := loadPosition(stored, "u1", "ETHUSDT")
	require.NoError(t, err)

	assert.Equal(t, p.EntryPrice, restored.EntryPrice)
	assert.Equal(t, p.AccumulatedQty, restored.AccumulatedQty)
	assert.Equal(t, p.PositionOrders, restored.PositionOrders)
	assert.Equal(t, p.HighestPrice, restored.HighestPrice)
	assert.Equal(t, p.LastBuyPrice, restored.LastBuyPrice)
	assert.Equal(t, p.OpenPosition, restored.OpenPosition)
}

func TestLoadPositionDefaultsWhenAbsent(t *testing.T) {
	restored, err := loadPosition(mapStateGetter{}, "u1", "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, PositionState{Symbol: "BTCUSDT"}, restored)
}
