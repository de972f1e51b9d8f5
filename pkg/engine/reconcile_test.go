package engine

import (
	"path/filepath"
	"testing"

	"ratchet/store"
	"ratchet/utilities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconcileTestEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &Engine{
		userID:   "u1",
		store:    st,
		logger:   utilities.NewLogger(utilities.Error),
		settings: DefaultSettings(utilities.TradingConfig{}),
		pos:      PositionState{Symbol: "BTCUSDT"},
	}
}

func TestReconcileHealsGhostPosition(t *testing.T) {
	e := newReconcileTestEngine(t)
	e.pos.ApplyBuyFill(1.0, 100.0)
	e.currentPrice = 100.0
	e.baseBalance = 0.005 // worth 0.5, below the 1.0 dust threshold

	e.reconcileLocked()

	assert.Zero(t, e.pos.AccumulatedQty)
	assert.Zero(t, e.pos.EntryPrice)
	assert.False(t, e.pos.OpenPosition)

	// The reset reaches the store, so a restart stays healed.
	restored, err := loadPosition(e.store, "u1", "BTCUSDT")
	require.NoError(t, err)
	assert.Zero(t, restored.AccumulatedQty)
	assert.False(t, restored.OpenPosition)
}

func TestReconcileLeavesBackedPositionAlone(t *testing.T) {
	e := newReconcileTestEngine(t)
	e.pos.ApplyBuyFill(1.0, 100.0)
	e.currentPrice = 100.0
	e.baseBalance = 1.0

	e.reconcileLocked()

	assert.Equal(t, 1.0, e.pos.AccumulatedQty)
	assert.True(t, e.pos.OpenPosition)
}

func TestReconcileIsIdempotent(t *testing.T) {
	e := newReconcileTestEngine(t)
	e.pos.ApplyBuyFill(1.0, 100.0)
	e.currentPrice = 100.0
	e.baseBalance = 0

	e.reconcileLocked()
	after := e.pos

	e.reconcileLocked()
	assert.Equal(t, after, e.pos)
}

func TestReconcileSkipsWithoutPrice(t *testing.T) {
	e := newReconcileTestEngine(t)
	e.pos.ApplyBuyFill(1.0, 100.0)
	e.currentPrice = 0
	e.baseBalance = 0

	// No price means no notional judgment; the position must survive.
	e.reconcileLocked()
	assert.Equal(t, 1.0, e.pos.AccumulatedQty)
}
