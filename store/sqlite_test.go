package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStateRoundTrip(t *testing.T) {
	st := newTestStore(t)

	v, err := st.GetState("u1", "entry_price_BTCUSDT", "0")
	require.NoError(t, err)
	assert.Equal(t, "0", v, "absent key returns the default")

	require.NoError(t, st.SetState("u1", "entry_price_BTCUSDT", "101.5"))
	v, err = st.GetState("u1", "entry_price_BTCUSDT", "0")
	require.NoError(t, err)
	assert.Equal(t, "101.5", v)

	require.NoError(t, st.SetState("u1", "entry_price_BTCUSDT", "99"))
	v, _ = st.GetState("u1", "entry_price_BTCUSDT", "0")
	assert.Equal(t, "99", v, "writes overwrite in place")
}

func TestStateIsScopedByUser(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetState("u1", "running", "true"))
	v, err := st.GetState("u2", "running", "false")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
}

func TestSetStateBatch(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetStateBatch("u1", map[string]string{
		"entry_price_BTCUSDT":     "100",
		"accumulated_qty_BTCUSDT": "2",
		"open_position_BTCUSDT":   "true",
	}))

	v, _ := st.GetState("u1", "accumulated_qty_BTCUSDT", "0")
	assert.Equal(t, "2", v)
	v, _ = st.GetState("u1", "open_position_BTCUSDT", "false")
	assert.Equal(t, "true", v)
}

func TestSettingsRoundTrip(t *testing.T) {
	st := newTestStore(t)

	all, err := st.AllSettings("u1")
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, st.SetSetting("u1", "buy_rsi", "25"))
	require.NoError(t, st.SetSetting("u1", "symbol", "ETHUSDT"))

	v, err := st.GetSetting("u1", "buy_rsi", "21")
	require.NoError(t, err)
	assert.Equal(t, "25", v)

	all, err = st.AllSettings("u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"buy_rsi": "25", "symbol": "ETHUSDT"}, all)
}

func TestTradeLedger(t *testing.T) {
	st := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendTrade("u1", TradeRecord{
			Time:        base.Add(time.Duration(i) * time.Minute),
			Side:        "BUY",
			StrategyTag: "RSI Rebound-BUY",
			Price:       float64(100 + i),
			Qty:         1,
			Symbol:      "BTCUSDT",
			TotalQuote:  float64(100 + i),
		}))
	}

	trades, err := st.ListTrades("u1", 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, 102.0, trades[0].Price, "most recent first")
	assert.Equal(t, 101.0, trades[1].Price)

	other, err := st.ListTrades("u2", 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, st.ResetTrades("u1"))
	trades, err = st.ListTrades("u1", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestCleanupOldTrades(t *testing.T) {
	st := newTestStore(t)

	old := TradeRecord{Time: time.Now().AddDate(0, 0, -40), Side: "SELL", StrategyTag: "MANUAL-SELL", Symbol: "BTCUSDT"}
	fresh := TradeRecord{Time: time.Now(), Side: "SELL", StrategyTag: "MANUAL-SELL", Symbol: "BTCUSDT"}
	require.NoError(t, st.AppendTrade("u1", old))
	require.NoError(t, st.AppendTrade("u1", fresh))

	require.NoError(t, st.CleanupOldTrades(time.Now().AddDate(0, 0, -30)))

	trades, err := st.ListTrades("u1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.WithinDuration(t, fresh.Time, trades[0].Time, time.Second)
}
