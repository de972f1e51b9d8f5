package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ratchet/pkg/exchange"
	"ratchet/store"
	"ratchet/utilities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchange fills every market order at a fixed price.
type fakeExchange struct {
	rules     exchange.SymbolRules
	fillPrice float64
	submitted []exchange.Fill
	orderErr  error
}

func (f *fakeExchange) GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]utilities.OHLCVBar, error) {
	return nil, nil
}

func (f *fakeExchange) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f.fillPrice, nil
}

func (f *fakeExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	return 0, nil
}

func (f *fakeExchange) GetSymbolRules(ctx context.Context, symbol string) (exchange.SymbolRules, error) {
	return f.rules, nil
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, symbol, side string, quantity, quoteQuantity float64, clientOrderID string) (exchange.Fill, error) {
	if f.orderErr != nil {
		return exchange.Fill{}, f.orderErr
	}
	executed := quantity
	if executed <= 0 {
		executed = quoteQuantity / f.fillPrice
	}
	fill := exchange.Fill{
		OrderID:       "1",
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   executed,
		AvgPrice:      f.fillPrice,
		QuoteQty:      executed * f.fillPrice,
		Timestamp:     time.Now(),
	}
	f.submitted = append(f.submitted, fill)
	return fill, nil
}

func (f *fakeExchange) SubscribeCandles(ctx context.Context, symbol, interval string, onBar func(utilities.OHLCVBar, bool)) (func(), error) {
	return func() {}, nil
}

func (f *fakeExchange) SubscribeAccountUpdates(ctx context.Context, onUpdate func(exchange.AccountUpdate)) (func(), error) {
	return func() {}, nil
}

type fakeNotifier struct{ messages []string }

func (n *fakeNotifier) Notify(userID, message string) { n.messages = append(n.messages, message) }

func newExecutorTestEngine(t *testing.T, fx *fakeExchange) *Engine {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &Engine{
		userID:   "u1",
		cfg:      utilities.AppConfig{},
		exchange: fx,
		store:    st,
		notifier: &fakeNotifier{},
		logger:   utilities.NewLogger(utilities.Error),
		settings: DefaultSettings(utilities.TradingConfig{}),
		pos:      PositionState{Symbol: "BTCUSDT"},
		loopCtx:  context.Background(),
	}
}

func TestExecuteBuyInsufficientBalance(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 50000}
	e := newExecutorTestEngine(t, fx)
	e.quoteBalance = 10.0

	_, err := e.executeBuy("BTCUSDT", 35.0, true, 50000, "RSI Rebound-BUY")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// No order reached the exchange and no state moved.
	assert.Empty(t, fx.submitted)
	assert.False(t, e.pos.OpenPosition)
	assert.Equal(t, 10.0, e.quoteBalance)
}

func TestExecuteBuyAppliesFill(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 50000}
	e := newExecutorTestEngine(t, fx)
	e.quoteBalance = 100.0

	fill, err := e.executeBuy("BTCUSDT", 35.0, true, 50000, "RSI Rebound-BUY")
	require.NoError(t, err)
	require.Len(t, fx.submitted, 1)
	assert.NotEmpty(t, fx.submitted[0].ClientOrderID)

	assert.True(t, e.pos.OpenPosition)
	assert.InDelta(t, 50000.0, e.pos.EntryPrice, 1e-6)
	assert.InDelta(t, fill.ExecutedQty, e.pos.AccumulatedQty, 1e-9)
	assert.Equal(t, 1, e.pos.PositionOrders)
	assert.InDelta(t, 100.0-fill.QuoteQty, e.quoteBalance, 1e-9)

	trades, err := e.store.ListTrades("u1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, "RSI Rebound-BUY", trades[0].StrategyTag)

	restored, err := loadPosition(e.store, "u1", "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, restored.OpenPosition)
}

func TestExecuteBuyTestnetCommission(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e := newExecutorTestEngine(t, fx)
	e.cfg.Binance.Testnet = true
	e.settings.TestnetCommissionPct = 1.0
	e.quoteBalance = 100.0

	fill, err := e.executeBuy("BTCUSDT", 50.0, true, 100, "MANUAL-BUY")
	require.NoError(t, err)

	// Simulated commission comes off the filled quantity.
	assert.InDelta(t, fill.ExecutedQty*0.99, e.pos.AccumulatedQty, 1e-9)

	trades, err := e.store.ListTrades("u1", 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, fill.ExecutedQty*0.01*100, trades[0].Commission, 1e-9)
}

func TestExecuteSellClampsAndRealizesPnl(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 110}
	e := newExecutorTestEngine(t, fx)
	e.pos.ApplyBuyFill(1.0, 100.0)
	e.baseBalance = 0.5 // exchange truth holds less than the tracked quantity

	fill, err := e.executeSell("BTCUSDT", 1.0, 110, "MANUAL-SELL")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fill.ExecutedQty, 1e-9)

	trades, err := e.store.ListTrades("u1", 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, (110.0-100.0)*0.5, trades[0].Pnl, 1e-9)
}

func TestExecuteSellNothingHeld(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 110}
	e := newExecutorTestEngine(t, fx)
	e.baseBalance = 0

	_, err := e.executeSell("BTCUSDT", 1.0, 110, "MANUAL-SELL")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, fx.submitted)
}

func TestManualOpsRequirePrice(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 0}
	e := newExecutorTestEngine(t, fx)

	res := e.ManualBuy(0, true)
	assert.Equal(t, "error", res.Status)

	res = e.ManualSell(0)
	assert.Equal(t, "error", res.Status)
}

func TestNewEngineFallsBackOnMalformedStoredSettings(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.SetSetting("u9", "buy_rsi", "35"))
	require.NoError(t, st.SetSetting("u9", "stop_loss_pct", "not-a-number"))

	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e, err := NewEngine("u9", utilities.AppConfig{}, fx, st, &fakeNotifier{}, utilities.NewLogger(utilities.Error))
	require.NoError(t, err)
	t.Cleanup(e.shutdown)

	// One bad key rejects the whole stored batch, so no half-applied state.
	defaults := DefaultSettings(utilities.TradingConfig{})
	assert.Equal(t, defaults.BuyRSI, e.settings.BuyRSI)
	assert.Equal(t, defaults.StopLossPct, e.settings.StopLossPct)
}

func TestBacktestReplaysBufferedHistory(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e := newExecutorTestEngine(t, fx)

	_, err := e.Backtest("")
	assert.Error(t, err, "no candle history yet")

	e.bars = streamedBars(300, 100)
	res, err := e.Backtest("")
	require.NoError(t, err)
	assert.Equal(t, e.settings.Strategy, res.Variant)
	assert.GreaterOrEqual(t, res.TotalTrades, 0)

	res, err = e.Backtest("breakout_volume")
	require.NoError(t, err)
	assert.NotEqual(t, e.settings.Strategy, res.Variant)

	_, err = e.Backtest("no-such-strategy")
	assert.Error(t, err)
}

func TestComputeStats(t *testing.T) {
	fx := &fakeExchange{rules: btcRules(), fillPrice: 100}
	e := newExecutorTestEngine(t, fx)

	require.NoError(t, e.store.AppendTrade("u1", store.TradeRecord{Time: time.Now(), Side: "BUY", StrategyTag: "x", Symbol: "BTCUSDT"}))
	require.NoError(t, e.store.AppendTrade("u1", store.TradeRecord{Time: time.Now(), Side: "SELL", StrategyTag: "x", Symbol: "BTCUSDT", Pnl: 12.5}))
	require.NoError(t, e.store.AppendTrade("u1", store.TradeRecord{Time: time.Now(), Side: "SELL", StrategyTag: "x", Symbol: "BTCUSDT", Pnl: -2.5}))

	s := e.computeStats()
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, 10.0, s.NetPnl, 1e-9)
}
