// File: pkg/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ratchet/pkg/exchange"
	"ratchet/store"
	"ratchet/strategy"
	"ratchet/utilities"
)

// Notifier delivers best-effort chat alerts. Implementations must not block
// the caller.
type Notifier interface {
	Notify(userID, message string)
}

// OpResult is the structured outcome of every engine operation. Operations
// never panic or return errors past this boundary.
type OpResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(message string) OpResult { return OpResult{Status: "success", Message: message} }
func failure(message string) OpResult { return OpResult{Status: "error", Message: message} }

// Status is the full snapshot returned by GetStatus.
type Status struct {
	Running      bool               `json:"running"`
	Symbol       string             `json:"symbol"`
	Strategy     string             `json:"strategy"`
	Price        float64            `json:"price"`
	QuoteBalance float64            `json:"quote_balance"`
	BaseBalance  float64            `json:"base_balance"`
	Position     PositionState      `json:"position"`
	Indicators   strategy.Snapshot  `json:"indicators"`
	RecentTrades []store.TradeRecord `json:"recent_trades"`
	Stats        Stats              `json:"stats"`
}

// Stats are ledger-derived aggregate results.
type Stats struct {
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
	NetPnl  float64 `json:"net_pnl"`
}

// Engine owns the full position/order lifecycle for one user session. All
// state access is serialized by mu: the trading loop tick, manual operations,
// settings updates, and stream callbacks each hold it for the duration of
// their read-modify-write.
type Engine struct {
	userID   string
	cfg      utilities.AppConfig
	exchange exchange.Exchange
	store    *store.SQLiteStore
	notifier Notifier
	logger   *utilities.Logger

	mu       sync.Mutex
	settings Settings
	pos      PositionState
	strat    strategy.Strategy

	running      bool
	currentPrice float64
	quoteBalance float64
	baseBalance  float64
	snapshot     strategy.Snapshot
	bars         []utilities.OHLCVBar
	orphanWarned bool

	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup

	klineStop func()
	userStop  func()
}

// NewEngine builds an engine for one user, restoring persisted settings and
// position state. If the session was RUNNING before a restart it resumes
// automatically.
func NewEngine(userID string, cfg utilities.AppConfig, ex exchange.Exchange, st *store.SQLiteStore, notifier Notifier, logger *utilities.Logger) (*Engine, error) {
	settings := DefaultSettings(cfg.Trading)
	stored, err := st.AllSettings(userID)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		// Apply onto a scratch copy so a malformed stored key cannot leave the
		// session with half of its settings overridden.
		applied := settings
		if _, err := applied.Apply(stored); err != nil {
			logger.LogWarn("engine %s: ignoring malformed stored settings: %v", userID, err)
		} else {
			settings = applied
		}
	}

	pos, err := loadPosition(st, userID, settings.Symbol)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		userID:     userID,
		cfg:        cfg,
		exchange:   ex,
		store:      st,
		notifier:   notifier,
		logger:     logger,
		settings:   settings,
		pos:        pos,
		strat:      strategy.New(settings.Strategy),
		loopCtx:    ctx,
		loopCancel: cancel,
	}

	e.loopWG.Add(1)
	go e.run()
	e.startStreams()

	wasRunning, _ := st.GetState(userID, "running", "false")
	if wasRunning == "true" {
		e.mu.Lock()
		e.running = true
		e.mu.Unlock()
		logger.LogInfo("engine %s: resuming RUNNING session for %s", userID, settings.Symbol)
	}
	return e, nil
}

// Start transitions the session to RUNNING and persists the flag so it
// survives a process restart.
func (e *Engine) Start() OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return success("already running")
	}
	e.running = true
	if err := e.store.SetState(e.userID, "running", "true"); err != nil {
		e.logger.LogError("engine %s: persisting running flag: %v", e.userID, err)
	}
	e.logger.LogInfo("engine %s: started (%s, %s)", e.userID, e.settings.Symbol, e.strat.Name())
	return success("bot started")
}

// Stop clears the RUNNING flag. The market-data feed stays up so indicators
// remain fresh.
func (e *Engine) Stop() OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return success("already stopped")
	}
	e.running = false
	if err := e.store.SetState(e.userID, "running", "false"); err != nil {
		e.logger.LogError("engine %s: persisting running flag: %v", e.userID, err)
	}
	e.logger.LogInfo("engine %s: stopped", e.userID)
	return success("bot stopped")
}

// Disconnect stops the session, tears down the data feeds, and ends the
// trading loop. Used on logout; the engine cannot be restarted afterwards.
func (e *Engine) Disconnect() OpResult {
	e.Stop()
	e.shutdown()
	return success("disconnected")
}

// shutdown tears down feeds and joins the loop without touching the persisted
// RUNNING flag, so a process restart can resume the session. Used on process
// exit.
func (e *Engine) shutdown() {
	e.mu.Lock()
	klineStop, userStop := e.klineStop, e.userStop
	e.klineStop, e.userStop = nil, nil
	e.mu.Unlock()

	if klineStop != nil {
		klineStop()
	}
	if userStop != nil {
		userStop()
	}
	e.loopCancel()

	done := make(chan struct{})
	go func() {
		e.loopWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * tickInterval):
		e.logger.LogWarn("engine %s: trading loop did not exit within the join timeout", e.userID)
	}
}

// ManualBuy places a buy through the same validation, normalization, and
// persistence path as strategy-driven buys. qty <= 0 uses the configured
// trade quantity.
func (e *Engine) ManualBuy(qty float64, isQuote bool) OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentPrice <= 0 {
		return failure("current price unknown; try again shortly")
	}
	if qty <= 0 {
		qty = e.settings.TradeQty
		isQuote = e.settings.TradeQtyIsQuote
	}
	fill, err := e.executeBuy(e.settings.Symbol, qty, isQuote, e.currentPrice, "MANUAL-BUY")
	if err != nil {
		return failure(err.Error())
	}
	return success("bought " + utilities.FormatQty(fill.ExecutedQty, 8) + " @ " + utilities.FormatQty(fill.AvgPrice, 8))
}

// ManualSell places a sell through the shared executor path. qty <= 0 sells
// per the configured sell mode.
func (e *Engine) ManualSell(qty float64) OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentPrice <= 0 {
		return failure("current price unknown; try again shortly")
	}
	if qty <= 0 {
		qty = e.sellQty()
	}
	if qty <= 0 {
		return failure("nothing to sell")
	}
	fill, err := e.executeSell(e.settings.Symbol, qty, e.currentPrice, "MANUAL-SELL")
	if err != nil {
		return failure(err.Error())
	}
	return success("sold " + utilities.FormatQty(fill.ExecutedQty, 8) + " @ " + utilities.FormatQty(fill.AvgPrice, 8))
}

// UpdateSettings coerces and applies a string-keyed settings map, persists the
// changed keys, and re-resolves the strategy and position scope as needed.
func (e *Engine) UpdateSettings(values map[string]string) OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldSymbol := e.settings.Symbol
	oldTimeframe := e.settings.Timeframe

	updated := e.settings
	changed, err := updated.Apply(values)
	if err != nil {
		return failure(err.Error())
	}
	e.settings = updated
	e.strat = strategy.New(updated.Strategy)

	persisted := updated.Map()
	for _, key := range changed {
		if err := e.store.SetSetting(e.userID, key, persisted[key]); err != nil {
			e.logger.LogError("engine %s: persisting setting %s: %v", e.userID, key, err)
		}
	}

	if updated.Symbol != oldSymbol {
		pos, err := loadPosition(e.store, e.userID, updated.Symbol)
		if err != nil {
			e.logger.LogError("engine %s: loading position for %s: %v", e.userID, updated.Symbol, err)
			pos = PositionState{Symbol: updated.Symbol}
		}
		e.pos = pos
		e.currentPrice = 0
		e.bars = nil
		e.orphanWarned = false
	}
	if updated.Symbol != oldSymbol || updated.Timeframe != oldTimeframe {
		e.restartKlineStreamLocked()
	}

	return success("updated " + strconv.Itoa(len(changed)) + " setting(s)")
}

// ResetPosition force-clears the tracked position without trading.
func (e *Engine) ResetPosition() OpResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pos.Reset()
	if err := e.persistPosition(); err != nil {
		return failure("position reset but not persisted: " + err.Error())
	}
	e.logger.LogInfo("engine %s: position state reset for %s", e.userID, e.pos.Symbol)
	return success("position reset")
}

// ResetPnl clears the trade ledger and its derived statistics.
func (e *Engine) ResetPnl() OpResult {
	if err := e.store.ResetTrades(e.userID); err != nil {
		return failure("failed to reset trade history: " + err.Error())
	}
	return success("trade history and PnL reset")
}

// GetStatus assembles the full session snapshot.
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	st := Status{
		Running:      e.running,
		Symbol:       e.settings.Symbol,
		Strategy:     e.strat.Name(),
		Price:        e.currentPrice,
		QuoteBalance: e.quoteBalance,
		BaseBalance:  e.baseBalance,
		Position:     e.pos,
		Indicators:   e.snapshot,
	}
	e.mu.Unlock()

	trades, err := e.store.ListTrades(e.userID, 10)
	if err != nil {
		e.logger.LogWarn("engine %s: listing trades: %v", e.userID, err)
	}
	st.RecentTrades = trades
	st.Stats = e.computeStats()
	return st
}

// Backtest replays the buffered candle history through a strategy variant
// using the session's current parameters. An empty variant name runs the
// active strategy.
func (e *Engine) Backtest(variantName string) (strategy.BacktestResult, error) {
	e.mu.Lock()
	variant := e.settings.Strategy
	bars := make([]utilities.OHLCVBar, len(e.bars))
	copy(bars, e.bars)
	params := e.settings.StrategyParams()
	indicators := e.cfg.Indicators
	e.mu.Unlock()

	if variantName != "" {
		v, err := strategy.ResolveVariant(variantName)
		if err != nil {
			return strategy.BacktestResult{}, err
		}
		variant = v
	}
	if len(bars) == 0 {
		return strategy.BacktestResult{}, fmt.Errorf("no candle history available yet")
	}
	return strategy.RunBacktest(bars, indicators, params, variant), nil
}

// computeStats derives win/loss counts and net PnL from the sell-side ledger.
func (e *Engine) computeStats() Stats {
	trades, err := e.store.ListTrades(e.userID, 1000)
	if err != nil {
		return Stats{}
	}
	var s Stats
	for _, t := range trades {
		s.NetPnl += t.Pnl
		if !strings.HasPrefix(t.Side, "SELL") {
			continue
		}
		if t.Pnl >= 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if total := s.Wins + s.Losses; total > 0 {
		s.WinRate = 100.0 * float64(s.Wins) / float64(total)
	}
	return s
}

// sellQty returns the quantity a sell signal should move, honoring the sell
// mode. Caller holds the lock.
func (e *Engine) sellQty() float64 {
	if e.settings.SellMode == "full" {
		return e.baseBalance
	}
	step := e.settings.TradeQty
	if e.settings.TradeQtyIsQuote {
		if e.currentPrice <= 0 {
			return 0
		}
		step = e.settings.TradeQty / e.currentPrice
	}
	if step > e.baseBalance {
		return e.baseBalance
	}
	return step
}

func (e *Engine) persistPosition() error {
	return e.store.SetStateBatch(e.userID, e.pos.stateMap())
}

func (e *Engine) positionView() strategy.PositionView {
	return strategy.PositionView{
		Open:           e.pos.OpenPosition,
		EntryPrice:     e.pos.EntryPrice,
		AccumulatedQty: e.pos.AccumulatedQty,
		HighestPrice:   e.pos.HighestPrice,
		Orders:         e.pos.PositionOrders,
	}
}
