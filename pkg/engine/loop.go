// File: pkg/engine/loop.go
package engine

import (
	"time"

	"ratchet/pkg/exchange"
	"ratchet/strategy"
	"ratchet/utilities"
)

const (
	tickInterval           = 2 * time.Second
	marketRefreshInterval  = 30 * time.Second
	balanceRefreshInterval = 10 * time.Second
	candleHistoryLimit     = 1000
)

// run is the trading loop: a cooperative 2-second tick that refreshes market
// data and balances on their own cadences, reconciles against exchange truth,
// and evaluates the active strategy while RUNNING. It exits when the engine
// context is cancelled.
func (e *Engine) run() {
	defer e.loopWG.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var lastMarket, lastBalance time.Time
	for {
		select {
		case <-e.loopCtx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		if now.Sub(lastMarket) >= marketRefreshInterval {
			e.refreshMarketData()
			lastMarket = now
		}
		if now.Sub(lastBalance) >= balanceRefreshInterval {
			e.refreshBalances()
			e.reconcile()
			lastBalance = now
		}
		e.tick()
	}
}

// refreshMarketData backfills the candle buffer and the current price from
// REST without holding the lock, then installs both atomically. Between
// refreshes the kline stream keeps the buffer current and the tick recomputes
// indicators from it.
func (e *Engine) refreshMarketData() {
	e.mu.Lock()
	symbol := e.settings.Symbol
	timeframe := e.settings.Timeframe
	e.mu.Unlock()

	bars, err := e.exchange.GetHistoricalCandles(e.loopCtx, symbol, timeframe, candleHistoryLimit)
	if err != nil {
		e.logger.LogWarn("engine %s: refreshing candles for %s: %v", e.userID, symbol, err)
		return
	}
	price, err := e.exchange.GetCurrentPrice(e.loopCtx, symbol)
	if err != nil {
		e.logger.LogWarn("engine %s: refreshing price for %s: %v", e.userID, symbol, err)
		return
	}
	snap := strategy.ComputeSnapshot(bars, e.cfg.Indicators, price)

	e.mu.Lock()
	if e.settings.Symbol == symbol {
		e.bars = bars
		e.currentPrice = price
		e.snapshot = snap
	}
	e.mu.Unlock()
}

// refreshBalances re-reads the free balances for the symbol's base and quote
// assets.
func (e *Engine) refreshBalances() {
	e.mu.Lock()
	symbol := e.settings.Symbol
	e.mu.Unlock()

	rules, err := e.exchange.GetSymbolRules(e.loopCtx, symbol)
	if err != nil {
		e.logger.LogWarn("engine %s: fetching rules for balance refresh: %v", e.userID, err)
		return
	}
	quote, err := e.exchange.GetFreeBalance(e.loopCtx, rules.QuoteAsset)
	if err != nil {
		e.logger.LogWarn("engine %s: refreshing %s balance: %v", e.userID, rules.QuoteAsset, err)
		return
	}
	base, err := e.exchange.GetFreeBalance(e.loopCtx, rules.BaseAsset)
	if err != nil {
		e.logger.LogWarn("engine %s: refreshing %s balance: %v", e.userID, rules.BaseAsset, err)
		return
	}

	e.mu.Lock()
	if e.settings.Symbol == symbol {
		e.quoteBalance = quote
		e.baseBalance = base
	}
	e.mu.Unlock()
}

// tick is the per-cycle decision body. One direction per cycle: the sell path
// while holding, the buy path while flat. Order submission happens inside the
// same critical section so cycles never overlap for a symbol.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Trailing bookkeeping runs on every tick, RUNNING or not, so the high
	// water mark never misses a print.
	if e.pos.ObservePrice(e.currentPrice) {
		key := positionKey("highest_price", e.pos.Symbol)
		if err := e.store.SetState(e.userID, key, utilities.FormatQty(e.pos.HighestPrice, 8)); err != nil {
			e.logger.LogError("engine %s: persisting highest price: %v", e.userID, err)
		}
	}

	// Indicators are recomputed from the buffered candles every cycle, so the
	// strategy never evaluates a snapshot older than one tick. The REST refresh
	// only backfills the buffer.
	if len(e.bars) > 0 {
		e.snapshot = strategy.ComputeSnapshot(e.bars, e.cfg.Indicators, e.currentPrice)
	}

	if !e.running || e.currentPrice <= 0 {
		return
	}

	snap := e.snapshot
	snap.Price = e.currentPrice
	params := e.settings.StrategyParams()
	view := e.positionView()

	if e.pos.AccumulatedQty > 0 {
		sell, reason := e.strat.CheckSellSignal(snap, params, view)
		if !sell {
			return
		}
		e.logger.LogInfo("engine %s: %ssell signal%s from %s (%s) @ %.4f", e.userID,
			utilities.ColorRed, utilities.ColorReset, e.strat.Name(), reason, e.currentPrice)
		qty := e.sellQty()
		if _, err := e.executeSell(e.settings.Symbol, qty, e.currentPrice, e.strat.Name()+"-SELL"); err != nil {
			e.logger.LogError("engine %s: strategy sell failed: %v", e.userID, err)
			e.notifier.Notify(e.userID, "sell failed: "+err.Error())
		}
		return
	}

	if e.buyBlockedByExclusion() {
		return
	}
	if snap.IsLateral {
		return
	}
	if !e.strat.CheckBuySignal(snap, params, view) {
		return
	}
	e.logger.LogInfo("engine %s: %sbuy signal%s from %s @ %.4f", e.userID,
		utilities.ColorCyan, utilities.ColorReset, e.strat.Name(), e.currentPrice)
	if _, err := e.executeBuy(e.settings.Symbol, e.settings.TradeQty, e.settings.TradeQtyIsQuote, e.currentPrice, e.strat.Name()+"-BUY"); err != nil {
		e.logger.LogError("engine %s: strategy buy failed: %v", e.userID, err)
		e.notifier.Notify(e.userID, "buy failed: "+err.Error())
	}
}

// buyBlockedByExclusion suppresses buys while a meaningful balance exists in
// the configured mutually-exclusive asset. Caller holds the lock.
func (e *Engine) buyBlockedByExclusion() bool {
	if !e.settings.ExclusionEnabled || e.settings.ExclusionAsset == "" {
		return false
	}
	other, err := e.exchange.GetFreeBalance(e.loopCtx, e.settings.ExclusionAsset)
	if err != nil {
		e.logger.LogWarn("engine %s: mutual-exclusion balance check failed: %v", e.userID, err)
		return false
	}
	if other > e.settings.ExclusionThreshold {
		e.logger.LogInfo("engine %s: mutual exclusion: holding %s %s, clipping buy for %s",
			e.userID, utilities.FormatQty(other, 8), e.settings.ExclusionAsset, e.settings.Symbol)
		return true
	}
	return false
}

// startStreams opens the kline stream and the user-data stream for the
// current symbol and timeframe.
func (e *Engine) startStreams() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restartKlineStreamLocked()

	userStop, err := e.exchange.SubscribeAccountUpdates(e.loopCtx, e.onAccountUpdate)
	if err != nil {
		e.logger.LogWarn("engine %s: user-data stream unavailable: %v", e.userID, err)
		return
	}
	e.userStop = userStop
}

// restartKlineStreamLocked tears down any prior kline subscription before
// opening the new one, so a symbol or timeframe change never leaves two
// streams feeding mixed state. Caller holds the lock.
func (e *Engine) restartKlineStreamLocked() {
	if e.klineStop != nil {
		e.klineStop()
		e.klineStop = nil
	}

	symbol := e.settings.Symbol
	stop, err := e.exchange.SubscribeCandles(e.loopCtx, symbol, e.settings.Timeframe, func(bar utilities.OHLCVBar, closed bool) {
		e.onKline(symbol, bar, closed)
	})
	if err != nil {
		e.logger.LogWarn("engine %s: kline stream unavailable for %s: %v", e.userID, symbol, err)
		return
	}
	e.klineStop = stop
}

// onKline updates the live price and the rolling candle buffer. It never
// mutates position state; the tick owns that.
func (e *Engine) onKline(symbol string, bar utilities.OHLCVBar, closed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settings.Symbol != symbol {
		return
	}
	e.currentPrice = bar.Close

	n := len(e.bars)
	if n > 0 && e.bars[n-1].Timestamp == bar.Timestamp {
		e.bars[n-1] = bar
	} else if closed || n == 0 || bar.Timestamp > e.bars[n-1].Timestamp {
		e.bars = append(e.bars, bar)
		if len(e.bars) > candleHistoryLimit {
			e.bars = e.bars[len(e.bars)-candleHistoryLimit:]
		}
	}
}

// onAccountUpdate applies balance pushes from the user-data stream under the
// engine lock. Fills placed by the executor are already accounted for; fills
// from outside the engine are healed by reconciliation.
func (e *Engine) onAccountUpdate(update exchange.AccountUpdate) {
	if len(update.Balances) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rules, err := e.exchange.GetSymbolRules(e.loopCtx, e.settings.Symbol)
	if err != nil {
		return
	}
	if free, ok := update.Balances[rules.QuoteAsset]; ok {
		e.quoteBalance = free
	}
	if free, ok := update.Balances[rules.BaseAsset]; ok {
		e.baseBalance = free
	}
}
