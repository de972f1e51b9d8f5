// File: pkg/engine/reconcile.go
package engine

import "ratchet/utilities"

// reconcile heals desync between local bookkeeping and exchange truth. If the
// engine believes a position is open but the free balance is worth less than
// the dust threshold, something sold it out from under us (a manual trade on
// the exchange UI, a missed fill event) and the position is force-reset.
// Exchange truth always wins. Idempotent: a second pass with no intervening
// fills changes nothing. Caller holds the lock.
func (e *Engine) reconcileLocked() {
	if e.currentPrice <= 0 {
		return
	}
	notional := e.baseBalance * e.currentPrice

	if e.pos.AccumulatedQty > 0 && notional < e.settings.DustThreshold {
		e.logger.LogWarn("engine %s: tracked position for %s (qty %s) has no backing balance (notional %.4f), resetting",
			e.userID, e.pos.Symbol, utilities.FormatQty(e.pos.AccumulatedQty, 8), notional)
		e.pos.Reset()
		if err := e.persistPosition(); err != nil {
			e.logger.LogError("engine %s: persisting reconciled position: %v", e.userID, err)
		}
		return
	}

	// The inverse desync (balance on the exchange, nothing tracked locally)
	// is not healed automatically; buying into it would double-count. Flag it
	// once so the user can resolve it via manual sell or reset.
	if e.pos.AccumulatedQty == 0 && notional >= e.settings.DustThreshold && !e.orphanWarned {
		e.orphanWarned = true
		e.logger.LogWarn("engine %s: untracked %s balance worth %.2f found; not managed until bought or reset through the engine",
			e.userID, e.pos.Symbol, notional)
	}
}

func (e *Engine) reconcile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconcileLocked()
}
