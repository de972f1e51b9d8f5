// File: pkg/engine/position.go
package engine

import (
	"strconv"
)

// PositionState is the authoritative record of an open or flat position for
// one symbol. The four core fields (EntryPrice, AccumulatedQty,
// PositionOrders, HighestPrice) transition together: all zero when flat, all
// meaningful when open. Mutated only by the executor on fills and by
// reconciliation on desync; callers must hold the engine lock.
type PositionState struct {
	Symbol         string  `json:"symbol"`
	EntryPrice     float64 `json:"entry_price"`
	AccumulatedQty float64 `json:"accumulated_qty"`
	PositionOrders int     `json:"position_orders"`
	HighestPrice   float64 `json:"highest_price"`
	LastBuyPrice   float64 `json:"last_buy_price"`
	OpenPosition   bool    `json:"open_position"`
}

// ApplyBuyFill folds a BUY fill into the position using the volume-weighted
// average entry price.
func (p *PositionState) ApplyBuyFill(filledQty, fillPrice float64) {
	if filledQty <= 0 {
		return
	}
	newQty := p.AccumulatedQty + filledQty
	if newQty > 0 {
		p.EntryPrice = (p.AccumulatedQty*p.EntryPrice + filledQty*fillPrice) / newQty
	} else {
		p.EntryPrice = fillPrice
	}
	p.AccumulatedQty = newQty
	p.PositionOrders++
	p.LastBuyPrice = fillPrice
	p.OpenPosition = true
	if fillPrice > p.HighestPrice {
		p.HighestPrice = fillPrice
	}
}

// ApplySellFill reduces the position by a SELL fill and returns the realized
// PnL. When the residual notional drops below dustThreshold the position is
// fully reset, never leaving a stale partial record.
func (p *PositionState) ApplySellFill(executedQty, fillPrice, dustThreshold float64) (pnl float64, cleared bool) {
	if p.EntryPrice > 0 {
		pnl = (fillPrice - p.EntryPrice) * executedQty
	}

	p.AccumulatedQty -= executedQty
	if p.AccumulatedQty < 0 {
		p.AccumulatedQty = 0
	}

	if p.AccumulatedQty*fillPrice < dustThreshold {
		p.Reset()
		return pnl, true
	}
	return pnl, false
}

// ObservePrice raises HighestPrice on a new high while the position is open.
// Returns true when the field changed.
func (p *PositionState) ObservePrice(price float64) bool {
	if !p.OpenPosition || price <= p.HighestPrice {
		return false
	}
	p.HighestPrice = price
	return true
}

// Reset returns the position to its flat, all-zero state.
func (p *PositionState) Reset() {
	p.EntryPrice = 0
	p.AccumulatedQty = 0
	p.PositionOrders = 0
	p.HighestPrice = 0
	p.LastBuyPrice = 0
	p.OpenPosition = false
}

// --- Persistence mapping ---

func positionKey(field, symbol string) string {
	return field + "_" + symbol
}

// stateMap renders every position field for one batched store write.
func (p *PositionState) stateMap() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		positionKey("entry_price", p.Symbol):     f(p.EntryPrice),
		positionKey("accumulated_qty", p.Symbol): f(p.AccumulatedQty),
		positionKey("position_orders", p.Symbol): strconv.Itoa(p.PositionOrders),
		positionKey("highest_price", p.Symbol):   f(p.HighestPrice),
		positionKey("last_buy_price", p.Symbol):  f(p.LastBuyPrice),
		positionKey("open_position", p.Symbol):   strconv.FormatBool(p.OpenPosition),
	}
}

// stateGetter is the narrow read interface position loading needs.
type stateGetter interface {
	GetState(userID, key, def string) (string, error)
}

// loadPosition restores a persisted position for (userID, symbol); absent
// keys leave the all-zero flat state.
func loadPosition(st stateGetter, userID, symbol string) (PositionState, error) {
	pos := PositionState{Symbol: symbol}

	readFloat := func(field string) (float64, error) {
		raw, err := st.GetState(userID, positionKey(field, symbol), "0")
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(raw, 64)
	}

	var err error
	if pos.EntryPrice, err = readFloat("entry_price"); err != nil {
		return pos, err
	}
	if pos.AccumulatedQty, err = readFloat("accumulated_qty"); err != nil {
		return pos, err
	}
	if pos.HighestPrice, err = readFloat("highest_price"); err != nil {
		return pos, err
	}
	if pos.LastBuyPrice, err = readFloat("last_buy_price"); err != nil {
		return pos, err
	}

	rawOrders, err := st.GetState(userID, positionKey("position_orders", symbol), "0")
	if err != nil {
		return pos, err
	}
	if pos.PositionOrders, err = strconv.Atoi(rawOrders); err != nil {
		return pos, err
	}

	rawOpen, err := st.GetState(userID, positionKey("open_position", symbol), "false")
	if err != nil {
		return pos, err
	}
	pos.OpenPosition, _ = strconv.ParseBool(rawOpen)
	return pos, nil
}
