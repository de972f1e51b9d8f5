// File: pkg/exchange/binance/stream.go
package binance

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"ratchet/pkg/exchange"
	"ratchet/utilities"

	gobinance "github.com/adshao/go-binance/v2"
)

// BackoffPolicy governs reconnect pacing for websocket subscriptions: start at
// Initial, multiply by Factor per consecutive failure up to Max, and reset to
// Initial after a connection survives StableAfter.
type BackoffPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
	StableAfter time.Duration
}

// DefaultBackoff is the reconnect policy used for all exchange subscriptions.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:     time.Second,
		Max:         60 * time.Second,
		Factor:      2.0,
		StableAfter: 5 * time.Minute,
	}
}

// Next returns the delay following the given one.
func (p BackoffPolicy) Next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Factor)
	if next > p.Max {
		next = p.Max
	}
	return next
}

// SubscribeCandles starts a supervised kline stream. The goroutine reconnects
// with backoff until the context is cancelled or the stop function is called.
func (a *Adapter) SubscribeCandles(ctx context.Context, symbol, interval string, onBar func(bar utilities.OHLCVBar, closed bool)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	handler := func(event *gobinance.WsKlineEvent) {
		k := event.Kline
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closeP, _ := strconv.ParseFloat(k.Close, 64)
		vol, _ := strconv.ParseFloat(k.Volume, 64)
		onBar(utilities.OHLCVBar{
			Timestamp: k.StartTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    vol,
		}, k.IsFinal)
	}

	go a.supervise(subCtx, "kline:"+symbol, func() (chan struct{}, chan struct{}, error) {
		return gobinance.WsKlineServe(symbol, interval, handler, a.wsErrHandler("kline", symbol))
	})

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// SubscribeAccountUpdates starts a supervised user-data stream. A fresh listen
// key is requested on every (re)connect and kept alive on a 30 minute cadence.
func (a *Adapter) SubscribeAccountUpdates(ctx context.Context, onUpdate func(exchange.AccountUpdate)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	handler := func(event *gobinance.WsUserDataEvent) {
		switch event.Event {
		case gobinance.UserDataEventTypeOutboundAccountPosition:
			balances := make(map[string]float64, len(event.AccountUpdate.WsAccountUpdates))
			for _, b := range event.AccountUpdate.WsAccountUpdates {
				free, err := strconv.ParseFloat(b.Free, 64)
				if err != nil {
					continue
				}
				balances[b.Asset] = free
			}
			onUpdate(exchange.AccountUpdate{Balances: balances})
		case gobinance.UserDataEventTypeExecutionReport:
			o := event.OrderUpdate
			if o.Status != "FILLED" {
				return
			}
			filled, _ := strconv.ParseFloat(o.FilledVolume, 64)
			quote, _ := strconv.ParseFloat(o.FilledQuoteVolume, 64)
			fee, _ := strconv.ParseFloat(o.FeeCost, 64)
			avg := 0.0
			if filled > 0 {
				avg = quote / filled
			}
			onUpdate(exchange.AccountUpdate{Order: &exchange.Fill{
				OrderID:       strconv.FormatInt(o.Id, 10),
				ClientOrderID: o.ClientOrderId,
				Symbol:        o.Symbol,
				Side:          o.Side,
				ExecutedQty:   filled,
				AvgPrice:      avg,
				QuoteQty:      quote,
				Commission:    fee,
				Timestamp:     time.UnixMilli(o.TransactionTime),
			}})
		}
	}

	go a.supervise(subCtx, "userdata", func() (chan struct{}, chan struct{}, error) {
		listenKey, err := a.client.NewStartUserStreamService().Do(subCtx)
		if err != nil {
			return nil, nil, classify(err)
		}
		go a.keepAliveListenKey(subCtx, listenKey)
		return gobinance.WsUserDataServe(listenKey, handler, a.wsErrHandler("userdata", ""))
	})

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// supervise runs one websocket connection at a time, reconnecting with the
// default backoff policy. Credential failures end supervision permanently.
func (a *Adapter) supervise(ctx context.Context, name string, connect func() (chan struct{}, chan struct{}, error)) {
	policy := DefaultBackoff()
	delay := policy.Initial

	for {
		if ctx.Err() != nil {
			return
		}

		connectedAt := time.Now()
		doneC, stopC, err := connect()
		if err != nil {
			if errors.Is(err, exchange.ErrCredential) {
				a.logger.LogError("stream %s: credential failure, not retrying: %v", name, err)
				return
			}
			a.logger.LogWarn("stream %s: connect failed, retrying in %s: %v", name, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = policy.Next(delay)
			continue
		}

		a.logger.LogInfo("stream %s: connected", name)
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			a.logger.LogInfo("stream %s: stopped", name)
			return
		case <-doneC:
			if time.Since(connectedAt) >= policy.StableAfter {
				delay = policy.Initial
			}
			a.logger.LogWarn("stream %s: disconnected, reconnecting in %s", name, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = policy.Next(delay)
		}
	}
}

func (a *Adapter) keepAliveListenKey(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				a.logger.LogWarn("userdata stream: keepalive failed: %v", err)
			}
		}
	}
}

func (a *Adapter) wsErrHandler(kind, symbol string) gobinance.ErrHandler {
	return func(err error) {
		a.logger.LogWarn("stream %s %s: %v", kind, symbol, err)
	}
}
