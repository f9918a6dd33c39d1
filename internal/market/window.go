// Package market keeps the bounded window of recent closed candles that the
// all-time-high reference is computed from.
package market

import (
	"sync"

	"github.com/shopspring/decimal"

	"dca-trading-btc-binance/internal/model"
)

// ATHLookback is how many closed candles the high-water mark covers.
const ATHLookback = 20

// CandleWindow is a FIFO ring of the last N closed candles. Only the
// orchestrator's candle path touches it.
type CandleWindow struct {
	mu      sync.RWMutex
	size    int
	candles []model.Candle
}

func NewCandleWindow(size int) *CandleWindow {
	if size <= 0 {
		size = ATHLookback
	}
	return &CandleWindow{
		size:    size,
		candles: make([]model.Candle, 0, size),
	}
}

// Push appends a closed candle, evicting the oldest when full. Unclosed
// candles are ignored.
func (w *CandleWindow) Push(c model.Candle) {
	if !c.IsClosed {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.candles) == w.size {
		copy(w.candles, w.candles[1:])
		w.candles = w.candles[:w.size-1]
	}
	w.candles = append(w.candles, c)
}

// CalculateATH returns the max high over the stored closed candles. Returns
// zero and false when the window is empty.
func (w *CandleWindow) CalculateATH() (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.candles) == 0 {
		return decimal.Zero, false
	}
	ath := w.candles[0].High
	for _, c := range w.candles[1:] {
		if c.High.GreaterThan(ath) {
			ath = c.High
		}
	}
	return ath, true
}

// Len returns the number of stored candles.
func (w *CandleWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.candles)
}

// Last returns the most recent closed candle.
func (w *CandleWindow) Last() (model.Candle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.candles) == 0 {
		return model.Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}
