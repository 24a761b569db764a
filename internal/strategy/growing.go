package strategy

import "barsim/internal/domain"

// GrowingCandle approximates the still-forming bars of one multi-minute
// timeframe from consecutive 1-minute bars, one cell per symbol.
type GrowingCandle struct {
	period  int
	cells   []domain.OHLCV
	notion  []float64
	started bool
}

// NewGrowingCandle tracks n symbols for a period-minute timeframe.
func NewGrowingCandle(period, n int) *GrowingCandle {
	return &GrowingCandle{
		period: period,
		cells:  make([]domain.OHLCV, n),
		notion: make([]float64, n),
	}
}

// Update folds the 1-minute bars of the tick at minute (of the hour) into the
// candle and returns its current state. The first minute of a bar
// (minute % period == 1) starts a fresh candle, as does the first update
// after a mid-bar start. Otherwise open is held, high and low are extended,
// volume and trade count accumulate and close follows the newest bar.
func (g *GrowingCandle) Update(minute int, bars []domain.OHLCV) []domain.OHLCV {
	fresh := !g.started || minute%g.period == 1
	for j, b := range bars {
		c := &g.cells[j]
		if fresh {
			*c = b
			g.notion[j] = b.VWAP * b.Volume
			continue
		}
		c.High = max(c.High, b.High)
		c.Low = min(c.Low, b.Low)
		c.Close = b.Close
		c.Volume += b.Volume
		c.TradeCount += b.TradeCount
		g.notion[j] += b.VWAP * b.Volume
		if c.Volume > 0 {
			c.VWAP = g.notion[j] / c.Volume
		} else {
			c.VWAP = b.VWAP
		}
	}
	g.started = true
	return append([]domain.OHLCV(nil), g.cells...)
}

// Started reports whether the candle has seen a bar since the last reset.
func (g *GrowingCandle) Started() bool { return g.started }

// Reset forgets the in-progress candle.
func (g *GrowingCandle) Reset() { g.started = false }
