// Package indicator computes smoothed averages over window close prices.
package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// DefaultPeriod is the EMA length used for every timeframe.
const DefaultPeriod = 12

// EMA tracks an exponential moving average per symbol. Before the first
// update the previous average of each symbol is the simple average of its
// last Period closes. Every update applies one smoothing step with the
// newest close.
type EMA struct {
	period int
	values []float64
	seeded bool
}

// NewEMA creates a tracker for n symbols.
func NewEMA(period, n int) *EMA {
	if period < 1 {
		period = DefaultPeriod
	}
	return &EMA{period: period, values: make([]float64, n)}
}

// Period returns the smoothing length.
func (e *EMA) Period() int { return e.period }

// Update consumes close-price rows (oldest first, one value per symbol)
// and returns the updated average per symbol.
func (e *EMA) Update(closes [][]float64) ([]float64, error) {
	if len(closes) == 0 {
		return nil, fmt.Errorf("ema update: no rows")
	}
	n := len(e.values)
	for i, row := range closes {
		if len(row) != n {
			return nil, fmt.Errorf("ema update: row %d has %d values, want %d", i, len(row), n)
		}
	}

	if !e.seeded {
		tail := closes[max(0, len(closes)-e.period):]
		for j := 0; j < n; j++ {
			e.values[j] = sma(column(tail, j))
		}
		e.seeded = true
	}

	k := 2.0 / float64(e.period+1)
	newest := closes[len(closes)-1]
	for j := 0; j < n; j++ {
		e.values[j] = (newest[j]-e.values[j])*k + e.values[j]
	}
	return e.Values(), nil
}

// Values returns a copy of the current averages.
func (e *EMA) Values() []float64 {
	return append([]float64(nil), e.values...)
}

// Reset forgets the seed.
func (e *EMA) Reset() {
	e.seeded = false
	for i := range e.values {
		e.values[i] = 0
	}
}

func sma(vals []float64) float64 {
	out := talib.Sma(vals, len(vals))
	return out[len(out)-1]
}

func column(rows [][]float64, j int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[j]
	}
	return out
}
