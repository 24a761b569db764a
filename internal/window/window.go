// Package window assembles fixed-size, gap-free multi-asset windows of bars
// from a sparse provider feed.
package window

import (
	"time"

	"barsim/internal/domain"
)

// Window is a rolling block of limit rows for one timeframe, oldest first.
// Every row holds one resolved cell per symbol, in Symbols order.
type Window struct {
	Timeframe domain.Timeframe
	Symbols   []string
	Rows      []domain.Row
}

// Len returns the number of rows.
func (w *Window) Len() int { return len(w.Rows) }

// Times returns the row time labels.
func (w *Window) Times() []time.Time {
	out := make([]time.Time, len(w.Rows))
	for i, r := range w.Rows {
		out[i] = r.Time
	}
	return out
}

// Series returns field f as rows x symbols.
func (w *Window) Series(f domain.Field) [][]float64 {
	out := make([][]float64, len(w.Rows))
	for i, r := range w.Rows {
		vals := make([]float64, len(r.Cells))
		for j, c := range r.Cells {
			vals[j] = c.Get(f)
		}
		out[i] = vals
	}
	return out
}

// Column returns field f of one symbol, oldest first.
func (w *Window) Column(symbol int, f domain.Field) []float64 {
	out := make([]float64, len(w.Rows))
	for i, r := range w.Rows {
		out[i] = r.Cells[symbol].Get(f)
	}
	return out
}

// Last returns the newest row.
func (w *Window) Last() domain.Row {
	if len(w.Rows) == 0 {
		return domain.Row{}
	}
	return w.Rows[len(w.Rows)-1]
}
