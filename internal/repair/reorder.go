// Package repair turns raw provider bar tables into dense, symbol-ordered
// tables: regrouping interleaved rows, filling missing time slots and
// synthesizing runs for symbols the provider never returned.
package repair

import (
	"barsim/internal/domain"
)

// Reorder regroups bars so each requested symbol's rows are contiguous, in
// the order of symbols, keeping each symbol's rows in received order. It is
// a stable partition, not a sort. A bar whose symbol was not requested makes
// the table malformed.
func Reorder(bars []domain.Bar, symbols []string) ([]domain.Bar, error) {
	index := make(map[string]int, len(symbols))
	for i, s := range symbols {
		index[s] = i
	}

	groups := make([][]domain.Bar, len(symbols))
	for _, b := range bars {
		i, ok := index[b.Symbol]
		if !ok {
			return nil, domain.MalformedTableError(b.Symbol, "was not requested")
		}
		groups[i] = append(groups[i], b)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}

// SplitRuns cuts a table into maximal runs of consecutive same-symbol rows.
func SplitRuns(bars []domain.Bar) [][]domain.Bar {
	var runs [][]domain.Bar
	begin := 0
	for i := 1; i <= len(bars); i++ {
		if i == len(bars) || bars[i].Symbol != bars[begin].Symbol {
			runs = append(runs, bars[begin:i])
			begin = i
		}
	}
	return runs
}
