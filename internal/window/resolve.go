package window

import (
	"barsim/internal/domain"
	"barsim/internal/repair"
)

// cell is one (slot, symbol) position before resolution.
type cell struct {
	v     domain.OHLCV
	known bool
}

// resolve fills every unknown or zero value of a chronological grid. For
// each symbol and field independently a missing value takes the nearest
// earlier resolved value, else the nearest later non-zero value, else the
// reference value.
func resolve(grid [][]cell, symbols []string, ref repair.ReferenceReader) []domain.Row {
	rows := make([]domain.Row, len(grid))
	for i := range grid {
		rows[i].Cells = make([]domain.OHLCV, len(symbols))
		for j := range symbols {
			if grid[i][j].known {
				rows[i].Cells[j] = grid[i][j].v
			}
		}
	}

	for j, sym := range symbols {
		fallback, _ := ref.Get(sym)
		for _, f := range domain.Fields {
			for i := range rows {
				if rows[i].Cells[j].Get(f) != 0 {
					continue
				}
				rows[i].Cells[j].Set(f, nearest(rows, grid, i, j, f, fallback.Get(f)))
			}
		}
		for i := range rows {
			if !grid[i][j].known {
				rows[i].Cells[j].TradeCount = fallback.TradeCount
			}
		}
	}
	return rows
}

func nearest(rows []domain.Row, grid [][]cell, i, j int, f domain.Field, fallback float64) float64 {
	for k := i - 1; k >= 0; k-- {
		if v := rows[k].Cells[j].Get(f); v != 0 {
			return v
		}
	}
	for k := i + 1; k < len(rows); k++ {
		if !grid[k][j].known {
			continue
		}
		if v := grid[k][j].v.Get(f); v != 0 {
			return v
		}
	}
	return fallback
}
