package repair

import (
	"fmt"
	"time"

	"barsim/internal/domain"
)

// ReferenceReader exposes the last known values per symbol.
type ReferenceReader interface {
	Get(symbol string) (domain.OHLCV, bool)
}

// Backfill inserts a run for every requested symbol missing from a reordered
// table so the result holds exactly one run per symbol, in symbols order.
//
// With limit == 1 a missing symbol gets one row per step from start through
// end, every row copied from the reference state. For larger limits it gets a
// single placeholder row at start, resolved later by nearest-neighbour fill.
func Backfill(bars []domain.Bar, symbols []string, ref ReferenceReader, start, end time.Time, step time.Duration, limit int) ([]domain.Bar, error) {
	start, end = start.UTC(), end.UTC()

	out := make([]domain.Bar, 0, len(bars)+len(symbols))
	next := 0
	synth := func(symbol string) error {
		rows, err := syntheticRun(symbol, ref, start, end, step, limit)
		if err != nil {
			return err
		}
		out = append(out, rows...)
		return nil
	}

	for _, run := range SplitRuns(bars) {
		symbol := run[0].Symbol
		for next < len(symbols) && symbols[next] != symbol {
			if err := synth(symbols[next]); err != nil {
				return nil, err
			}
			next++
		}
		if next == len(symbols) {
			return nil, domain.MalformedTableError(symbol, "is out of requested order or repeated")
		}
		out = append(out, run...)
		next++
	}
	for ; next < len(symbols); next++ {
		if err := synth(symbols[next]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func syntheticRun(symbol string, ref ReferenceReader, start, end time.Time, step time.Duration, limit int) ([]domain.Bar, error) {
	if step <= 0 {
		return nil, fmt.Errorf("backfilling %s: non-positive step %s", symbol, step)
	}
	if limit != 1 {
		return []domain.Bar{{Symbol: symbol, Timestamp: start, Placeholder: true}}, nil
	}
	v, ok := ref.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("backfilling %s: %w", symbol, domain.ErrNoReference)
	}
	var rows []domain.Bar
	for t := start; !t.After(end); t = t.Add(step) {
		rows = append(rows, domain.Bar{
			Symbol:     symbol,
			Timestamp:  t,
			Open:       v.Open,
			High:       v.High,
			Low:        v.Low,
			Close:      v.Close,
			Volume:     v.Volume,
			TradeCount: v.TradeCount,
			VWAP:       v.VWAP,
			Synthetic:  true,
		})
	}
	return rows, nil
}
