package window

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
	"barsim/internal/metrics"
	"barsim/internal/repair"
)

// SinglePassLimit is the largest window assembled from a single provider
// query. Larger windows page backwards through history.
const SinglePassLimit = 3

// Assembler builds windows for a fixed, sorted symbol set. It owns writes to
// the reference state.
type Assembler struct {
	source   feed.BarSource
	symbols  []string
	ref      *domain.Reference
	maxPages int
	metrics  *metrics.Recorder
	log      *slog.Logger
}

// NewAssembler creates an assembler. symbols must already be sorted.
func NewAssembler(source feed.BarSource, symbols []string, ref *domain.Reference, rec *metrics.Recorder) *Assembler {
	return &Assembler{
		source:  source,
		symbols: symbols,
		ref:     ref,
		metrics: rec,
		log:     slog.Default().With("component", "assembler"),
	}
}

// SetMaxPages caps the provider pages one multi-pass assembly may request.
// Zero restores the default of limit+1.
func (a *Assembler) SetMaxPages(n int) { a.maxPages = n }

// Symbols returns the assembler's symbol order.
func (a *Assembler) Symbols() []string { return a.symbols }

// Reference returns the shared reference state.
func (a *Assembler) Reference() *domain.Reference { return a.ref }

// Assemble returns the limit newest rows of tf ending at end.
func (a *Assembler) Assemble(ctx context.Context, tf domain.Timeframe, limit int, end time.Time) (*Window, error) {
	if limit < 1 {
		return nil, fmt.Errorf("assemble %s: limit %d < 1", tf, limit)
	}
	end = end.UTC()
	if limit <= SinglePassLimit {
		return a.singlePass(ctx, tf, limit, end)
	}
	return a.multiPass(ctx, tf, limit, end)
}

// fetchPage runs fetch, reorder and backfill over [start, end].
func (a *Assembler) fetchPage(ctx context.Context, tf domain.Timeframe, limit int, start, end time.Time) ([]domain.Bar, error) {
	raw, err := a.source.FetchBars(ctx, a.symbols, tf, start, end)
	if err != nil {
		return nil, err
	}
	ordered, err := repair.Reorder(raw, a.symbols)
	if err != nil {
		return nil, err
	}
	filled, err := repair.Backfill(ordered, a.symbols, a.ref, start, end, tf.Step, limit)
	if err != nil {
		return nil, err
	}

	var synth, placeholders int
	for _, b := range filled {
		switch {
		case b.Placeholder:
			placeholders++
		case b.Synthetic:
			synth++
		}
	}
	a.metrics.RecordSynthetic(metrics.KindBackfill, synth)
	a.metrics.RecordSynthetic(metrics.KindPlaceholder, placeholders)
	return filled, nil
}

// singlePass fetches the whole window at once, fills time gaps and lays each
// symbol's rows onto the window's slots.
func (a *Assembler) singlePass(ctx context.Context, tf domain.Timeframe, limit int, end time.Time) (*Window, error) {
	start := end.Add(-tf.Step * time.Duration(limit-1))
	bars, err := a.fetchPage(ctx, tf, limit, start, end)
	if err != nil {
		return nil, err
	}
	before := len(bars)
	bars = repair.FillGaps(bars, tf.Step, start, end)
	a.metrics.RecordSynthetic(metrics.KindGap, len(bars)-before)

	grid := newGrid(limit, len(a.symbols))
	base := start.Truncate(time.Minute)
	for j, run := range repair.SplitRuns(bars) {
		for _, b := range run {
			slot := int(b.Timestamp.Truncate(time.Minute).Sub(base) / tf.Step)
			if slot < 0 || slot >= limit || b.Placeholder {
				continue
			}
			grid[slot][j] = cell{v: b.OHLCV(), known: true}
		}
	}

	rows := resolve(grid, a.symbols, a.ref)
	for i := range rows {
		rows[i].Time = start.Add(tf.Step * time.Duration(i))
	}
	a.metrics.RecordAssembly(tf.Key, 1)
	return &Window{Timeframe: tf, Symbols: a.symbols, Rows: rows}, nil
}

// multiPass pages backwards limit steps at a time. Each symbol owns a
// newest-first sequence capped at limit; slot k of the window holds every
// symbol's k-th newest row. Paging stops once every symbol has at least
// limit-1 rows.
func (a *Assembler) multiPass(ctx context.Context, tf domain.Timeframe, limit int, end time.Time) (*Window, error) {
	maxPages := a.maxPages
	if maxPages <= 0 {
		maxPages = limit + 1
	}

	seqs := make([][]domain.Bar, len(a.symbols))
	pageEnd := end
	pages := 0
	for {
		if pages == maxPages {
			return nil, fmt.Errorf("assemble %s ending %s: %w after %d pages", tf, end.Format(time.RFC3339), domain.ErrWindowIncomplete, pages)
		}
		start := pageEnd.Add(-tf.Step * time.Duration(limit-1))
		bars, err := a.fetchPage(ctx, tf, limit, start, pageEnd)
		if err != nil {
			return nil, err
		}
		pages++

		for j, run := range repair.SplitRuns(bars) {
			for k := len(run) - 1; k >= 0 && len(seqs[j]) < limit; k-- {
				seqs[j] = append(seqs[j], run[k])
			}
		}

		if allReached(seqs, limit-1) {
			break
		}
		pageEnd = pageEnd.Add(-tf.Step * time.Duration(limit))
	}

	// Slot k (newest first) becomes chronological row limit-1-k.
	grid := newGrid(limit, len(a.symbols))
	newest := make([]time.Time, limit)
	for j, seq := range seqs {
		for k, b := range seq {
			if b.Placeholder {
				continue
			}
			grid[limit-1-k][j] = cell{v: b.OHLCV(), known: true}
			if ts := b.Timestamp.Truncate(time.Minute); ts.After(newest[k]) {
				newest[k] = ts
			}
		}
	}

	rows := resolve(grid, a.symbols, a.ref)
	label := end.Add(tf.Step)
	for k := 0; k < limit; k++ {
		if newest[k].IsZero() || !newest[k].Before(label) {
			label = label.Add(-tf.Step)
		} else {
			label = newest[k]
		}
		rows[limit-1-k].Time = label
	}

	last := rows[len(rows)-1]
	for j, sym := range a.symbols {
		for _, f := range domain.Fields {
			a.ref.SetField(sym, f, last.Cells[j].Get(f))
		}
	}

	a.metrics.RecordAssembly(tf.Key, pages)
	a.log.Debug("assembled window", "timeframe", tf.Key, "limit", limit, "pages", pages, "end", end)
	return &Window{Timeframe: tf, Symbols: a.symbols, Rows: rows}, nil
}

func newGrid(rows, cols int) [][]cell {
	grid := make([][]cell, rows)
	for i := range grid {
		grid[i] = make([]cell, cols)
	}
	return grid
}

func allReached(seqs [][]domain.Bar, n int) bool {
	for _, s := range seqs {
		if len(s) < n {
			return false
		}
	}
	return true
}
