// Package store persists raw minute bars for offline replay, the rolling
// per-timeframe series the simulator reads back each tick, and the signal
// log.
package store

import (
	"context"
	"time"

	"barsim/internal/domain"
)

// BarStore archives raw OHLCV bars per timeframe.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with what is on disk.
	WriteBars(ctx context.Context, tf domain.Timeframe, bars []domain.Bar) error

	// ReadBars returns bars for the symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols archived for the timeframe.
	ListSymbols(ctx context.Context, tf domain.Timeframe) ([]string, error)
}

// SeriesStore holds the rolling windows as one row-oriented table per
// (timeframe, field), with a timestamp column followed by one column per
// symbol. Reads observe every preceding write.
type SeriesStore interface {
	// ResetSeries drops any previous series for tf and creates empty tables
	// with one column per symbol.
	ResetSeries(ctx context.Context, tf domain.Timeframe, symbols []string) error

	// AppendRow adds a row at the end of the series.
	AppendRow(ctx context.Context, tf domain.Timeframe, row domain.Row) error

	// ReplaceLastRow deletes the newest row and appends row in its place.
	ReplaceLastRow(ctx context.Context, tf domain.Timeframe, row domain.Row) error

	// ReadLastRows returns up to n newest rows, oldest first.
	ReadLastRows(ctx context.Context, tf domain.Timeframe, n int) ([]domain.Row, error)
}

// SignalStore persists and retrieves trading signals.
type SignalStore interface {
	// SaveSignal inserts a new signal into storage and sets its ID.
	SaveSignal(ctx context.Context, signal *domain.Signal) error

	// ListSignals returns the most recent signals for a strategy, up to limit.
	ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error)
}
