// Package feed provides bar sources: the Alpaca market-data API, a Parquet
// archive replay, and a bounded-retry wrapper for either.
package feed

import (
	"context"
	"sync"
	"time"

	"barsim/internal/domain"
)

// BarSource returns raw bars for symbols over [start, end] at timeframe tf.
// Rows may be interleaved across symbols. An empty result means nothing
// traded in range. Retryable failures match domain.ErrTransientProvider.
type BarSource interface {
	FetchBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error)
}

// Call records one FetchBars invocation on a StaticSource.
type Call struct {
	Symbols   []string
	Timeframe domain.Timeframe
	Start     time.Time
	End       time.Time
}

// StaticSource serves bars from memory, filtered by symbol, timeframe and
// range. Errs are returned, in order, before any data is served.
type StaticSource struct {
	mu    sync.Mutex
	bars  map[string][]domain.Bar // timeframe key -> bars
	Errs  []error
	calls []Call
}

// NewStaticSource creates an empty in-memory source.
func NewStaticSource() *StaticSource {
	return &StaticSource{bars: make(map[string][]domain.Bar)}
}

// Add registers bars for tf.
func (s *StaticSource) Add(tf domain.Timeframe, bars ...domain.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[tf.Key] = append(s.bars[tf.Key], bars...)
}

// FetchBars implements BarSource.
func (s *StaticSource) FetchBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Symbols: append([]string(nil), symbols...), Timeframe: tf, Start: start, End: end})
	if len(s.Errs) > 0 {
		err := s.Errs[0]
		s.Errs = s.Errs[1:]
		return nil, err
	}

	want := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		want[sym] = true
	}
	var out []domain.Bar
	for _, b := range s.bars[tf.Key] {
		if want[b.Symbol] && !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Calls returns a copy of the recorded invocations.
func (s *StaticSource) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
