package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"barsim/internal/domain"
	"barsim/internal/feed"
	"barsim/internal/store"
	"barsim/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*MinuteBarGatherer)(nil)

// SessionSource resolves a calendar day to its trading session.
// Non-trading days return an error wrapping domain.ErrNotTradingDay.
type SessionSource interface {
	Session(day string) (util.Session, error)
}

// MinuteBarGatherer archives 1-minute bars for a fixed symbol set, one
// trading day at a time, into a BarStore.
type MinuteBarGatherer struct {
	source      feed.BarSource
	sessions    SessionSource
	store       store.BarStore
	symbols     []string
	days        DateRange
	maxWorkers  int
	progressDir string
	log         *slog.Logger
}

// NewMinuteBarGatherer creates a gatherer. When sessions is nil every
// weekday is gathered over the whole UTC day.
func NewMinuteBarGatherer(source feed.BarSource, sessions SessionSource, s store.BarStore, symbols []string, days DateRange, maxWorkers int, progressDir string) *MinuteBarGatherer {
	return &MinuteBarGatherer{
		source:      source,
		sessions:    sessions,
		store:       s,
		symbols:     symbols,
		days:        days,
		maxWorkers:  max(maxWorkers, 1),
		progressDir: progressDir,
		log:         slog.Default().With("gatherer", "minute-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *MinuteBarGatherer) Name() string { return "minute-bars" }

// Run fetches and archives every day in range not yet recorded as
// completed. The first failing day cancels the rest.
func (g *MinuteBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return errors.New("no symbols to gather")
	}
	tracker, err := newProgressTracker(g.progressDir)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	var remaining []string
	for _, day := range g.days.Days() {
		if !tracker.IsCompleted(day) {
			remaining = append(remaining, day)
		}
	}
	g.log.Info("starting minute-bars",
		"symbols", len(g.symbols),
		"remaining", len(remaining),
		"completed", tracker.Count(),
	)

	var (
		totalBars atomic.Int64
		runStart  = time.Now()
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxWorkers)
	for _, day := range remaining {
		eg.Go(func() error {
			n, err := g.gatherDay(ctx, day)
			if errors.Is(err, domain.ErrNotTradingDay) {
				g.log.Debug("skipping non-trading day", "day", day)
				return tracker.MarkCompleted(day)
			}
			if err != nil {
				return fmt.Errorf("gathering %s: %w", day, err)
			}
			totalBars.Add(int64(n))
			g.log.Info("day archived", "day", day, "bars", n)
			return tracker.MarkCompleted(day)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.log.Info("minute-bars complete",
		"days", len(remaining),
		"bars", totalBars.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

func (g *MinuteBarGatherer) gatherDay(ctx context.Context, day string) (int, error) {
	sess, err := g.session(day)
	if err != nil {
		return 0, err
	}
	bars, err := g.source.FetchBars(ctx, g.symbols, domain.OneMinute, sess.Open, sess.Close.Add(-time.Minute))
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := g.store.WriteBars(ctx, domain.OneMinute, bars); err != nil {
		return 0, fmt.Errorf("writing bars: %w", err)
	}
	return len(bars), nil
}

func (g *MinuteBarGatherer) session(day string) (util.Session, error) {
	if g.sessions != nil {
		return g.sessions.Session(day)
	}
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return util.Session{}, err
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return util.Session{}, fmt.Errorf("%s: %w", day, domain.ErrNotTradingDay)
	}
	return util.Session{Open: d, Close: d.AddDate(0, 0, 1)}, nil
}
