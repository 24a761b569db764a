package window

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

// DefaultSeedLookback bounds how many calendar days SeedReference steps back.
const DefaultSeedLookback = 10

// SeedReference loads each symbol's previous daily bar into ref. Starting
// one day before at, it queries the one-day range ending at the same clock
// time and steps back a day at a time over weekends and holidays until every
// symbol has a bar or maxLookback days have been tried.
func SeedReference(ctx context.Context, src feed.BarSource, symbols []string, ref *domain.Reference, at time.Time, maxLookback int) error {
	if maxLookback <= 0 {
		maxLookback = DefaultSeedLookback
	}
	log := slog.Default().With("component", "seed")

	missing := append([]string(nil), symbols...)
	end := at
	for day := 1; day <= maxLookback && len(missing) > 0; day++ {
		end = end.AddDate(0, 0, -1)
		start := end.AddDate(0, 0, -1)

		bars, err := src.FetchBars(ctx, missing, domain.OneDay, start, end)
		if err != nil {
			return fmt.Errorf("seeding reference: %w", err)
		}
		if len(bars) == 0 {
			log.Info("no daily bars, stepping back", "end", end.Format("2006-01-02"))
			continue
		}

		latest := make(map[string]domain.Bar, len(bars))
		for _, b := range bars {
			if cur, ok := latest[b.Symbol]; !ok || b.Timestamp.After(cur.Timestamp) {
				latest[b.Symbol] = b
			}
		}
		var still []string
		for _, sym := range missing {
			b, ok := latest[sym]
			if !ok {
				still = append(still, sym)
				continue
			}
			ref.Set(sym, b.OHLCV())
		}
		missing = still
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w for %s within %d days of %s", domain.ErrNoReference,
			strings.Join(missing, ","), maxLookback, at.Format("2006-01-02"))
	}
	return nil
}
