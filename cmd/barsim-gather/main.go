package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"barsim/internal/config"
	"barsim/internal/feed"
	"barsim/internal/gather"
	"barsim/internal/metrics"
	"barsim/internal/store"
	"barsim/internal/util"
)

func main() {
	start := flag.String("start", "", "first day YYYY-MM-DD (overrides gather.start_date)")
	end := flag.String("end", "", "last day YYYY-MM-DD (overrides gather.end_date, default today)")
	symbols := flag.String("symbols", "", "comma-separated symbols (overrides simulation.symbols)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *start != "" {
		cfg.Gather.StartDate = *start
	}
	if *end != "" {
		cfg.Gather.EndDate = *end
	}
	if *symbols != "" {
		cfg.Simulation.Symbols = strings.Split(*symbols, ",")
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	days, err := dateRange(cfg.Gather.StartDate, cfg.Gather.EndDate)
	if err != nil {
		log.Fatalf("invalid gather range: %v", err)
	}
	syms := cfg.SortedSymbols()
	if len(syms) == 0 {
		log.Fatalf("no symbols to gather")
	}

	src := feed.NewAlpacaSource(feed.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		BaseURL:         cfg.Alpaca.BaseURL,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		RateLimitPerMin: cfg.Provider.RateLimitPerMin,
	})
	rec := metrics.New()
	bars := feed.NewRetrying(src, cfg.Provider.RetryAttempts, cfg.Provider.RetryDelay, rec)

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	g := gather.NewMinuteBarGatherer(
		bars,
		src, // calendar
		pstore,
		syms,
		days,
		cfg.Gather.MaxWorkers,
		filepath.Join(cfg.Storage.DataDir, "progress"),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting minute bar archive",
		"symbols", len(syms),
		"from", days.Start.Format(time.DateOnly),
		"to", days.End.Format(time.DateOnly),
		"workers", cfg.Gather.MaxWorkers,
	)
	if err := g.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}

func dateRange(start, end string) (gather.DateRange, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return gather.DateRange{}, err
	}
	e := time.Now().UTC().Truncate(24 * time.Hour)
	if end != "" {
		if e, err = time.Parse(time.DateOnly, end); err != nil {
			return gather.DateRange{}, err
		}
	}
	return gather.DateRange{Start: s, End: e}, nil
}
