package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"google.golang.org/grpc"

	"barsim/internal/chart"
	"barsim/internal/config"
	"barsim/internal/feed"
	"barsim/internal/live"
	"barsim/internal/metrics"
	"barsim/internal/store"
	"barsim/internal/strategy"
	"barsim/internal/strategy/builtins"
	"barsim/internal/util"
)

func main() {
	strategyName := flag.String("strategy", "", "strategy to run (overrides simulation.strategy)")
	date := flag.String("date", "", "trading day YYYY-MM-DD (overrides simulation.date)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strategyName != "" {
		cfg.Simulation.Strategy = *strategyName
	}
	if *date != "" {
		cfg.Simulation.Date = *date
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}
	bounds, err := cfg.SessionBounds()
	if err != nil {
		log.Fatalf("session bounds: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := rec.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	var src feed.BarSource
	switch cfg.Provider.Source {
	case config.SourceParquet:
		src = feed.NewParquetSource(store.NewParquetStore(cfg.Storage.DataDir), loc)
	default:
		src = feed.NewAlpacaSource(feed.AlpacaOptions{
			APIKey:          cfg.Alpaca.APIKey,
			APISecret:       cfg.Alpaca.APISecret,
			BaseURL:         cfg.Alpaca.BaseURL,
			DataURL:         cfg.Alpaca.DataURL,
			Feed:            cfg.Alpaca.Feed,
			RateLimitPerMin: cfg.Provider.RateLimitPerMin,
		})
	}
	src = feed.NewRetrying(src, cfg.Provider.RetryAttempts, cfg.Provider.RetryDelay, rec)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("failed to create sqlite dir: %v", err)
	}
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer db.Close()

	hub := live.NewHub(cfg.Chart.History)
	charts := chart.NewRecorder(hub)

	if cfg.Chart.LiveAddr != "" {
		lis, err := net.Listen("tcp", cfg.Chart.LiveAddr)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", cfg.Chart.LiveAddr, err)
		}
		gs := grpc.NewServer()
		live.NewServer(hub, logger).RegisterGRPC(gs)
		go func() {
			if err := gs.Serve(lis); err != nil {
				logger.Error("chart feed server stopped", "error", err)
			}
		}()
		// Closing the hub ends open streams so GracefulStop can return.
		defer gs.GracefulStop()
		logger.Info("chart feed listening", "addr", cfg.Chart.LiveAddr)
	}
	defer hub.Close()

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewSMACross(5, 12))

	bt := strategy.NewBacktester(strategy.Deps{
		Source:  src,
		Series:  db,
		Signals: db,
		Charts:  charts,
		Metrics: rec,
	}, registry)

	logger.Info("starting simulation",
		"strategy", cfg.Simulation.Strategy,
		"date", cfg.Simulation.Date,
		"start", bounds.Trigger,
		"end", bounds.End,
		"source", cfg.Provider.Source,
	)

	res, err := bt.Run(ctx, cfg.Simulation.Strategy, strategy.RunOptions{
		Symbols:      cfg.SortedSymbols(),
		Trigger:      bounds.Trigger,
		End:          bounds.End,
		DisplayFrom:  bounds.DisplayFrom,
		RowsLimit:    cfg.Simulation.RowsLimit,
		Location:     loc,
		ChartDir:     cfg.Chart.Dir,
		SeedLookback: cfg.Simulation.SeedLookback,
		EMAPeriod:    cfg.Simulation.EMAPeriod,
	})
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	logger.Info("simulation finished",
		"run", res.RunID,
		"ticks", res.Ticks,
		"signals", len(res.Signals),
		"charts", res.Charts,
	)
}
