package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "barsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATA_DIR", "SQLITE_PATH", "ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL", "ALPACA_DATA_URL", "LOG_LEVEL", "BARSIM_SYMBOLS", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoadFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/barsim/data"
  sqlite_path: "/tmp/barsim/barsim.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
  feed: "iex"
logging:
  level: "debug"
  format: "text"
simulation:
  strategy: "sma-cross"
  symbols: ["TSLA", "XOM", "AAPL"]
  date: "2022-11-03"
  start: "06:30"
  end: "13:00"
  display_from: "06:45"
  timezone: "America/Los_Angeles"
  rows_limit: 21
provider:
  source: "parquet"
  retry_attempts: 3
  retry_delay: 500ms
  rate_limit_per_min: 180
chart:
  dir: "charts"
  live_addr: ":9090"
metrics:
  addr: ":9100"
gather:
  start_date: "2022-10-01"
  end_date: "2022-11-04"
  max_workers: 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/barsim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/barsim/data")
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "iex")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Simulation.RowsLimit != 21 {
		t.Errorf("Simulation.RowsLimit = %d, want 21", cfg.Simulation.RowsLimit)
	}
	if cfg.Provider.RetryDelay != 500*time.Millisecond {
		t.Errorf("Provider.RetryDelay = %v, want 500ms", cfg.Provider.RetryDelay)
	}
	if cfg.Provider.Source != SourceParquet {
		t.Errorf("Provider.Source = %q, want %q", cfg.Provider.Source, SourceParquet)
	}
	if cfg.Chart.LiveAddr != ":9090" || cfg.Metrics.Addr != ":9100" {
		t.Errorf("Chart.LiveAddr = %q, Metrics.Addr = %q", cfg.Chart.LiveAddr, cfg.Metrics.Addr)
	}
	if cfg.Gather.MaxWorkers != 8 {
		t.Errorf("Gather.MaxWorkers = %d, want 8", cfg.Gather.MaxWorkers)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	got := strings.Join(cfg.SortedSymbols(), ",")
	if got != "AAPL,TSLA,XOM" {
		t.Errorf("SortedSymbols() = %s, want AAPL,TSLA,XOM", got)
	}

	b, err := cfg.SessionBounds()
	if err != nil {
		t.Fatalf("SessionBounds() returned error: %v", err)
	}
	// 06:30 PDT is 13:30 UTC.
	if want := time.Date(2022, 11, 3, 13, 30, 0, 0, time.UTC); !b.Trigger.Equal(want) {
		t.Errorf("Trigger = %v, want %v", b.Trigger.UTC(), want)
	}
	if b.End.Sub(b.Trigger) != 390*time.Minute {
		t.Errorf("session length = %v, want 6h30m", b.End.Sub(b.Trigger))
	}
	if b.DisplayFrom.Sub(b.Trigger) != 15*time.Minute {
		t.Errorf("DisplayFrom offset = %v, want 15m", b.DisplayFrom.Sub(b.Trigger))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "simulation:\n  symbols: [AAPL]\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Simulation.RowsLimit != 13 {
		t.Errorf("RowsLimit = %d, want 13", cfg.Simulation.RowsLimit)
	}
	if cfg.Simulation.Timezone != "America/Los_Angeles" {
		t.Errorf("Timezone = %q", cfg.Simulation.Timezone)
	}
	if cfg.Provider.RetryAttempts != 5 || cfg.Provider.RetryDelay != 3*time.Second {
		t.Errorf("Provider retry = %d/%v, want 5/3s", cfg.Provider.RetryAttempts, cfg.Provider.RetryDelay)
	}
	if cfg.Provider.Source != SourceAlpaca {
		t.Errorf("Provider.Source = %q, want %q", cfg.Provider.Source, SourceAlpaca)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/yaml/data"
simulation:
  symbols: [AAPL]
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("BARSIM_SYMBOLS", "xom, tsla ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if got := strings.Join(cfg.SortedSymbols(), ","); got != "TSLA,XOM" {
		t.Errorf("SortedSymbols() = %s, want TSLA,XOM", got)
	}

	t.Setenv("APCA_API_KEY_ID", "apca-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "apca-key" {
		t.Errorf("Alpaca.APIKey = %q, want APCA_API_KEY_ID to win", cfg.Alpaca.APIKey)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Provider.Source = "ftp"
	cfg.Simulation.Date = "2022-11-03"
	cfg.Simulation.Start = "13:00"
	cfg.Simulation.End = "06:30"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() returned nil for invalid config")
	}
	for _, want := range []string{"symbols", "provider.source", "not after start"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %q", err, want)
		}
	}
}

func TestPath(t *testing.T) {
	t.Setenv("BARSIM_CONFIG", "")
	if Path() != DefaultPath {
		t.Errorf("Path() = %q, want %q", Path(), DefaultPath)
	}
	t.Setenv("BARSIM_CONFIG", "/etc/barsim.yaml")
	if Path() != "/etc/barsim.yaml" {
		t.Errorf("Path() = %q, want override", Path())
	}
}
