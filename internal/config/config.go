// Package config loads the simulator configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // session timezones must resolve without system zoneinfo

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when BARSIM_CONFIG is unset.
const DefaultPath = "config/barsim.yaml"

// Provider source kinds.
const (
	SourceAlpaca  = "alpaca"
	SourceParquet = "parquet"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the simulator.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Alpaca     Alpaca     `yaml:"alpaca"`
	Logging    Logging    `yaml:"logging"`
	Simulation Simulation `yaml:"simulation"`
	Provider   Provider   `yaml:"provider"`
	Chart      Chart      `yaml:"chart"`
	Metrics    Metrics    `yaml:"metrics"`
	Gather     Gather     `yaml:"gather"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Simulation describes one simulated trading day. Clock times are "15:04"
// in Timezone.
type Simulation struct {
	Strategy     string   `yaml:"strategy"`
	Symbols      []string `yaml:"symbols"`
	Date         string   `yaml:"date"`
	Start        string   `yaml:"start"`
	End          string   `yaml:"end"`
	DisplayFrom  string   `yaml:"display_from"`
	Timezone     string   `yaml:"timezone"`
	RowsLimit    int      `yaml:"rows_limit"`
	SeedLookback int      `yaml:"seed_lookback"`
	EMAPeriod    int      `yaml:"ema_period"`
}

// Provider selects and tunes the bar source.
type Provider struct {
	Source          string        `yaml:"source"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// Chart configures chart rendering and the live chart feed.
type Chart struct {
	Dir      string `yaml:"dir"`
	LiveAddr string `yaml:"live_addr"`
	History  int    `yaml:"history"`
}

// Metrics configures the Prometheus listener. Empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Gather holds parameters for archiving minute bars.
type Gather struct {
	StartDate  string `yaml:"start_date"`
	EndDate    string `yaml:"end_date"`
	MaxWorkers int    `yaml:"max_workers"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file path from BARSIM_CONFIG, or DefaultPath.
func Path() string {
	if v := os.Getenv("BARSIM_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/barsim.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	s := &cfg.Simulation
	if s.Strategy == "" {
		s.Strategy = "sma-cross"
	}
	if s.Timezone == "" {
		s.Timezone = "America/Los_Angeles"
	}
	if s.RowsLimit == 0 {
		s.RowsLimit = 13
	}
	if s.SeedLookback == 0 {
		s.SeedLookback = 10
	}
	if s.EMAPeriod == 0 {
		s.EMAPeriod = 12
	}

	p := &cfg.Provider
	if p.Source == "" {
		p.Source = SourceAlpaca
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 5
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = 3 * time.Second
	}

	if cfg.Chart.History == 0 {
		cfg.Chart.History = 10000
	}
	if cfg.Gather.MaxWorkers == 0 {
		cfg.Gather.MaxWorkers = 4
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("BARSIM_SYMBOLS"); v != "" {
		var syms []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				syms = append(syms, s)
			}
		}
		cfg.Simulation.Symbols = syms
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation and derived values
// ---------------------------------------------------------------------------

// Validate checks the simulation section.
func (c *Config) Validate() error {
	var errs []error
	s := c.Simulation
	if len(s.Symbols) == 0 {
		errs = append(errs, errors.New("simulation.symbols is empty"))
	}
	if s.RowsLimit < 1 {
		errs = append(errs, fmt.Errorf("simulation.rows_limit %d < 1", s.RowsLimit))
	}
	switch c.Provider.Source {
	case SourceAlpaca, SourceParquet:
	default:
		errs = append(errs, fmt.Errorf("provider.source %q is not %q or %q", c.Provider.Source, SourceAlpaca, SourceParquet))
	}
	if c.Provider.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("provider.retry_attempts %d < 1", c.Provider.RetryAttempts))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	} else if _, err := c.SessionBounds(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location loads the simulation timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Simulation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("simulation.timezone: %w", err)
	}
	return loc, nil
}

// Bounds are the instants of a simulated session.
type Bounds struct {
	Trigger     time.Time
	End         time.Time
	DisplayFrom time.Time
}

// SessionBounds parses date, start, end and display_from in the simulation
// timezone. An empty display_from equals start.
func (c *Config) SessionBounds() (Bounds, error) {
	loc, err := c.Location()
	if err != nil {
		return Bounds{}, err
	}
	s := c.Simulation
	parse := func(field, clock string) (time.Time, error) {
		t, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+clock, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("simulation.%s: %w", field, err)
		}
		return t, nil
	}

	var b Bounds
	if b.Trigger, err = parse("start", s.Start); err != nil {
		return Bounds{}, err
	}
	if b.End, err = parse("end", s.End); err != nil {
		return Bounds{}, err
	}
	if !b.End.After(b.Trigger) {
		return Bounds{}, fmt.Errorf("simulation.end %s is not after start %s", s.End, s.Start)
	}
	b.DisplayFrom = b.Trigger
	if s.DisplayFrom != "" {
		if b.DisplayFrom, err = parse("display_from", s.DisplayFrom); err != nil {
			return Bounds{}, err
		}
	}
	return b, nil
}

// SortedSymbols returns the upper-cased, sorted, de-duplicated symbols.
func (c *Config) SortedSymbols() []string {
	seen := make(map[string]bool, len(c.Simulation.Symbols))
	var out []string
	for _, s := range c.Simulation.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
