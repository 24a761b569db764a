// Package strategy defines the Strategy interface for trading strategies,
// a Registry for managing implementations, and the Backtester that drives
// them one simulated minute at a time.
package strategy

import (
	"context"
	"sort"
	"time"

	"barsim/internal/domain"
	"barsim/internal/window"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// OnMinute is called once per simulated minute with the refreshed
	// windows. It returns zero or more trading signals.
	OnMinute(ctx context.Context, snap *Snapshot) ([]domain.Signal, error)
}

// Snapshot is the multi-timeframe state handed to a strategy each minute.
type Snapshot struct {
	Time    time.Time
	Symbols []string
	// Windows and EMA are keyed by timeframe key ("1Min", "5Min", "15Min").
	// EMA holds the latest value per symbol; a timeframe is absent until
	// its first update.
	Windows map[string]*window.Window
	EMA     map[string][]float64
}

// Window returns the window for tf, or nil.
func (s *Snapshot) Window(tf domain.Timeframe) *window.Window {
	return s.Windows[tf.Key]
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
