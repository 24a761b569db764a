package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"barsim/internal/chart"
	"barsim/internal/domain"
	"barsim/internal/feed"
	"barsim/internal/indicator"
	"barsim/internal/metrics"
	"barsim/internal/store"
	"barsim/internal/util"
	"barsim/internal/window"
)

// DefaultRowsLimit is the window length kept per timeframe.
const DefaultRowsLimit = 13

const (
	storeAttempts = 3
	storeDelay    = 100 * time.Millisecond
)

// barTimeframes are the multi-minute timeframes refreshed through growing
// candles.
var barTimeframes = []domain.Timeframe{domain.FiveMinute, domain.FifteenMinute}

// State is the lifecycle of a Backtester.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Deps are the collaborators of a Backtester. Signals, Charts and Metrics
// are optional.
type Deps struct {
	Source  feed.BarSource
	Series  store.SeriesStore
	Signals store.SignalStore
	Charts  *chart.Recorder
	Metrics *metrics.Recorder
}

// RunOptions configure one simulation.
type RunOptions struct {
	Symbols []string
	// Trigger is the first simulated minute, End the exclusive last one.
	Trigger time.Time
	End     time.Time
	// DisplayFrom is the first minute recorded for charts. Zero means Trigger.
	DisplayFrom  time.Time
	RowsLimit    int
	Location     *time.Location
	ChartDir     string
	SeedLookback int
	EMAPeriod    int
}

// BacktestResult summarizes a finished run.
type BacktestResult struct {
	RunID   string
	Ticks   int
	Signals []domain.Signal
	Charts  []string
}

// Backtester advances a simulated clock minute by minute, keeps the rolling
// 1/5/15-minute series current and feeds them to a strategy.
type Backtester struct {
	deps     Deps
	registry *Registry
	state    atomic.Int32
	log      *slog.Logger
}

// NewBacktester creates a Backtester that looks up strategies in the
// provided registry.
func NewBacktester(deps Deps, registry *Registry) *Backtester {
	return &Backtester{
		deps:     deps,
		registry: registry,
		log:      slog.Default().With("component", "backtester"),
	}
}

// State returns the current lifecycle state.
func (bt *Backtester) State() State { return State(bt.state.Load()) }

// Run executes the named strategy over [opts.Trigger, opts.End).
func (bt *Backtester) Run(ctx context.Context, strategyName string, opts RunOptions) (res *BacktestResult, err error) {
	strat, ok := bt.registry.Get(strategyName)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", strategyName)
	}
	if err := normalize(&opts); err != nil {
		return nil, err
	}
	if !bt.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("backtester is %s", bt.State())
	}
	defer func() {
		if err != nil {
			bt.state.Store(int32(StateFailed))
		}
	}()

	r := &run{
		deps:     bt.deps,
		opts:     opts,
		strategy: strat,
		id:       uuid.NewString(),
		growing:  make(map[string]*GrowingCandle),
		ema:      make(map[string]*indicator.EMA),
		latest:   make(map[string][]float64),
		windows:  make(map[string]*window.Window),
	}
	r.log = bt.log.With("run", r.id, "strategy", strategyName)

	if err := r.start(ctx); err != nil {
		return nil, err
	}
	for curr := opts.Trigger; curr.Before(opts.End); curr = curr.Add(time.Minute) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.tick(ctx, curr); err != nil {
			return nil, fmt.Errorf("tick %s: %w", curr.In(opts.Location).Format("2006-01-02 15:04"), err)
		}
	}

	bt.state.Store(int32(StateDone))
	r.log.Info("simulation done", "ticks", r.ticks, "signals", len(r.signals))
	return &BacktestResult{RunID: r.id, Ticks: r.ticks, Signals: r.signals, Charts: r.charts}, nil
}

func normalize(o *RunOptions) error {
	if len(o.Symbols) == 0 {
		return errors.New("no symbols")
	}
	if !o.End.After(o.Trigger) {
		return fmt.Errorf("end %s is not after trigger %s", o.End, o.Trigger)
	}
	o.Symbols = append([]string(nil), o.Symbols...)
	sort.Strings(o.Symbols)
	if o.RowsLimit <= 0 {
		o.RowsLimit = DefaultRowsLimit
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.DisplayFrom.IsZero() {
		o.DisplayFrom = o.Trigger
	}
	if o.EMAPeriod <= 0 {
		o.EMAPeriod = indicator.DefaultPeriod
	}
	o.Trigger = util.TruncateMinute(o.Trigger)
	return nil
}

// run is the state of one simulation.
type run struct {
	deps     Deps
	opts     RunOptions
	strategy Strategy
	id       string
	log      *slog.Logger

	asm     *window.Assembler
	growing map[string]*GrowingCandle
	ema     map[string]*indicator.EMA
	latest  map[string][]float64
	windows map[string]*window.Window

	ticks   int
	signals []domain.Signal
	charts  []string
}

// start seeds the reference state, writes the initial windows and
// initializes the strategy.
func (r *run) start(ctx context.Context) error {
	o := r.opts
	ref := domain.NewReference()
	if err := window.SeedReference(ctx, r.deps.Source, o.Symbols, ref, o.Trigger, o.SeedLookback); err != nil {
		return err
	}
	r.asm = window.NewAssembler(r.deps.Source, o.Symbols, ref, r.deps.Metrics)

	// The row preceding the first tick is the bar containing trigger-2m:
	// the first tick either appends after it or replaces it.
	for _, tf := range append([]domain.Timeframe{domain.OneMinute}, barTimeframes...) {
		if err := r.withStore(ctx, func() error {
			return r.deps.Series.ResetSeries(ctx, tf, o.Symbols)
		}); err != nil {
			return fmt.Errorf("resetting %s series: %w", tf, err)
		}

		end := r.bucketStart(o.Trigger.Add(-2*time.Minute), tf)
		w, err := r.asm.Assemble(ctx, tf, o.RowsLimit, end)
		if err != nil {
			return fmt.Errorf("initial %s window: %w", tf, err)
		}
		for _, row := range w.Rows {
			if err := r.withStore(ctx, func() error {
				return r.deps.Series.AppendRow(ctx, tf, row)
			}); err != nil {
				return fmt.Errorf("writing initial %s window: %w", tf, err)
			}
		}
		r.windows[tf.Key] = w
		r.ema[tf.Key] = indicator.NewEMA(o.EMAPeriod, len(o.Symbols))
		if tf != domain.OneMinute {
			r.growing[tf.Key] = NewGrowingCandle(tf.Minutes(), len(o.Symbols))
		}
	}

	if err := r.strategy.Init(ctx); err != nil {
		return fmt.Errorf("initializing strategy: %w", err)
	}
	r.log.Info("simulation started",
		"symbols", o.Symbols,
		"trigger", o.Trigger.In(o.Location).Format(time.RFC3339),
		"end", o.End.In(o.Location).Format(time.RFC3339),
		"rowsLimit", o.RowsLimit)
	return nil
}

// tick advances the simulation to curr.
func (r *run) tick(ctx context.Context, curr time.Time) error {
	o := r.opts
	minute := util.MinuteOfHour(curr, o.Location)
	display := !curr.Before(o.DisplayFrom)

	// 1-minute: append the bar that just closed and read the window back.
	w, err := r.asm.Assemble(ctx, domain.OneMinute, 1, curr.Add(-time.Minute))
	if err != nil {
		return err
	}
	if err := r.withStore(ctx, func() error {
		return r.deps.Series.AppendRow(ctx, domain.OneMinute, w.Last())
	}); err != nil {
		return err
	}
	oneMin, err := r.readWindow(ctx, domain.OneMinute)
	if err != nil {
		return err
	}
	current := oneMin.Last()
	if err := r.updateIndicators(domain.OneMinute, oneMin, curr, display); err != nil {
		return err
	}

	for _, tf := range barTimeframes {
		period := tf.Minutes()
		var row domain.Row
		if minute%period == 0 {
			bw, err := r.asm.Assemble(ctx, tf, 1, curr.Add(-tf.Step))
			if err != nil {
				return err
			}
			row = bw.Last()
		} else {
			row = domain.Row{
				Time:  r.bucketStart(curr.Add(-time.Minute), tf),
				Cells: r.growing[tf.Key].Update(minute, current.Cells),
			}
		}

		write := r.deps.Series.ReplaceLastRow
		if minute%period == 1 {
			write = r.deps.Series.AppendRow
		}
		if err := r.withStore(ctx, func() error { return write(ctx, tf, row) }); err != nil {
			return err
		}

		tw, err := r.readWindow(ctx, tf)
		if err != nil {
			return err
		}
		if minute%period == period-1 {
			if err := r.updateIndicators(tf, tw, curr, display); err != nil {
				return err
			}
		}
	}

	snap := &Snapshot{
		Time:    curr,
		Symbols: o.Symbols,
		Windows: r.windows,
		EMA:     r.latest,
	}
	sigs, err := r.strategy.OnMinute(ctx, snap)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", r.strategy.Name(), err)
	}
	if err := r.recordSignals(ctx, curr, sigs); err != nil {
		return err
	}

	if curr.Equal(o.End.Add(-time.Minute)) {
		if err := r.renderCharts(); err != nil {
			return err
		}
	}

	r.ticks++
	r.deps.Metrics.RecordTick()
	return nil
}

// readWindow reads the newest RowsLimit rows of tf back from the series store.
func (r *run) readWindow(ctx context.Context, tf domain.Timeframe) (*window.Window, error) {
	var rows []domain.Row
	err := r.withStore(ctx, func() error {
		var err error
		rows, err = r.deps.Series.ReadLastRows(ctx, tf, r.opts.RowsLimit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s series is empty", tf)
	}
	w := &window.Window{Timeframe: tf, Symbols: r.opts.Symbols, Rows: rows}
	r.windows[tf.Key] = w
	return w, nil
}

func (r *run) updateIndicators(tf domain.Timeframe, w *window.Window, curr time.Time, display bool) error {
	vals, err := r.ema[tf.Key].Update(w.Series(domain.FieldClose))
	if err != nil {
		return fmt.Errorf("%s ema: %w", tf, err)
	}
	r.latest[tf.Key] = vals
	if !display || r.deps.Charts == nil {
		return nil
	}
	return r.deps.Charts.Record(tf, curr, r.opts.Symbols, w.Last(), vals)
}

func (r *run) recordSignals(ctx context.Context, curr time.Time, sigs []domain.Signal) error {
	for i := range sigs {
		sig := &sigs[i]
		if sig.StrategyID == "" {
			sig.StrategyID = r.strategy.Name()
		}
		if sig.CreatedAt.IsZero() {
			sig.CreatedAt = curr
		}
		if r.deps.Signals != nil {
			if err := r.withStore(ctx, func() error {
				return r.deps.Signals.SaveSignal(ctx, sig)
			}); err != nil {
				return fmt.Errorf("saving signal: %w", err)
			}
		}
		r.log.Info("signal",
			"symbol", sig.Symbol,
			"type", sig.Type,
			"strength", sig.Strength,
			"at", curr.In(r.opts.Location).Format("15:04"))
		r.signals = append(r.signals, *sig)
	}
	return nil
}

func (r *run) renderCharts() error {
	if r.deps.Charts == nil || r.opts.ChartDir == "" {
		return nil
	}
	paths, err := r.deps.Charts.Render(r.opts.ChartDir, r.id)
	if err != nil {
		return fmt.Errorf("rendering charts: %w", err)
	}
	r.charts = paths
	return nil
}

// bucketStart floors t to the start of its tf bar, counting minutes within
// the hour in the session timezone.
func (r *run) bucketStart(t time.Time, tf domain.Timeframe) time.Time {
	t = util.TruncateMinute(t)
	off := util.MinuteOfHour(t, r.opts.Location) % tf.Minutes()
	return t.Add(-time.Duration(off) * time.Minute)
}

// withStore retries a series or signal store operation. Exhaustion is fatal
// to the run.
func (r *run) withStore(ctx context.Context, fn func() error) error {
	if err := util.Retry(ctx, storeAttempts, storeDelay, fn); err != nil {
		return fmt.Errorf("store failed after %d attempts: %w", storeAttempts, err)
	}
	return nil
}
