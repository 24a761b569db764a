// Package domain holds the core types shared across the simulator: bars,
// timeframes, the per-asset reference state and trading signals.
package domain

import (
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is one OHLCV candlestick for a single symbol over one timeframe step.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
	VWAP       float64

	// Synthetic is set on rows produced by the gap filler or by backfill
	// from the reference state.
	Synthetic bool
	// Placeholder marks a row whose values are unknown and must be
	// resolved by nearest-neighbour search before use.
	Placeholder bool
}

// OHLCV extracts the value fields of the bar.
func (b Bar) OHLCV() OHLCV {
	return OHLCV{
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

// OHLCV is the value part of a bar, without symbol or time.
type OHLCV struct {
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
	VWAP       float64
}

// Row is one time slot of a multi-asset table: one OHLCV cell per symbol,
// in the table's symbol order.
type Row struct {
	Time  time.Time
	Cells []OHLCV
}

// Field names one float column of an OHLCV row.
type Field string

const (
	FieldOpen   Field = "open"
	FieldHigh   Field = "high"
	FieldLow    Field = "low"
	FieldClose  Field = "close"
	FieldVolume Field = "volume"
	FieldVWAP   Field = "vwap"
)

// Fields lists the float columns in storage order.
var Fields = []Field{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume, FieldVWAP}

// Get returns the value of field f.
func (o OHLCV) Get(f Field) float64 {
	switch f {
	case FieldOpen:
		return o.Open
	case FieldHigh:
		return o.High
	case FieldLow:
		return o.Low
	case FieldClose:
		return o.Close
	case FieldVolume:
		return o.Volume
	case FieldVWAP:
		return o.VWAP
	}
	return 0
}

// Set assigns v to field f.
func (o *OHLCV) Set(f Field, v float64) {
	switch f {
	case FieldOpen:
		o.Open = v
	case FieldHigh:
		o.High = v
	case FieldLow:
		o.Low = v
	case FieldClose:
		o.Close = v
	case FieldVolume:
		o.Volume = v
	case FieldVWAP:
		o.VWAP = v
	}
}

// ---------------------------------------------------------------------------
// Timeframes
// ---------------------------------------------------------------------------

// Timeframe is a bar aggregation step. Key is used for series and chart
// naming ("1Min", "5Min", "15Min", "1Day").
type Timeframe struct {
	Key  string
	Step time.Duration
}

var (
	OneMinute     = Timeframe{Key: "1Min", Step: time.Minute}
	FiveMinute    = Timeframe{Key: "5Min", Step: 5 * time.Minute}
	FifteenMinute = Timeframe{Key: "15Min", Step: 15 * time.Minute}
	OneDay        = Timeframe{Key: "1Day", Step: 24 * time.Hour}
)

// Minutes returns the step length in whole minutes.
func (tf Timeframe) Minutes() int { return int(tf.Step / time.Minute) }

// IsDaily reports whether the timeframe aggregates whole trading days.
func (tf Timeframe) IsDaily() bool { return tf.Step >= 24*time.Hour }

func (tf Timeframe) String() string { return tf.Key }

// ParseTimeframe resolves a timeframe key.
func ParseTimeframe(key string) (Timeframe, error) {
	for _, tf := range []Timeframe{OneMinute, FiveMinute, FifteenMinute, OneDay} {
		if tf.Key == key {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("unknown timeframe %q", key)
}

// ---------------------------------------------------------------------------
// Asset reference state
// ---------------------------------------------------------------------------

// Reference holds the last known OHLCV per symbol. It is the fallback for
// backfill and for cells no real bar can resolve. The assembler is its only
// writer; reads may come from anywhere.
type Reference struct {
	mu     sync.RWMutex
	values map[string]OHLCV
}

// NewReference creates an empty reference state.
func NewReference() *Reference {
	return &Reference{values: make(map[string]OHLCV)}
}

// Get returns the reference values for symbol.
func (r *Reference) Get(symbol string) (OHLCV, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[symbol]
	return v, ok
}

// Set replaces the reference values for symbol.
func (r *Reference) Set(symbol string, v OHLCV) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[symbol] = v
}

// SetField updates one field of the symbol's reference values.
func (r *Reference) SetField(symbol string, f Field, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.values[symbol]
	cur.Set(f, v)
	r.values[symbol] = cur
}

// Snapshot returns a copy of all reference values.
func (r *Reference) Snapshot() map[string]OHLCV {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]OHLCV, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalType is the direction of a strategy signal.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// Signal is a trading intent emitted by a strategy. The simulator only
// records signals; it never executes them.
type Signal struct {
	ID         int64
	StrategyID string
	Symbol     string
	Type       SignalType
	Strength   float64
	Metadata   map[string]string
	CreatedAt  time.Time
}
