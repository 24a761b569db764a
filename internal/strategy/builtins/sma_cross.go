// Package builtins provides built-in strategy implementations that ship with
// the simulator.
package builtins

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"barsim/internal/domain"
	"barsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy on one
// timeframe. It generates a buy signal when the short-period SMA crosses
// above the long-period SMA, and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	timeframe   domain.Timeframe

	// prev holds the sign of short-long per symbol; 0 until known.
	prev map[string]int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods, evaluated on 1-minute closes.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		timeframe:   domain.OneMinute,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init validates the periods and clears crossover state.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod < 2 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: need 2 <= short < long, got %d/%d", s.shortPeriod, s.longPeriod)
	}
	s.prev = make(map[string]int)
	return nil
}

// OnMinute compares the short and long SMAs of each symbol's closes and
// signals when their order flips. Windows shorter than the long period are
// skipped.
func (s *SMACross) OnMinute(_ context.Context, snap *strategy.Snapshot) ([]domain.Signal, error) {
	w := snap.Window(s.timeframe)
	if w == nil || w.Len() < s.longPeriod {
		return nil, nil
	}

	var signals []domain.Signal
	for j, sym := range w.Symbols {
		closes := w.Column(j, domain.FieldClose)
		short := last(talib.Sma(closes, s.shortPeriod))
		long := last(talib.Sma(closes, s.longPeriod))

		sign := 0
		switch {
		case short > long:
			sign = 1
		case short < long:
			sign = -1
		}
		prev := s.prev[sym]
		if sign != 0 {
			s.prev[sym] = sign
		}
		if prev == 0 || sign == 0 || sign == prev {
			continue
		}

		typ := domain.SignalTypeBuy
		if sign < 0 {
			typ = domain.SignalTypeSell
		}
		signals = append(signals, domain.Signal{
			Symbol:   sym,
			Type:     typ,
			Strength: (short - long) / long,
			Metadata: map[string]string{
				"short_sma": fmt.Sprintf("%.4f", short),
				"long_sma":  fmt.Sprintf("%.4f", long),
				"timeframe": s.timeframe.Key,
			},
			CreatedAt: snap.Time,
		})
	}
	return signals, nil
}

func last(vals []float64) float64 {
	return vals[len(vals)-1]
}
