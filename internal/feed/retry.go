package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"barsim/internal/domain"
	"barsim/internal/metrics"
	"barsim/internal/util"
)

// Retrying wraps a BarSource with bounded exponential-backoff retries on
// transient provider errors. Other errors pass through unchanged.
type Retrying struct {
	source   BarSource
	attempts int
	delay    time.Duration
	metrics  *metrics.Recorder
	log      *slog.Logger
}

// NewRetrying wraps source. attempts < 1 means one attempt.
func NewRetrying(source BarSource, attempts int, delay time.Duration, rec *metrics.Recorder) *Retrying {
	return &Retrying{
		source:   source,
		attempts: max(attempts, 1),
		delay:    delay,
		metrics:  rec,
		log:      slog.Default().With("component", "feed"),
	}
}

// FetchBars implements BarSource.
func (r *Retrying) FetchBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	var (
		bars  []domain.Bar
		tries int
	)
	err := util.RetryIf(ctx, r.attempts, r.delay, isTransient, func() error {
		tries++
		if tries > 1 {
			r.metrics.RecordProviderRetry()
			r.log.Warn("retrying bar fetch", "timeframe", tf.Key, "attempt", tries, "start", start, "end", end)
		}
		began := time.Now()
		var err error
		bars, err = r.source.FetchBars(ctx, symbols, tf, start, end)
		r.metrics.RecordProviderRequest(tf.Key, time.Since(began))
		return err
	})
	switch {
	case err == nil:
		return bars, nil
	case isTransient(err):
		return nil, fmt.Errorf("fetching %s bars after %d attempts: %w: %w", tf, tries, domain.ErrRetriesExhausted, err)
	default:
		return nil, err
	}
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransientProvider)
}
