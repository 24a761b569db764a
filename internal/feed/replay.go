package feed

import (
	"context"
	"fmt"
	"time"

	"barsim/internal/domain"
	"barsim/internal/store"
)

// Compile-time interface check.
var _ BarSource = (*ParquetSource)(nil)

// ParquetSource replays archived 1-minute bars. Coarser timeframes are
// resampled from minute bars on the fly.
type ParquetSource struct {
	store store.BarStore
	loc   *time.Location
}

// NewParquetSource serves bars from s. Daily buckets are cut on calendar
// dates in loc.
func NewParquetSource(s store.BarStore, loc *time.Location) *ParquetSource {
	if loc == nil {
		loc = time.UTC
	}
	return &ParquetSource{store: s, loc: loc}
}

// FetchBars implements BarSource. A bucket is returned when its start time
// lies in [start, end].
func (p *ParquetSource) FetchBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	readEnd := end.Add(tf.Step - time.Minute)
	if tf.IsDaily() {
		readEnd = bucketStart(end, tf, p.loc).AddDate(0, 0, 1).Add(-time.Minute)
	}

	var out []domain.Bar
	for _, sym := range symbols {
		minutes, err := p.store.ReadBars(ctx, sym, domain.OneMinute, bucketStart(start, tf, p.loc), readEnd)
		if err != nil {
			return nil, fmt.Errorf("replaying %s: %w", sym, err)
		}
		for _, b := range Resample(minutes, tf, p.loc) {
			if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// Resample aggregates chronologically ordered 1-minute bars of one symbol
// into tf buckets labelled by bucket start. Open is the first open, close the
// last close, volume and trade count are summed and vwap is volume-weighted.
func Resample(minutes []domain.Bar, tf domain.Timeframe, loc *time.Location) []domain.Bar {
	if tf.Step <= time.Minute {
		return minutes
	}

	var (
		out    []domain.Bar
		cur    domain.Bar
		notion float64
		open   bool
	)
	flush := func() {
		if !open {
			return
		}
		if cur.Volume > 0 {
			cur.VWAP = notion / cur.Volume
		}
		out = append(out, cur)
	}

	for _, m := range minutes {
		bs := bucketStart(m.Timestamp, tf, loc)
		if !open || !bs.Equal(cur.Timestamp) {
			flush()
			cur = domain.Bar{Symbol: m.Symbol, Timestamp: bs, Open: m.Open, High: m.High, Low: m.Low}
			notion = 0
			open = true
		}
		cur.High = max(cur.High, m.High)
		cur.Low = min(cur.Low, m.Low)
		cur.Close = m.Close
		cur.Volume += m.Volume
		cur.TradeCount += m.TradeCount
		cur.VWAP = m.VWAP
		notion += m.VWAP * m.Volume
	}
	flush()
	return out
}

func bucketStart(t time.Time, tf domain.Timeframe, loc *time.Location) time.Time {
	if tf.IsDaily() {
		lt := t.In(loc)
		return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).UTC()
	}
	return t.Truncate(tf.Step).UTC()
}
