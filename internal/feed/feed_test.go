package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
	"barsim/internal/metrics"
	"barsim/internal/store"
)

var t0 = time.Date(2022, 11, 3, 14, 30, 0, 0, time.UTC)

func minuteBar(sym string, min int, o, h, l, c, v float64) domain.Bar {
	return domain.Bar{Symbol: sym, Timestamp: t0.Add(time.Duration(min) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v, TradeCount: 1, VWAP: c}
}

func transient(msg string) error {
	return &domain.ProviderError{Op: "test", Transient: true, Err: errors.New(msg)}
}

func TestStaticSourceFilters(t *testing.T) {
	src := NewStaticSource()
	src.Add(domain.OneMinute,
		minuteBar("AAPL", 0, 1, 1, 1, 1, 1),
		minuteBar("AAPL", 5, 1, 1, 1, 1, 1),
		minuteBar("XOM", 1, 1, 1, 1, 1, 1),
	)

	got, err := src.FetchBars(context.Background(), []string{"AAPL"}, domain.OneMinute, t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Len(t, src.Calls(), 1)
}

func TestRetryingRecoversFromTransient(t *testing.T) {
	src := NewStaticSource()
	src.Add(domain.OneMinute, minuteBar("AAPL", 0, 1, 1, 1, 1, 1))
	src.Errs = []error{transient("429"), transient("503")}

	rec := metrics.New()
	r := NewRetrying(src, 5, 0, rec)
	got, err := r.FetchBars(context.Background(), []string{"AAPL"}, domain.OneMinute, t0, t0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, src.Calls(), 3)
}

func TestRetryingExhausted(t *testing.T) {
	src := NewStaticSource()
	src.Errs = []error{transient("a"), transient("b"), transient("c")}

	r := NewRetrying(src, 3, 0, nil)
	_, err := r.FetchBars(context.Background(), []string{"AAPL"}, domain.OneMinute, t0, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrTransientProvider)
	assert.Len(t, src.Calls(), 3)
}

func TestRetryingFatalPassesThrough(t *testing.T) {
	fatal := &domain.ProviderError{Op: "test", Err: errors.New("403 forbidden")}
	src := NewStaticSource()
	src.Errs = []error{fatal}

	r := NewRetrying(src, 5, 0, nil)
	_, err := r.FetchBars(context.Background(), []string{"AAPL"}, domain.OneMinute, t0, t0)
	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Len(t, src.Calls(), 1)
}

func TestIsTransientAlpacaError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&alpaca.APIError{StatusCode: 429}, true},
		{fmt.Errorf("wrapped: %w", &alpaca.APIError{StatusCode: 502}), true},
		{&alpaca.APIError{StatusCode: 422}, false},
		{context.DeadlineExceeded, true},
		{errors.New("invalid symbol"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsTransientAlpacaError(c.err), "%v", c.err)
	}
}

func TestAlpacaTimeFrame(t *testing.T) {
	assert.Equal(t, 15, alpacaTimeFrame(domain.FifteenMinute).N)
	assert.Equal(t, 1, alpacaTimeFrame(domain.OneDay).N)
}

func TestResampleFiveMinute(t *testing.T) {
	minutes := []domain.Bar{
		minuteBar("TSLA", 0, 10, 12, 9, 11, 100),
		minuteBar("TSLA", 1, 11, 15, 10, 14, 300),
		minuteBar("TSLA", 4, 14, 14, 8, 9, 100),
		minuteBar("TSLA", 5, 9, 10, 9, 10, 50),
	}
	got := Resample(minutes, domain.FiveMinute, time.UTC)
	require.Len(t, got, 2)

	b := got[0]
	assert.Equal(t, t0, b.Timestamp)
	assert.Equal(t, 10.0, b.Open)
	assert.Equal(t, 15.0, b.High)
	assert.Equal(t, 8.0, b.Low)
	assert.Equal(t, 9.0, b.Close)
	assert.Equal(t, 500.0, b.Volume)
	assert.Equal(t, int64(3), b.TradeCount)
	assert.InDelta(t, (11*100+14*300+9*100)/500.0, b.VWAP, 1e-9)

	assert.Equal(t, t0.Add(5*time.Minute), got[1].Timestamp)
}

func TestResampleDailyUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2022-11-03 16:59 PDT and 2022-11-04 06:30 PDT fall on different days.
	a := domain.Bar{Symbol: "XOM", Timestamp: time.Date(2022, 11, 3, 23, 59, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	b := domain.Bar{Symbol: "XOM", Timestamp: time.Date(2022, 11, 4, 13, 30, 0, 0, time.UTC), Open: 2, High: 2, Low: 2, Close: 2, Volume: 1}
	got := Resample([]domain.Bar{a, b}, domain.OneDay, loc)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2022, 11, 3, 0, 0, 0, 0, loc).UTC(), got[0].Timestamp)
}

func TestParquetSourceReplay(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	var minutes []domain.Bar
	for i := 0; i < 15; i++ {
		c := float64(100 + i)
		minutes = append(minutes, minuteBar("AAPL", i, c, c+1, c-1, c, 10))
	}
	require.NoError(t, ps.WriteBars(ctx, domain.OneMinute, minutes))

	src := NewParquetSource(ps, time.UTC)

	ones, err := src.FetchBars(ctx, []string{"AAPL"}, domain.OneMinute, t0.Add(3*time.Minute), t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Len(t, ones, 3)

	fives, err := src.FetchBars(ctx, []string{"AAPL", "XOM"}, domain.FiveMinute, t0, t0.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, fives, 3)
	assert.Equal(t, 104.0, fives[0].Close)
	assert.Equal(t, 114.0, fives[2].Close, "last bucket is read through its final minute")
}
