package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"barsim/internal/domain"
	"barsim/internal/util"
)

// Compile-time interface check.
var _ BarSource = (*AlpacaSource)(nil)

// AlpacaOptions configures an AlpacaSource.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, used for the calendar
	DataURL   string
	Feed      string // "sip" or "iex"
	// RateLimitPerMin throttles requests when positive.
	RateLimitPerMin int
}

// AlpacaSource fetches bars from the Alpaca market-data API.
type AlpacaSource struct {
	data    *marketdata.Client
	trading *alpaca.Client
	feed    string
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaSource creates a source from the given credentials and endpoints.
func NewAlpacaSource(o AlpacaOptions) *AlpacaSource {
	dopts := marketdata.ClientOpts{
		APIKey:    o.APIKey,
		APISecret: o.APISecret,
	}
	if o.DataURL != "" {
		dopts.BaseURL = o.DataURL
	}

	feed := o.Feed
	if feed == "" {
		feed = "sip"
	}

	s := &AlpacaSource{
		data: marketdata.NewClient(dopts),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    o.APIKey,
			APISecret: o.APISecret,
			BaseURL:   o.BaseURL,
		}),
		feed: feed,
		log:  slog.Default().With("component", "alpaca"),
	}
	if o.RateLimitPerMin > 0 {
		// One tick fetches the 1, 5 and 15 minute bars together.
		s.limiter = util.NewBurstRateLimiter(o.RateLimitPerMin, 3)
	}
	return s
}

// FetchBars requests raw (unadjusted) bars for all symbols in one call and
// flattens the result in symbols order.
func (s *AlpacaSource) FetchBars(ctx context.Context, symbols []string, tf domain.Timeframe, start, end time.Time) ([]domain.Bar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	multiBars, err := s.data.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame:  alpacaTimeFrame(tf),
		Adjustment: marketdata.Raw,
		Start:      start,
		End:        end,
		Feed:       s.feed,
	})
	if err != nil {
		return nil, &domain.ProviderError{Op: "GetMultiBars", Transient: IsTransientAlpacaError(err), Err: err}
	}

	var bars []domain.Bar
	for _, symbol := range symbols {
		for _, ab := range multiBars[symbol] {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp.UTC(),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     float64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	s.log.Debug("fetched bars", "timeframe", tf.Key, "symbols", len(symbols), "bars", len(bars))
	return bars, nil
}

// Session returns the regular trading session for day ("2006-01-02") from
// the Alpaca calendar. Calendar times are exchange-local (America/New_York).
func (s *AlpacaSource) Session(day string) (util.Session, error) {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return util.Session{}, fmt.Errorf("parsing day %q: %w", day, err)
	}
	cal, err := s.trading.GetCalendar(alpaca.GetCalendarRequest{Start: d, End: d})
	if err != nil {
		return util.Session{}, &domain.ProviderError{Op: "GetCalendar", Transient: IsTransientAlpacaError(err), Err: err}
	}
	if len(cal) == 0 || cal[0].Date != day {
		return util.Session{}, fmt.Errorf("%s: %w", day, domain.ErrNotTradingDay)
	}

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return util.Session{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	return util.NewSession(day, cal[0].Open, cal[0].Close, et)
}

// alpacaTimeFrame maps a timeframe onto the API's minute or day units.
func alpacaTimeFrame(tf domain.Timeframe) marketdata.TimeFrame {
	if tf.IsDaily() {
		return marketdata.OneDay
	}
	return marketdata.NewTimeFrame(tf.Minutes(), marketdata.Min)
}

// IsTransientAlpacaError reports whether err is worth retrying: rate limits,
// server errors, timeouts and dropped connections.
func IsTransientAlpacaError(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, context.DeadlineExceeded)
}
