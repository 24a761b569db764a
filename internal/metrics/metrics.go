// Package metrics instruments the bar pipeline with Prometheus collectors.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Synthetic bar kinds.
const (
	KindGap         = "gap"
	KindBackfill    = "backfill"
	KindPlaceholder = "placeholder"
)

// Recorder holds the simulator's collectors, registered on one registry.
type Recorder struct {
	registry        *prometheus.Registry
	providerReqs    *prometheus.CounterVec
	providerRetries prometheus.Counter
	syntheticBars   *prometheus.CounterVec
	assemblyPages   *prometheus.HistogramVec
	ticks           prometheus.Counter
	fetchLatency    *prometheus.HistogramVec
}

// New creates a Recorder on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		providerReqs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_provider_requests_total",
				Help: "Bar requests sent to the market-data provider",
			},
			[]string{"timeframe"},
		),
		providerRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "barsim_provider_retries_total",
				Help: "Provider requests retried after a transient failure",
			},
		),
		syntheticBars: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barsim_synthetic_bars_total",
				Help: "Rows synthesized by the repair pipeline",
			},
			[]string{"kind"},
		),
		assemblyPages: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsim_assembly_pages",
				Help:    "Provider pages needed to assemble one window",
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
			[]string{"timeframe"},
		),
		ticks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "barsim_ticks_total",
				Help: "Simulated minutes processed",
			},
		),
		fetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barsim_fetch_duration_seconds",
				Help:    "Duration of provider fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"timeframe"},
		),
	}
}

// Registry exposes the underlying registry for tests and handlers.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordProviderRequest counts one provider call and its latency.
func (r *Recorder) RecordProviderRequest(timeframe string, d time.Duration) {
	if r == nil {
		return
	}
	r.providerReqs.WithLabelValues(timeframe).Inc()
	r.fetchLatency.WithLabelValues(timeframe).Observe(d.Seconds())
}

// RecordProviderRetry counts one retried provider call.
func (r *Recorder) RecordProviderRetry() {
	if r == nil {
		return
	}
	r.providerRetries.Inc()
}

// RecordSynthetic adds n synthesized rows of the given kind.
func (r *Recorder) RecordSynthetic(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.syntheticBars.WithLabelValues(kind).Add(float64(n))
}

// RecordAssembly observes the page count of one window assembly.
func (r *Recorder) RecordAssembly(timeframe string, pages int) {
	if r == nil {
		return
	}
	r.assemblyPages.WithLabelValues(timeframe).Observe(float64(pages))
}

// RecordTick counts one simulated minute.
func (r *Recorder) RecordTick() {
	if r == nil {
		return
	}
	r.ticks.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
