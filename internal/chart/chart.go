// Package chart records per-asset price and EMA series during a simulation
// and renders them as HTML candlestick pages.
package chart

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"barsim/internal/domain"
)

const (
	colorBull = "#34d399"
	colorBear = "#f87171"
	colorEMA  = "#3b82f6"

	chartWidthPx  = 1400
	chartHeightPx = 480
)

// Point is one recorded sample for a symbol on a timeframe.
type Point struct {
	Symbol    string
	Timeframe string
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	EMA       float64
}

// Publisher receives every recorded point, e.g. a live feed hub.
type Publisher interface {
	Publish(Point)
}

// Recorder accumulates points per symbol and timeframe. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	series  map[string]map[string][]Point
	symbols []string
	tfs     []string
	pub     Publisher
	log     *slog.Logger
}

// NewRecorder creates a recorder. pub may be nil.
func NewRecorder(pub Publisher) *Recorder {
	return &Recorder{
		series: make(map[string]map[string][]Point),
		pub:    pub,
		log:    slog.Default().With("component", "chart"),
	}
}

// Record stores one row of a timeframe. row.Cells and ema are indexed like
// symbols.
func (r *Recorder) Record(tf domain.Timeframe, t time.Time, symbols []string, row domain.Row, ema []float64) error {
	if len(row.Cells) != len(symbols) || len(ema) != len(symbols) {
		return fmt.Errorf("chart record %s: %d symbols, %d cells, %d ema values", tf, len(symbols), len(row.Cells), len(ema))
	}

	points := make([]Point, len(symbols))
	r.mu.Lock()
	r.noteTimeframe(tf.Key)
	for j, sym := range symbols {
		c := row.Cells[j]
		p := Point{
			Symbol:    sym,
			Timeframe: tf.Key,
			Time:      t.UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			EMA:       ema[j],
		}
		bySym, ok := r.series[sym]
		if !ok {
			bySym = make(map[string][]Point)
			r.series[sym] = bySym
			r.symbols = append(r.symbols, sym)
		}
		bySym[tf.Key] = append(bySym[tf.Key], p)
		points[j] = p
	}
	r.mu.Unlock()

	if r.pub != nil {
		for _, p := range points {
			r.pub.Publish(p)
		}
	}
	return nil
}

func (r *Recorder) noteTimeframe(key string) {
	for _, k := range r.tfs {
		if k == key {
			return
		}
	}
	r.tfs = append(r.tfs, key)
}

// Points returns a copy of the recorded series for symbol on timeframe key.
func (r *Recorder) Points(symbol, tf string) []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Point(nil), r.series[symbol][tf]...)
}

// Render writes one <prefix>_<SYMBOL>.html page per recorded symbol into dir
// and returns the written paths.
func (r *Recorder) Render(dir, prefix string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chart dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var paths []string
	for _, sym := range r.symbols {
		page := components.NewPage()
		page.SetLayout(components.PageFlexLayout)
		page.PageTitle = fmt.Sprintf("%s %s", prefix, sym)
		for _, tf := range r.tfs {
			pts := r.series[sym][tf]
			if len(pts) == 0 {
				continue
			}
			page.AddCharts(buildKline(sym, tf, pts))
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%s.html", prefix, strings.ToUpper(sym)))
		if err := writePage(path, page); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	r.log.Info("rendered charts", "dir", dir, "pages", len(paths))
	return paths, nil
}

func writePage(path string, page *components.Page) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}

func buildKline(symbol, tf string, pts []Point) *charts.Kline {
	x := make([]string, len(pts))
	candles := make([]opts.KlineData, len(pts))
	ema := make([]opts.LineData, len(pts))
	for i, p := range pts {
		x[i] = p.Time.Format("01-02 15:04")
		candles[i] = opts.KlineData{Value: [4]float64{p.Open, p.Close, p.Low, p.High}}
		ema[i] = opts.LineData{Value: p.EMA}
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", chartWidthPx),
			Height: fmt.Sprintf("%dpx", chartHeightPx),
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s %s", symbol, tf)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetXAxis(x).AddSeries("Price", candles,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	line := charts.NewLine()
	line.SetXAxis(x).AddSeries("EMA", ema,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEMA, Width: 2}),
	)
	kline.Overlap(line)
	return kline
}
