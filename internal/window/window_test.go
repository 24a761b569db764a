package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
	"barsim/internal/feed"
)

var (
	t0      = time.Date(2022, 11, 3, 14, 30, 0, 0, time.UTC)
	symbols = []string{"AAPL", "TSLA", "XOM"}
)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func price(sym, min int) float64 { return float64(100*(sym+1) + min + 1) }

func mbar(sym, min int) domain.Bar {
	p := price(sym, min)
	return domain.Bar{Symbol: symbols[sym], Timestamp: at(min), Open: p, High: p + 0.5, Low: p - 0.5, Close: p, Volume: 1000, TradeCount: 10, VWAP: p}
}

func seededReference() *domain.Reference {
	ref := domain.NewReference()
	for i, s := range symbols {
		v := float64(10 * (i + 1))
		ref.Set(s, domain.OHLCV{Open: v, High: v + 1, Low: v - 1, Close: v, Volume: 5000, TradeCount: 50, VWAP: v})
	}
	return ref
}

func assertNoZeroCells(t *testing.T, w *Window) {
	t.Helper()
	for i, r := range w.Rows {
		for j, c := range r.Cells {
			for _, f := range domain.Fields {
				assert.NotZero(t, c.Get(f), "row %d %s %s", i, w.Symbols[j], f)
			}
		}
	}
}

func TestSinglePassEmptyProviderUsesReference(t *testing.T) {
	src := feed.NewStaticSource()
	ref := seededReference()
	a := NewAssembler(src, symbols, ref, nil)

	w, err := a.Assemble(context.Background(), domain.OneMinute, 1, at(10))
	require.NoError(t, err)
	require.Equal(t, 1, w.Len())
	assert.Equal(t, at(10), w.Rows[0].Time)
	for j, sym := range symbols {
		want, _ := ref.Get(sym)
		assert.Equal(t, want, w.Rows[0].Cells[j], sym)
	}
}

func TestSinglePassFillsGaps(t *testing.T) {
	src := feed.NewStaticSource()
	src.Add(domain.OneMinute, mbar(0, 8), mbar(0, 10), mbar(1, 8), mbar(1, 9), mbar(1, 10))
	a := NewAssembler(src, symbols, seededReference(), nil)

	w, err := a.Assemble(context.Background(), domain.OneMinute, 3, at(10))
	require.NoError(t, err)
	require.Equal(t, 3, w.Len())
	assert.Equal(t, []time.Time{at(8), at(9), at(10)}, w.Times())

	closes := w.Series(domain.FieldClose)
	assert.Equal(t, price(0, 10), closes[1][0], "AAPL minute 9 back-filled from minute 10")
	assert.Equal(t, price(1, 9), closes[1][1])
	assert.Equal(t, 30.0, closes[2][2], "XOM never traded, reference close")
	assertNoZeroCells(t, w)
}

func TestMultiPassFullPageSingleFetch(t *testing.T) {
	src := feed.NewStaticSource()
	for m := 0; m <= 10; m++ {
		for s := range symbols {
			src.Add(domain.OneMinute, mbar(s, m))
		}
	}
	ref := seededReference()
	a := NewAssembler(src, symbols, ref, nil)

	w, err := a.Assemble(context.Background(), domain.OneMinute, 5, at(10))
	require.NoError(t, err)
	assert.Len(t, src.Calls(), 1, "full pages need no backward stepping")
	require.Equal(t, 5, w.Len())

	for i, r := range w.Rows {
		assert.Equal(t, at(6+i), r.Time)
		for s := range symbols {
			assert.Equal(t, price(s, 6+i), r.Cells[s].Close)
		}
	}
}

func TestMultiPassPagesBackForSparseSymbol(t *testing.T) {
	src := feed.NewStaticSource()
	for m := 0; m <= 10; m++ {
		src.Add(domain.OneMinute, mbar(0, m), mbar(1, m))
	}
	for _, m := range []int{3, 4, 5, 9, 10} {
		src.Add(domain.OneMinute, mbar(2, m))
	}
	ref := seededReference()
	a := NewAssembler(src, symbols, ref, nil)

	w, err := a.Assemble(context.Background(), domain.OneMinute, 5, at(10))
	require.NoError(t, err)
	require.Len(t, src.Calls(), 2)
	assert.Equal(t, at(1), src.Calls()[1].Start)
	assert.Equal(t, at(5), src.Calls()[1].End)

	xom := w.Column(2, domain.FieldClose)
	assert.Equal(t, []float64{price(2, 3), price(2, 4), price(2, 5), price(2, 9), price(2, 10)}, xom)
	aapl := w.Column(0, domain.FieldClose)
	assert.Equal(t, price(0, 6), aapl[0])
	assert.Equal(t, price(0, 10), aapl[4])

	times := w.Times()
	for i := 1; i < len(times); i++ {
		assert.True(t, times[i].After(times[i-1]), "labels must be chronological")
	}
	assertNoZeroCells(t, w)
}

func TestMultiPassEmptyProviderTerminates(t *testing.T) {
	src := feed.NewStaticSource()
	ref := seededReference()
	a := NewAssembler(src, symbols, ref, nil)

	w, err := a.Assemble(context.Background(), domain.FiveMinute, 5, at(30))
	require.NoError(t, err)
	assert.Len(t, src.Calls(), 4, "one placeholder per page until limit-1 rows")
	require.Equal(t, 5, w.Len())
	for _, r := range w.Rows {
		assert.Equal(t, 10.0, r.Cells[0].Close)
		assert.Equal(t, 30.0, r.Cells[2].Close)
	}
	assert.Equal(t, at(30), w.Last().Time)
}

func TestMultiPassPageCap(t *testing.T) {
	src := feed.NewStaticSource()
	a := NewAssembler(src, symbols, seededReference(), nil)
	a.SetMaxPages(2)

	_, err := a.Assemble(context.Background(), domain.OneMinute, 5, at(30))
	assert.ErrorIs(t, err, domain.ErrWindowIncomplete)
	assert.Len(t, src.Calls(), 2)
}

func TestMultiPassUpdatesReference(t *testing.T) {
	src := feed.NewStaticSource()
	for m := 0; m <= 10; m++ {
		for s := range symbols {
			src.Add(domain.OneMinute, mbar(s, m))
		}
	}
	ref := seededReference()
	a := NewAssembler(src, symbols, ref, nil)

	w, err := a.Assemble(context.Background(), domain.OneMinute, 4, at(10))
	require.NoError(t, err)

	last := w.Last()
	for j, sym := range symbols {
		got, _ := ref.Get(sym)
		for _, f := range domain.Fields {
			assert.Equal(t, last.Cells[j].Get(f), got.Get(f), "%s %s", sym, f)
		}
	}
}

func TestSinglePassLeavesReference(t *testing.T) {
	src := feed.NewStaticSource()
	src.Add(domain.OneMinute, mbar(0, 10))
	ref := seededReference()
	before := ref.Snapshot()
	a := NewAssembler(src, symbols, ref, nil)

	_, err := a.Assemble(context.Background(), domain.OneMinute, 1, at(10))
	require.NoError(t, err)
	assert.Equal(t, before, ref.Snapshot())
}

func TestAssembleRejectsBadLimit(t *testing.T) {
	a := NewAssembler(feed.NewStaticSource(), symbols, seededReference(), nil)
	_, err := a.Assemble(context.Background(), domain.OneMinute, 0, at(0))
	assert.Error(t, err)
}

func TestResolveNearestNeighbour(t *testing.T) {
	known := func(v float64) cell {
		return cell{v: domain.OHLCV{Open: v, High: v, Low: v, Close: v, Volume: v, VWAP: v}, known: true}
	}
	grid := [][]cell{{{}}, {known(5)}, {{}}, {known(7)}, {{}}}
	zeroVol := known(9)
	zeroVol.v.Volume = 0
	grid = append(grid, []cell{zeroVol})

	ref := seededReference()
	rows := resolve(grid, []string{"AAPL"}, ref)

	var closes, vols []float64
	for _, r := range rows {
		closes = append(closes, r.Cells[0].Close)
		vols = append(vols, r.Cells[0].Volume)
	}
	assert.Equal(t, []float64{5, 5, 5, 7, 7, 9}, closes, "earlier first, then later")
	assert.Equal(t, 7.0, vols[5], "zero volume resolved per field")
	assert.Equal(t, int64(50), rows[0].Cells[0].TradeCount, "unknown cell takes reference trade count")

	empty := resolve([][]cell{{{}}}, []string{"XOM"}, ref)
	assert.Equal(t, 30.0, empty[0].Cells[0].Close, "reference is the last resort")
}

func TestSeedReferenceStepsBack(t *testing.T) {
	src := feed.NewStaticSource()
	// Session starts Monday 2022-11-07; Friday 11-04 has the last daily bars.
	monday := time.Date(2022, 11, 7, 14, 30, 0, 0, time.UTC)
	friday := time.Date(2022, 11, 4, 4, 0, 0, 0, time.UTC)
	thursday := friday.AddDate(0, 0, -1)
	src.Add(domain.OneDay,
		domain.Bar{Symbol: "AAPL", Timestamp: thursday, Close: 1},
		domain.Bar{Symbol: "AAPL", Timestamp: friday, Close: 2},
		domain.Bar{Symbol: "TSLA", Timestamp: friday, Close: 3},
		domain.Bar{Symbol: "XOM", Timestamp: thursday, Close: 4},
	)

	ref := domain.NewReference()
	require.NoError(t, SeedReference(context.Background(), src, symbols, ref, monday, 0))

	aapl, _ := ref.Get("AAPL")
	xom, _ := ref.Get("XOM")
	assert.Equal(t, 2.0, aapl.Close, "newest daily bar wins")
	assert.Equal(t, 4.0, xom.Close)
	assert.GreaterOrEqual(t, len(src.Calls()), 3, "weekend days are skipped")
}

func TestSeedReferenceGivesUp(t *testing.T) {
	ref := domain.NewReference()
	err := SeedReference(context.Background(), feed.NewStaticSource(), symbols, ref, t0, 3)
	assert.ErrorIs(t, err, domain.ErrNoReference)
}
