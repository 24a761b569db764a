package chart

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barsim/internal/domain"
)

type capture struct {
	mu  sync.Mutex
	got []Point
}

func (c *capture) Publish(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
}

func testRow(vals ...float64) domain.Row {
	var r domain.Row
	for _, v := range vals {
		r.Cells = append(r.Cells, domain.OHLCV{Open: v, High: v + 1, Low: v - 1, Close: v, Volume: 100})
	}
	return r
}

func TestRecordPublishesAndStores(t *testing.T) {
	pub := &capture{}
	r := NewRecorder(pub)
	at := time.Date(2022, 11, 3, 14, 30, 0, 0, time.UTC)
	syms := []string{"AAPL", "TSLA"}

	require.NoError(t, r.Record(domain.OneMinute, at, syms, testRow(10, 20), []float64{9.5, 19.5}))
	require.NoError(t, r.Record(domain.OneMinute, at.Add(time.Minute), syms, testRow(11, 21), []float64{9.7, 19.7}))

	pts := r.Points("TSLA", "1Min")
	require.Len(t, pts, 2)
	assert.Equal(t, 21.0, pts[1].Close)
	assert.Equal(t, 19.7, pts[1].EMA)
	assert.Len(t, pub.got, 4)
	assert.Equal(t, "AAPL", pub.got[0].Symbol)
}

func TestRecordRejectsMismatch(t *testing.T) {
	r := NewRecorder(nil)
	err := r.Record(domain.OneMinute, time.Now(), []string{"AAPL"}, testRow(1, 2), []float64{1})
	assert.Error(t, err)
}

func TestRenderWritesPagePerSymbol(t *testing.T) {
	r := NewRecorder(nil)
	at := time.Date(2022, 11, 3, 14, 30, 0, 0, time.UTC)
	syms := []string{"AAPL", "XOM"}
	for i := 0; i < 5; i++ {
		v := float64(100 + i)
		require.NoError(t, r.Record(domain.OneMinute, at.Add(time.Duration(i)*time.Minute), syms, testRow(v, v/2), []float64{v, v / 2}))
	}
	require.NoError(t, r.Record(domain.FiveMinute, at, syms, testRow(100, 50), []float64{100, 50}))

	dir := filepath.Join(t.TempDir(), "charts")
	paths, err := r.Render(dir, "run1")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "run1_AAPL.html"), paths[0])

	body, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	html := string(body)
	assert.True(t, strings.Contains(html, "XOM 1Min"))
	assert.True(t, strings.Contains(html, "XOM 5Min"))
}
