package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"barsim/internal/chart"
)

func TestBoardKeepsLatestPoint(t *testing.T) {
	b := newBoard()
	t0 := time.Date(2022, 11, 3, 14, 30, 0, 0, time.UTC)

	b.add(chart.Point{Symbol: "XOM", Timeframe: "1Min", Time: t0.Add(time.Minute), Close: 101, EMA: 100})
	b.add(chart.Point{Symbol: "XOM", Timeframe: "1Min", Time: t0, Close: 99, EMA: 100})
	b.add(chart.Point{Symbol: "AAPL", Timeframe: "5Min", Time: t0, Close: 150, EMA: 0})

	assert.Equal(t, 3, b.points)
	assert.Equal(t, 101.0, b.latest["XOM"]["1Min"].Close)
	assert.Equal(t, []string{"AAPL", "XOM"}, b.symbols())
	assert.Equal(t, t0.Add(time.Minute), b.last)
}

func TestBoardRender(t *testing.T) {
	b := newBoard()
	t0 := time.Date(2022, 11, 3, 14, 30, 0, 0, time.UTC)
	b.add(chart.Point{Symbol: "XOM", Timeframe: "1Min", Time: t0, Close: 110, EMA: 100})

	out := b.render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "XOM")
	assert.Contains(t, lines[1], "110.00")
	assert.Contains(t, lines[1], "+10.00")

	assert.Contains(t, b.header("localhost:50051"), "points: 1")
}
