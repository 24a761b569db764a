package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(cols ...[]float64) [][]float64 {
	out := make([][]float64, len(cols[0]))
	for i := range out {
		for _, c := range cols {
			out[i] = append(out[i], c[i])
		}
	}
	return out
}

func TestEMASeedsWithSMA(t *testing.T) {
	closes := make([]float64, 13)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	e := NewEMA(12, 1)
	got, err := e.Update(rows(closes))
	require.NoError(t, err)
	// Seed is the mean of the last 12 closes (2..13), then one step to 13.
	k := 2.0 / 13
	assert.InDelta(t, (13-7.5)*k+7.5, got[0], 1e-9)
}

func TestEMASmoothing(t *testing.T) {
	e := NewEMA(3, 2)
	// k = 2/(3+1) = 0.5
	got, err := e.Update(rows([]float64{1, 2, 3}, []float64{10, 10, 10}))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got[0], 1e-9)
	assert.InDelta(t, 10.0, got[1], 1e-9)

	got, err = e.Update(rows([]float64{2, 3, 6}, []float64{10, 10, 14}))
	require.NoError(t, err)
	assert.InDelta(t, (6-2.5)*0.5+2.5, got[0], 1e-9)
	assert.InDelta(t, 12.0, got[1], 1e-9)
}

func TestEMAShortHistory(t *testing.T) {
	e := NewEMA(12, 1)
	got, err := e.Update(rows([]float64{4, 6}))
	require.NoError(t, err)
	k := 2.0 / 13
	assert.InDelta(t, (6-5)*k+5, got[0], 1e-9)
}

func TestEMARejectsRaggedRows(t *testing.T) {
	e := NewEMA(12, 2)
	_, err := e.Update([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
	_, err = e.Update(nil)
	assert.Error(t, err)
}

func TestEMAReset(t *testing.T) {
	e := NewEMA(2, 1)
	_, _ = e.Update([][]float64{{4}, {6}})
	e.Reset()
	got, err := e.Update([][]float64{{10}})
	// A single close seeds at itself, so the step is a no-op.
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got[0], 1e-9)
	assert.Equal(t, 2, e.Period())
}
