package repair

import (
	"time"

	"barsim/internal/domain"
)

// FillGaps inserts synthetic rows so every symbol run in a reordered table
// advances by exactly one step and covers [start, end].
//
//   - Inside a run, a missing slot takes the values of the next real row.
//   - A run is extended back to start with its first row's values.
//   - A run is extended forward to end with its last row's values.
//
// Slot equality is decided at minute precision so sub-minute jitter in
// provider timestamps never produces extra rows. Placeholder rows are
// carried like any other row and stay placeholders.
func FillGaps(bars []domain.Bar, step time.Duration, start, end time.Time) []domain.Bar {
	if len(bars) == 0 || step <= 0 {
		return bars
	}
	start = start.UTC()
	endMin := truncMinute(end.UTC())

	out := make([]domain.Bar, 0, len(bars))
	for i, b := range bars {
		switch {
		case i == 0:
			out = fillBefore(out, b, start, step)
		case bars[i-1].Symbol == b.Symbol:
			expected := bars[i-1].Timestamp.Add(step)
			for truncMinute(expected).Before(truncMinute(b.Timestamp)) {
				out = append(out, synthetic(b, expected))
				expected = expected.Add(step)
			}
		default:
			out = fillAfter(out, bars[i-1], endMin, step)
			out = fillBefore(out, b, start, step)
		}
		out = append(out, b)
	}
	return fillAfter(out, bars[len(bars)-1], endMin, step)
}

// fillBefore back-fills b's values from start up to b's slot.
func fillBefore(out []domain.Bar, b domain.Bar, start time.Time, step time.Duration) []domain.Bar {
	for t := start; truncMinute(t).Before(truncMinute(b.Timestamp)); t = t.Add(step) {
		out = append(out, synthetic(b, t))
	}
	return out
}

// fillAfter forward-fills last's values until its slot reaches endMin.
func fillAfter(out []domain.Bar, last domain.Bar, endMin time.Time, step time.Duration) []domain.Bar {
	for t := last.Timestamp; truncMinute(t).Before(endMin); {
		t = t.Add(step)
		out = append(out, synthetic(last, t))
	}
	return out
}

func synthetic(src domain.Bar, ts time.Time) domain.Bar {
	src.Timestamp = ts
	src.Synthetic = true
	return src
}

func truncMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
