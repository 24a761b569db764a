package live

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"barsim/internal/chart"
)

func pointToStruct(p chart.Point) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"symbol":    p.Symbol,
		"timeframe": p.Timeframe,
		"time":      p.Time.UTC().Format(time.RFC3339),
		"open":      p.Open,
		"high":      p.High,
		"low":       p.Low,
		"close":     p.Close,
		"volume":    p.Volume,
		"ema":       p.EMA,
	})
}

func structToPoint(s *structpb.Struct) (chart.Point, error) {
	f := s.GetFields()
	ts, err := time.Parse(time.RFC3339, f["time"].GetStringValue())
	if err != nil {
		return chart.Point{}, fmt.Errorf("parsing point time: %w", err)
	}
	return chart.Point{
		Symbol:    f["symbol"].GetStringValue(),
		Timeframe: f["timeframe"].GetStringValue(),
		Time:      ts,
		Open:      f["open"].GetNumberValue(),
		High:      f["high"].GetNumberValue(),
		Low:       f["low"].GetNumberValue(),
		Close:     f["close"].GetNumberValue(),
		Volume:    f["volume"].GetNumberValue(),
		EMA:       f["ema"].GetNumberValue(),
	}, nil
}

func filterToStruct(f Filter) *structpb.Struct {
	s, _ := structpb.NewStruct(map[string]any{
		"symbol":    f.Symbol,
		"timeframe": f.Timeframe,
	})
	return s
}

func structToFilter(s *structpb.Struct) Filter {
	f := s.GetFields()
	return Filter{
		Symbol:    f["symbol"].GetStringValue(),
		Timeframe: f["timeframe"].GetStringValue(),
	}
}
