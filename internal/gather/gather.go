// Package gather archives provider data for offline replay.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run gathers until done or ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days lists every calendar day of the range as "2006-01-02".
func (r DateRange) Days() []string {
	var days []string
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days
}
