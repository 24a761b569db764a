package util

import (
	"fmt"
	"time"
)

// Session is one trading day's open and close instants.
type Session struct {
	Open  time.Time
	Close time.Time
}

// NewSession parses a trading day ("2006-01-02") with open and close
// clock times ("15:04") in loc.
func NewSession(day, open, close string, loc *time.Location) (Session, error) {
	o, err := time.ParseInLocation("2006-01-02 15:04", day+" "+open, loc)
	if err != nil {
		return Session{}, fmt.Errorf("parsing session open: %w", err)
	}
	c, err := time.ParseInLocation("2006-01-02 15:04", day+" "+close, loc)
	if err != nil {
		return Session{}, fmt.Errorf("parsing session close: %w", err)
	}
	if !c.After(o) {
		return Session{}, fmt.Errorf("session close %s is not after open %s", close, open)
	}
	return Session{Open: o, Close: c}, nil
}

// Contains reports whether t falls in [Open, Close).
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.Open) && t.Before(s.Close)
}

// Minutes is the session length in minutes.
func (s Session) Minutes() int {
	return int(s.Close.Sub(s.Open) / time.Minute)
}

// MinuteOfHour returns t's minute in loc. Sessions in zones with
// non-hour offsets would otherwise misalign bar boundaries.
func MinuteOfHour(t time.Time, loc *time.Location) int {
	return t.In(loc).Minute()
}

// TruncateMinute drops seconds and sub-second precision.
func TruncateMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
