// Package temporal edits the date and the time of a timestamp independently.
package temporal

import (
	"fmt"
	"time"

	"github.com/rcliao/casefile/internal/model"
)

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ClockOf returns the hour and minute of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// MergeDate replaces the year, month and day of orig with d. Everything finer
// than a day and the location are kept. Out-of-range fields are normalised the
// way time.Date does.
func MergeDate(orig time.Time, d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day,
		orig.Hour(), orig.Minute(), orig.Second(), orig.Nanosecond(), orig.Location())
}

// MergeTime replaces the hour and minute of orig with c, keeping the date,
// seconds, nanoseconds and location.
func MergeTime(orig time.Time, c Clock) time.Time {
	y, m, d := orig.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, orig.Second(), orig.Nanosecond(), orig.Location())
}

// ParseDate parses an ISO date such as 2024-06-02.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseClock parses a 24-hour time such as 09:05.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(model.TimeLayout, s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return ClockOf(t), nil
}

// FormatDate renders the date of t the way case reports show it.
func FormatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

// FormatClock renders the time of t the way case reports show it.
func FormatClock(t time.Time) string {
	return t.Format(model.TimeLayout)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
