// Package datemath provides calendar-day arithmetic for compliance
// evaluation. All dates are date-only local calendar dates; time of day
// and timezone offsets are ignored.
package datemath

import (
	"math"
	"time"
)

// DateLayout is the ISO date-only layout used everywhere in the system.
const DateLayout = "2006-01-02"

// UnknownDays is returned when a date cannot be parsed. It is large
// enough that every threshold comparison (diff <= warningDays) reads as
// "not yet due", so bad data never produces an alert.
const UnknownDays = 999

// Clock supplies today's date. Injected so sweeps are testable
// against a fixed day.
type Clock interface {
	Today() time.Time
}

// SystemClock returns the current local calendar date.
type SystemClock struct{}

// Today implements Clock.
func (SystemClock) Today() time.Time {
	return Truncate(time.Now())
}

// FixedClock always reports the same day. Test helper.
type FixedClock struct {
	Day time.Time
}

// Today implements Clock.
func (c FixedClock) Today() time.Time {
	return Truncate(c.Day)
}

// Truncate drops the time-of-day component, keeping the local calendar date.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// Parse parses a date-only ISO string.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.Local)
}

// Format renders a date as a date-only ISO string.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// DaysBetween returns b minus a in whole calendar days. Rounding
// absorbs the 23/25-hour days around DST transitions.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Truncate(b).Sub(Truncate(a)).Hours() / 24))
}

// DaysUntil returns the number of whole days from today until the given
// date string. Malformed input yields UnknownDays rather than an error.
func DaysUntil(today time.Time, date string) int {
	d, err := Parse(date)
	if err != nil {
		return UnknownDays
	}
	return DaysBetween(today, d)
}

// IsBeforeToday reports whether the date string falls strictly before
// today. Malformed input reports false.
func IsBeforeToday(today time.Time, date string) bool {
	d, err := Parse(date)
	if err != nil {
		return false
	}
	return d.Before(Truncate(today))
}

// AddDays returns the date n days after t.
func AddDays(t time.Time, n int) time.Time {
	return Truncate(t).AddDate(0, 0, n)
}
