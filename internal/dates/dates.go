// Package dates holds the pure date arithmetic the tracker derives from:
// whole-day differences with ceiling rounding and day offsets. No wall
// clock is read here.
package dates

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DaysBetween returns the whole number of days from a to b, rounding any
// partial day up. Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	if d == 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// AddDays offsets t by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// WithinDays reports whether t falls on or before the moment n days
// after now.
func WithinDays(t, now time.Time, n int) bool {
	return !t.After(now.Add(time.Duration(n) * day))
}
