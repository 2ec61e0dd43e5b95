package dbtime

import (
	"time"
)

// Clock is the single source of "now" for anything that depends on the calendar.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// Date is a civil date stored as midnight UTC, the representation used for
// every DATE column (week boundaries, enrolment dates).
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the civil date of t as seen in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	tt := t.In(loc)
	return Date(tt.Year(), tt.Month(), tt.Day())
}

// Today is DateOf(clock.Now(), loc).
func Today(c Clock, loc *time.Location) time.Time {
	return DateOf(c.Now(), loc)
}

const DateLayout = "2006-01-02"

// ParseDate accepts DateLayout.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t.Year(), t.Month(), t.Day()), nil
}

// MondayIndexed returns 0 for Monday through 6 for Sunday.
func MondayIndexed(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// At combines a civil date with a time of day in loc.
func At(date time.Time, tod Tod, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, loc)
}
