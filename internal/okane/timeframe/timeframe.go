// Package timeframe resolves relative time expressions ("today", "this
// week") and explicit YYYY-MM-DD strings into calendar date ranges.
//
// All values are wall-clock calendar dates in the process's local zone.  No
// timezone conversion is ever performed: the same local-date semantics apply
// to storage and querying, and comparisons use date-string equality rather
// than timestamp arithmetic, so results cannot drift across zone boundaries.
package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDateFormat is returned when a date string is not a valid
// YYYY-MM-DD calendar date (wrong pattern, or impossible like month 13).
var ErrInvalidDateFormat = errors.New("timeframe: invalid date format, expected YYYY-MM-DD")

// ErrInvalidRange is returned when a range's start date postdates its end.
var ErrInvalidRange = errors.New("timeframe: start date is after end date")

// ErrUnknownPeriod is returned for a period name outside the supported set.
var ErrUnknownPeriod = errors.New("timeframe: unknown period name")

// Date is a calendar date with no time component.
type Date struct {
	year  int
	month time.Month
	day   int
}

// ParseDate parses a strict YYYY-MM-DD string into a Date.  Impossible
// dates (month 13, February 30th) fail with ErrInvalidDateFormat.
func ParseDate(text string) (Date, error) {
	t, err := time.Parse(time.DateOnly, text)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, text)
	}
	return DateOf(t), nil
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// Today returns the current calendar date in the local zone.
func Today() Date {
	return DateOf(time.Now())
}

// String formats the date as YYYY-MM-DD.  ParseDate(d.String()) round-trips.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// Time returns the date at local midnight, for arithmetic only.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.Local)
}

// AddDays returns the date n calendar days after d (negative n goes back).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// After reports whether d is a later calendar date than o.
func (d Date) After(o Date) bool {
	return d.String() > o.String()
}

// Equal reports whether d and o are the same calendar date.
func (d Date) Equal(o Date) bool {
	return d == o
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Range is an inclusive calendar date interval with Start <= End.
type Range struct {
	Start Date
	End   Date
}

// Contains reports whether date falls inside the range, by date-string
// comparison.
func (r Range) Contains(d Date) bool {
	s := d.String()
	return s >= r.Start.String() && s <= r.End.String()
}

// String formats the range as "YYYY-MM-DD..YYYY-MM-DD".
func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// Period is a named relative time expression.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodThisWeek  Period = "this_week"
	PeriodThisMonth Period = "this_month"
	PeriodLastWeek  Period = "last_week"
	PeriodLastMonth Period = "last_month"
)

// ResolveNamed resolves a named period relative to the current local date.
func ResolveNamed(name Period) (Range, error) {
	return ResolveNamedAt(name, time.Now())
}

// ResolveNamedAt resolves a named period relative to ref.  Weeks start on
// Sunday (weekday index 0); month ranges span the first through the last
// calendar day of the month.
func ResolveNamedAt(name Period, ref time.Time) (Range, error) {
	today := DateOf(ref)

	switch name {
	case PeriodToday:
		return Range{Start: today, End: today}, nil

	case PeriodThisWeek:
		start := today.AddDays(-int(ref.Weekday()))
		return Range{Start: start, End: start.AddDays(6)}, nil

	case PeriodLastWeek:
		start := today.AddDays(-int(ref.Weekday()) - 7)
		return Range{Start: start, End: start.AddDays(6)}, nil

	case PeriodThisMonth:
		first := Date{year: today.year, month: today.month, day: 1}
		last := DateOf(first.Time().AddDate(0, 1, -1))
		return Range{Start: first, End: last}, nil

	case PeriodLastMonth:
		firstOfThis := Date{year: today.year, month: today.month, day: 1}
		first := DateOf(firstOfThis.Time().AddDate(0, -1, 0))
		last := firstOfThis.AddDays(-1)
		return Range{Start: first, End: last}, nil

	default:
		return Range{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, name)
	}
}

// ResolveExplicit builds a range from explicit date strings.  endText may be
// empty, in which case the range ends today.  A start after the end fails
// with ErrInvalidRange.
func ResolveExplicit(startText, endText string) (Range, error) {
	return ResolveExplicitAt(startText, endText, time.Now())
}

// ResolveExplicitAt is ResolveExplicit with an injectable reference time for
// the "end defaults to today" rule.
func ResolveExplicitAt(startText, endText string, ref time.Time) (Range, error) {
	start, err := ParseDate(startText)
	if err != nil {
		return Range{}, err
	}

	end := DateOf(ref)
	if endText != "" {
		end, err = ParseDate(endText)
		if err != nil {
			return Range{}, err
		}
	}

	if start.After(end) {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}
