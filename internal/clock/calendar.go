package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
)

// Local pairs a clock source with the fixed zone all attendance days are computed in.
type Local struct {
	clock quartz.Clock
	loc   *time.Location
}

// NewLocal builds a Local. A nil clock falls back to the real wall clock.
func NewLocal(clk quartz.Clock, loc *time.Location) *Local {
	if clk == nil {
		clk = quartz.NewReal()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Local{clock: clk, loc: loc}
}

// Now returns the current instant in the configured zone, truncated to whole seconds.
func (l *Local) Now() time.Time {
	return l.clock.Now().In(l.loc).Truncate(time.Second)
}

// Today returns the current calendar day in the configured zone.
func (l *Local) Today() Date {
	return DateOf(l.Now())
}

// Location returns the configured zone.
func (l *Local) Location() *time.Location {
	return l.loc
}

// Clock exposes the underlying clock for tickers.
func (l *Local) Clock() quartz.Clock {
	return l.clock
}

// ParseOffset turns "+09:00", "-0530" or "UTC" into a fixed zone.
func ParseOffset(value string) (*time.Location, error) {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "UTC") || v == "Z" {
		return time.UTC, nil
	}

	sign := 1
	switch v[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, fmt.Errorf("offset %q must start with + or -", value)
	}

	digits := strings.ReplaceAll(v[1:], ":", "")
	if len(digits) != 2 && len(digits) != 4 {
		return nil, fmt.Errorf("offset %q must look like +HH or +HH:MM", value)
	}
	hours, err := strconv.Atoi(digits[:2])
	if err != nil {
		return nil, fmt.Errorf("offset %q: %w", value, err)
	}
	minutes := 0
	if len(digits) == 4 {
		if minutes, err = strconv.Atoi(digits[2:]); err != nil {
			return nil, fmt.Errorf("offset %q: %w", value, err)
		}
	}
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("offset %q out of range", value)
	}

	seconds := sign * (hours*3600 + minutes*60)
	return time.FixedZone(v, seconds), nil
}

// mondayIndex maps Monday to 0 and Sunday to 6.
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// WeekOfMonth numbers the Monday-start week of the month that contains d, starting at 1.
func WeekOfMonth(d Date) int {
	first := NewDate(d.Year, d.Month, 1)
	adjusted := d.Day + mondayIndex(first.Weekday())
	return (adjusted-1)/7 + 1
}

// StartOfWeek returns the Monday on or before d.
func StartOfWeek(d Date) Date {
	return d.AddDays(-mondayIndex(d.Weekday()))
}

// WeekDates returns n consecutive days beginning at start.
func WeekDates(start Date, n int) []Date {
	if n <= 0 {
		return nil
	}
	dates := make([]Date, n)
	for i := range dates {
		dates[i] = start.AddDays(i)
	}
	return dates
}

// MonthBounds returns the first and last day of the month.
func MonthBounds(year int, month time.Month) (Date, Date) {
	first := NewDate(year, month, 1)
	last := NewDate(year, month+1, 0)
	return first, last
}

// MonthWeeks partitions a month into Monday-start weeks holding only the
// in-month days, so the first and last weeks may be shorter than seven days.
func MonthWeeks(year int, month time.Month) [][]Date {
	first, last := MonthBounds(year, month)

	var (
		weeks   [][]Date
		current []Date
	)
	for d := first; !d.After(last); d = d.AddDays(1) {
		if d.Weekday() == time.Monday && len(current) > 0 {
			weeks = append(weeks, current)
			current = nil
		}
		current = append(current, d)
	}
	if len(current) > 0 {
		weeks = append(weeks, current)
	}
	return weeks
}

// PreviousMonth returns the year and month before the one containing d.
func PreviousMonth(d Date) (int, time.Month) {
	prev := NewDate(d.Year, d.Month, 0)
	return prev.Year, prev.Month
}
