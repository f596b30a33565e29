// Package scheduler fires periodic report triggers from a polling loop.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Window is a day selector plus an inclusive minute range, for example
// "thu 18:00-18:59", "1 01:00-01:59" or "* 09:00-09:10".
type Window struct {
	weekday  time.Weekday
	byDay    bool
	monthDay int
	start    int
	end      int
	raw      string
}

// ParseWindow parses "<day> HH:MM-HH:MM" where day is a weekday abbreviation,
// a day of month (1-31) or "*" for every day.
func ParseWindow(value string) (Window, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return Window{}, fmt.Errorf("window %q: want \"<day> HH:MM-HH:MM\"", value)
	}

	w := Window{raw: strings.Join(fields, " ")}
	day := strings.ToLower(fields[0])
	if wd, ok := lookupWeekday(day); ok {
		w.weekday = wd
		w.byDay = true
	} else if day != "*" {
		n, err := strconv.Atoi(day)
		if err != nil || n < 1 || n > 31 {
			return Window{}, fmt.Errorf("window %q: day must be a weekday, 1-31 or *", value)
		}
		w.monthDay = n
	}

	startRaw, endRaw, ok := strings.Cut(fields[1], "-")
	if !ok {
		return Window{}, fmt.Errorf("window %q: missing time range", value)
	}
	var err error
	if w.start, err = parseClock(startRaw); err != nil {
		return Window{}, fmt.Errorf("window %q: %w", value, err)
	}
	if w.end, err = parseClock(endRaw); err != nil {
		return Window{}, fmt.Errorf("window %q: %w", value, err)
	}
	if w.end < w.start {
		return Window{}, fmt.Errorf("window %q: range ends before it starts", value)
	}
	return w, nil
}

// MustParseWindow is ParseWindow for constant inputs.
func MustParseWindow(value string) Window {
	w, err := ParseWindow(value)
	if err != nil {
		panic(err)
	}
	return w
}

// lookupWeekday accepts "thu" as well as "thursday".
func lookupWeekday(day string) (time.Weekday, bool) {
	if len(day) < 3 {
		return 0, false
	}
	wd, ok := weekdays[day[:3]]
	if !ok || !strings.HasPrefix(strings.ToLower(wd.String()), day) {
		return 0, false
	}
	return wd, true
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("time %q: want HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t, read in its own zone, falls inside the window.
func (w Window) Contains(t time.Time) bool {
	switch {
	case w.byDay && t.Weekday() != w.weekday:
		return false
	case w.monthDay != 0 && t.Day() != w.monthDay:
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= w.start && minute <= w.end
}

func (w Window) String() string { return w.raw }
