package clock

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
)

func TestWeekOfMonthMondayStart(t *testing.T) {
	// January 2024 starts on a Monday.
	require.Equal(t, 1, WeekOfMonth(NewDate(2024, time.January, 1)))
	require.Equal(t, 1, WeekOfMonth(NewDate(2024, time.January, 7)))
	require.Equal(t, 2, WeekOfMonth(NewDate(2024, time.January, 8)))
	require.Equal(t, 5, WeekOfMonth(NewDate(2024, time.January, 31)))

	// September 2024 starts on a Sunday, so the 2nd is already week 2.
	require.Equal(t, 1, WeekOfMonth(NewDate(2024, time.September, 1)))
	require.Equal(t, 2, WeekOfMonth(NewDate(2024, time.September, 2)))
	require.Equal(t, 6, WeekOfMonth(NewDate(2024, time.September, 30)))
}

func TestStartOfWeek(t *testing.T) {
	require.Equal(t, NewDate(2024, time.January, 1), StartOfWeek(NewDate(2024, time.January, 4)))
	require.Equal(t, NewDate(2024, time.January, 1), StartOfWeek(NewDate(2024, time.January, 7)))
	require.Equal(t, NewDate(2023, time.December, 25), StartOfWeek(NewDate(2023, time.December, 31)))
	require.Equal(t, NewDate(2024, time.January, 8), StartOfWeek(NewDate(2024, time.January, 8)))
}

func TestMonthWeeksKeepsOnlyInMonthDays(t *testing.T) {
	weeks := MonthWeeks(2024, time.September)
	require.Len(t, weeks, 6)
	require.Equal(t, []Date{NewDate(2024, time.September, 1)}, weeks[0])
	require.Len(t, weeks[1], 7)
	require.Equal(t, NewDate(2024, time.September, 2), weeks[1][0])
	require.Equal(t, []Date{NewDate(2024, time.September, 30)}, weeks[5])

	total := 0
	for _, w := range weeks {
		total += len(w)
	}
	require.Equal(t, 30, total)
}

func TestMonthBoundsLeapYear(t *testing.T) {
	first, last := MonthBounds(2024, time.February)
	require.Equal(t, NewDate(2024, time.February, 1), first)
	require.Equal(t, NewDate(2024, time.February, 29), last)
}

func TestDateOrderingAcrossYearBoundary(t *testing.T) {
	dec := NewDate(2023, time.December, 31)
	jan := NewDate(2024, time.January, 1)
	require.True(t, dec.Before(jan))
	require.True(t, jan.After(dec))
	require.Equal(t, jan, dec.AddDays(1))
	require.Equal(t, 0, jan.Compare(NewDate(2024, time.January, 1)))
}

func TestParseDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	require.NoError(t, err)
	require.Equal(t, NewDate(2024, time.March, 9), d)
	require.Equal(t, "2024-03-09", d.String())

	_, err = ParseDate("03/09/2024")
	require.Error(t, err)
}

func TestParseOffset(t *testing.T) {
	loc, err := ParseOffset("+09:00")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	require.Equal(t, 9*3600, offset)

	loc, err = ParseOffset("-0530")
	require.NoError(t, err)
	_, offset = time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	require.Equal(t, -(5*3600 + 30*60), offset)

	loc, err = ParseOffset("")
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	_, err = ParseOffset("09:00")
	require.Error(t, err)
	_, err = ParseOffset("+25:00")
	require.Error(t, err)
}

func TestLocalNowUsesZoneAndTruncates(t *testing.T) {
	mClock := quartz.NewMock(t)
	loc := time.FixedZone("KST", 9*3600)
	mClock.Set(time.Date(2024, time.January, 1, 15, 30, 0, 750_000_000, time.UTC))

	local := NewLocal(mClock, loc)
	now := local.Now()
	require.Equal(t, 0, now.Nanosecond())
	require.Equal(t, 0, now.Hour())
	require.Equal(t, NewDate(2024, time.January, 2), local.Today())
}

func TestPreviousMonth(t *testing.T) {
	y, m := PreviousMonth(NewDate(2024, time.January, 1))
	require.Equal(t, 2023, y)
	require.Equal(t, time.December, m)
}
