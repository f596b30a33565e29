package domain

import (
	"time"

	"example.com/attendance/internal/clock"
)

// Segment is one calendar-day slice produced by Split.
type Segment struct {
	CheckIn     time.Time
	CheckOut    time.Time
	DurationSec int64
}

// Day returns the calendar day the segment belongs to.
func (s Segment) Day() clock.Date {
	return clock.DateOf(s.CheckIn)
}

// Record attaches the segment to a user.
func (s Segment) Record(userID string) Record {
	return Record{
		UserID:      userID,
		CheckIn:     s.CheckIn,
		CheckOut:    s.CheckOut,
		DurationSec: s.DurationSec,
		Day:         s.Day(),
	}
}

// Split cuts [checkIn, checkOut] at every midnight of checkIn's zone. Each
// segment but the last ends at 23:59:59 and the next starts at 00:00:00, so
// every seam loses one second. Zero-length segments are dropped, so a check-in
// at 23:59:59 yields no record for its own day.
func Split(checkIn, checkOut time.Time) ([]Segment, error) {
	if !checkOut.After(checkIn) {
		return nil, ErrInvalidInterval
	}

	loc := checkIn.Location()
	checkOut = checkOut.In(loc)
	lastDay := clock.DateOf(checkOut)

	segments := make([]Segment, 0, 1)
	current := checkIn
	for day := clock.DateOf(current); day.Before(lastDay); day = clock.DateOf(current) {
		endOfDay := day.End(loc)
		segments = appendSegment(segments, current, endOfDay)
		current = endOfDay.Add(time.Second)
	}
	return appendSegment(segments, current, checkOut), nil
}

func appendSegment(segments []Segment, in, out time.Time) []Segment {
	seconds := int64(out.Sub(in) / time.Second)
	if seconds <= 0 {
		return segments
	}
	return append(segments, Segment{CheckIn: in, CheckOut: out, DurationSec: seconds})
}

// SplitRecords runs Split and attaches the segments to userID.
func SplitRecords(userID string, checkIn, checkOut time.Time) ([]Record, error) {
	segments, err := Split(checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(segments))
	for _, s := range segments {
		records = append(records, s.Record(userID))
	}
	return records, nil
}
