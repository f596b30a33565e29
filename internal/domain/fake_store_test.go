package domain

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/attendance/internal/clock"
)

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]time.Time
	records   []Record
	insertErr error
	sumErr    error
	inserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]time.Time{}}
}

func (f *fakeStore) OpenSession(_ context.Context, userID string, checkIn time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[userID]; ok {
		return ErrSessionAlreadyOpen
	}
	f.sessions[userID] = checkIn
	return nil
}

func (f *fakeStore) CloseSession(_ context.Context, userID string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	checkIn, ok := f.sessions[userID]
	if !ok {
		return time.Time{}, false, nil
	}
	delete(f.sessions, userID)
	return checkIn, true, nil
}

func (f *fakeStore) ActiveSession(_ context.Context, userID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	checkIn, ok := f.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &Session{UserID: userID, CheckIn: checkIn}, nil
}

func (f *fakeStore) ActiveSessions(context.Context) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Session, 0, len(f.sessions))
	for id, checkIn := range f.sessions {
		out = append(out, Session{UserID: id, CheckIn: checkIn})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) InsertRecords(_ context.Context, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts++
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStore) SumDuration(_ context.Context, userID string, day clock.Date) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sumErr != nil {
		return 0, f.sumErr
	}
	var total int64
	for _, r := range f.records {
		if r.UserID == userID && r.Day == day {
			total += r.DurationSec
		}
	}
	return total, nil
}

func (f *fakeStore) DistinctUsers(_ context.Context, year int, month time.Month) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]struct{}{}
	for _, r := range f.records {
		if r.Day.Year == year && r.Day.Month == month {
			seen[r.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) DailyTotals(_ context.Context, userID string, days []clock.Date) (map[clock.Date]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sumErr != nil {
		return nil, f.sumErr
	}
	wanted := map[clock.Date]bool{}
	for _, d := range days {
		wanted[d] = true
	}
	out := map[clock.Date]int64{}
	for _, r := range f.records {
		if r.UserID == userID && wanted[r.Day] {
			out[r.Day] += r.DurationSec
		}
	}
	return out, nil
}

func (f *fakeStore) PurgeBefore(_ context.Context, cutoff clock.Date) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.records[:0]
	var purged int64
	for _, r := range f.records {
		if r.Day.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	f.records = kept
	return purged, nil
}

// seed stores a single-day record for userID with the given seconds.
func (f *fakeStore) seed(userID string, day clock.Date, seconds int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	checkIn := day.Start(kst).Add(9 * time.Hour)
	f.records = append(f.records, Record{
		UserID:      userID,
		CheckIn:     checkIn,
		CheckOut:    checkIn.Add(time.Duration(seconds) * time.Second),
		DurationSec: seconds,
		Day:         day,
	})
}

var errBoom = errors.New("boom")
