package domain

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/clock"
)

type recordingObserver struct {
	mu        sync.Mutex
	started   []string
	completed [][]DayTotal
}

func (o *recordingObserver) SessionStarted(_ context.Context, userID string, _ time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, userID)
}

func (o *recordingObserver) SessionCompleted(_ context.Context, _ string, _ []Record, totals []DayTotal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, totals)
}

func newTestController(t *testing.T, store *fakeStore) (*Controller, *quartz.Mock, *recordingObserver) {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(at(2024, time.January, 1, 23, 0, 0))
	observer := &recordingObserver{}
	controller := NewController(store, clock.NewLocal(mClock, kst),
		WithObserver(observer),
		WithControllerLogger(log.New(io.Discard, "", 0)),
	)
	return controller, mClock, observer
}

func TestEnterLeaveAcrossMidnight(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, mClock, observer := newTestController(t, store)

	opened, err := controller.Entered(ctx, "u", time.Time{})
	require.NoError(t, err)
	require.True(t, opened)

	mClock.Set(at(2024, time.January, 2, 1, 0, 0))
	records, err := controller.Left(ctx, "u", time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.EqualValues(t, 3599, records[0].DurationSec)
	require.EqualValues(t, 3600, records[1].DurationSec)

	require.Equal(t, []string{"u"}, observer.started)
	require.Equal(t, [][]DayTotal{{
		{Day: clock.NewDate(2024, time.January, 1), TotalSec: 3599},
		{Day: clock.NewDate(2024, time.January, 2), TotalSec: 3600},
	}}, observer.completed)

	active, err := store.ActiveSession(ctx, "u")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestDuplicateEnterKeepsOriginalCheckIn(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, mClock, observer := newTestController(t, store)

	_, err := controller.Entered(ctx, "u", time.Time{})
	require.NoError(t, err)

	mClock.Advance(30 * time.Minute)
	opened, err := controller.Entered(ctx, "u", time.Time{})
	require.NoError(t, err)
	require.False(t, opened)

	active, err := store.ActiveSession(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, at(2024, time.January, 1, 23, 0, 0), active.CheckIn)
	require.Len(t, observer.started, 1)
}

func TestLeaveWithoutEnterIsDropped(t *testing.T) {
	store := newFakeStore()
	controller, _, observer := newTestController(t, store)

	records, err := controller.Left(context.Background(), "ghost", time.Time{})
	require.NoError(t, err)
	require.Empty(t, records)
	require.Empty(t, store.records)
	require.Empty(t, observer.completed)
}

func TestLeaveBeforeCheckInIsDropped(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, _, _ := newTestController(t, store)

	_, err := controller.Entered(ctx, "u", at(2024, time.January, 1, 10, 0, 0))
	require.NoError(t, err)

	records, err := controller.Left(ctx, "u", at(2024, time.January, 1, 9, 0, 0))
	require.NoError(t, err)
	require.Empty(t, records)
	require.Empty(t, store.records)
}

func TestInsertFailureReopensSession(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, mClock, observer := newTestController(t, store)

	_, err := controller.Entered(ctx, "u", time.Time{})
	require.NoError(t, err)

	store.insertErr = errBoom
	mClock.Advance(2 * time.Hour)
	_, err = controller.Left(ctx, "u", time.Time{})
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, observer.completed)

	active, err := store.ActiveSession(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, at(2024, time.January, 1, 23, 0, 0), active.CheckIn)

	// A retried leave persists the whole interval.
	store.insertErr = nil
	records, err := controller.Left(ctx, "u", time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestFeedbackFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, mClock, observer := newTestController(t, store)

	_, err := controller.Entered(ctx, "u", time.Time{})
	require.NoError(t, err)
	store.sumErr = errBoom
	mClock.Advance(30 * time.Minute)

	records, err := controller.Left(ctx, "u", time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, store.records, 1)
	require.Equal(t, [][]DayTotal{{}}, observer.completed)
}

func TestRecoverOpensMissingSessions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, mClock, _ := newTestController(t, store)

	_, err := controller.Entered(ctx, "a", time.Time{})
	require.NoError(t, err)

	mClock.Advance(10 * time.Minute)
	recovered, err := controller.Recover(ctx, []string{"a", "b", "c", ""})
	require.NoError(t, err)
	require.Equal(t, 2, recovered)

	sessions, err := store.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []Session{
		{UserID: "a", CheckIn: at(2024, time.January, 1, 23, 0, 0)},
		{UserID: "b", CheckIn: at(2024, time.January, 1, 23, 10, 0)},
		{UserID: "c", CheckIn: at(2024, time.January, 1, 23, 10, 0)},
	}, sessions)
}

func TestConcurrentEntersOpenOneSession(t *testing.T) {
	store := newFakeStore()
	controller, _, observer := newTestController(t, store)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
		errs   []error
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := controller.Entered(context.Background(), "u", time.Time{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				opened++
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Equal(t, 1, opened)
	require.Len(t, observer.started, 1)
	require.Empty(t, controller.locks.held)
}

func TestSameDayPairsSumWithoutLoss(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	controller, _, _ := newTestController(t, store)

	pairs := [][2]time.Time{
		{at(2024, time.January, 3, 9, 0, 0), at(2024, time.January, 3, 9, 45, 10)},
		{at(2024, time.January, 3, 11, 0, 0), at(2024, time.January, 3, 12, 30, 0)},
		{at(2024, time.January, 3, 20, 15, 5), at(2024, time.January, 3, 21, 0, 0)},
	}
	var want int64
	for _, p := range pairs {
		_, err := controller.Entered(ctx, "u", p[0])
		require.NoError(t, err)
		_, err = controller.Left(ctx, "u", p[1])
		require.NoError(t, err)
		want += int64(p[1].Sub(p[0]) / time.Second)
	}

	total, err := store.SumDuration(ctx, "u", clock.NewDate(2024, time.January, 3))
	require.NoError(t, err)
	require.Equal(t, want, total)
	require.Len(t, store.records, len(pairs))
}
