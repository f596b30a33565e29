package domain

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/observability"
)

// Observer is told about lifecycle transitions after the store has committed
// them. Implementations send notifications and must not fail the caller.
type Observer interface {
	SessionStarted(ctx context.Context, userID string, checkIn time.Time)
	SessionCompleted(ctx context.Context, userID string, records []Record, totals []DayTotal)
}

// ControllerOption configures optional behaviour for the Controller.
type ControllerOption func(*Controller)

// WithControllerLogger overrides the logger used to report dropped events.
func WithControllerLogger(logger *log.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithObserver registers the observer that receives lifecycle notifications.
func WithObserver(observer Observer) ControllerOption {
	return func(c *Controller) {
		c.observer = observer
	}
}

// Controller turns enter and leave signals into sessions and records.
type Controller struct {
	store    LifecycleStore
	clock    *clock.Local
	observer Observer
	logger   *log.Logger
	locks    userLocks
}

// NewController constructs a Controller.
func NewController(store LifecycleStore, local *clock.Local, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:  store,
		clock:  local,
		logger: log.New(log.Writer(), "[lifecycle] ", log.LstdFlags|log.Lshortfile),
		locks:  userLocks{held: map[string]*userLock{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) instant(at time.Time) time.Time {
	if at.IsZero() {
		return c.clock.Now()
	}
	return at.In(c.clock.Location()).Truncate(time.Second)
}

// Entered opens a session for userID. It reports false when a session was
// already open; the original check-in is kept in that case.
func (c *Controller) Entered(ctx context.Context, userID string, at time.Time) (bool, error) {
	checkIn := c.instant(at)

	opened, err := func() (bool, error) {
		unlock := c.locks.lock(userID)
		defer unlock()

		err := c.store.OpenSession(ctx, userID, checkIn)
		switch {
		case errors.Is(err, ErrSessionAlreadyOpen):
			observability.RecordSessionEvent(observability.SessionDuplicateEnter)
			return false, nil
		case err != nil:
			return false, err
		}
		observability.RecordSessionEvent(observability.SessionOpened)
		return true, nil
	}()
	if err != nil || !opened {
		return false, err
	}

	if c.observer != nil {
		c.observer.SessionStarted(ctx, userID, checkIn)
	}
	return true, nil
}

// Left closes the user's session and persists its day-bounded records. A leave
// without an open session, or with a non-positive interval, is dropped.
func (c *Controller) Left(ctx context.Context, userID string, at time.Time) ([]Record, error) {
	checkOut := c.instant(at)

	records, totals, err := c.closeSession(ctx, userID, checkOut)
	if err != nil || len(records) == 0 {
		return records, err
	}

	if c.observer != nil {
		c.observer.SessionCompleted(ctx, userID, records, totals)
	}
	return records, nil
}

func (c *Controller) closeSession(ctx context.Context, userID string, checkOut time.Time) ([]Record, []DayTotal, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	checkIn, ok, err := c.store.CloseSession(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		observability.RecordSessionEvent(observability.SessionOrphanLeave)
		return nil, nil, nil
	}

	records, err := SplitRecords(userID, checkIn.In(c.clock.Location()), checkOut)
	if errors.Is(err, ErrInvalidInterval) {
		observability.RecordSessionEvent(observability.SessionInvalidInterval)
		c.logger.Printf("dropping session for %s: check-in %s, check-out %s: %v", userID, checkIn.Format(time.RFC3339), checkOut.Format(time.RFC3339), err)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		observability.RecordSessionEvent(observability.SessionClosed)
		return nil, nil, nil
	}

	if err := c.store.InsertRecords(ctx, records); err != nil {
		// Put the session back so a retried leave does not lose the interval.
		if reopenErr := c.store.OpenSession(ctx, userID, checkIn); reopenErr != nil {
			c.logger.Printf("reopen session for %s after insert failure: %v", userID, reopenErr)
		}
		return nil, nil, WrapStorage("insert records", err)
	}
	observability.RecordSessionEvent(observability.SessionClosed)
	observability.RecordRecordsPersisted(len(records), checkOut)

	totals := make([]DayTotal, 0, len(records))
	for _, day := range involvedDays(records) {
		total, err := c.store.SumDuration(ctx, userID, day)
		if err != nil {
			c.logger.Printf("daily total for %s on %s: %v", userID, day, err)
			continue
		}
		totals = append(totals, DayTotal{Day: day, TotalSec: total})
	}
	return records, totals, nil
}

// Recover opens a session at now for every present user without one. Users
// that already have a session keep it. Failures for individual users are
// collected and do not stop the sweep.
func (c *Controller) Recover(ctx context.Context, present []string) (int, error) {
	now := c.clock.Now()
	recovered := 0
	var errs []error
	for _, userID := range present {
		if userID == "" {
			continue
		}
		unlock := c.locks.lock(userID)
		err := c.store.OpenSession(ctx, userID, now)
		unlock()

		switch {
		case errors.Is(err, ErrSessionAlreadyOpen):
		case err != nil:
			errs = append(errs, err)
		default:
			recovered++
			observability.RecordSessionEvent(observability.SessionRecovered)
		}
	}
	return recovered, errors.Join(errs...)
}

func involvedDays(records []Record) []clock.Date {
	seen := make(map[clock.Date]struct{}, len(records))
	days := make([]clock.Date, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Day]; ok {
			continue
		}
		seen[r.Day] = struct{}{}
		days = append(days, r.Day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// userLocks serialises work per user while letting different users interleave.
type userLocks struct {
	mu   sync.Mutex
	held map[string]*userLock
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	entry, ok := l.held[userID]
	if !ok {
		entry = &userLock{}
		l.held[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.held, userID)
		}
		l.mu.Unlock()
	}
}
