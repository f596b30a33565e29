package domain

import (
	"context"
	"time"

	"example.com/attendance/internal/clock"
)

// SessionStore persists the single open session per user.
type SessionStore interface {
	OpenSession(ctx context.Context, userID string, checkIn time.Time) error
	CloseSession(ctx context.Context, userID string) (time.Time, bool, error)
	ActiveSession(ctx context.Context, userID string) (*Session, error)
	ActiveSessions(ctx context.Context) ([]Session, error)
}

// RecordStore persists and queries day-bounded attendance records.
type RecordStore interface {
	InsertRecords(ctx context.Context, records []Record) error
	SumDuration(ctx context.Context, userID string, day clock.Date) (int64, error)
	DistinctUsers(ctx context.Context, year int, month time.Month) ([]string, error)
	DailyTotals(ctx context.Context, userID string, days []clock.Date) (map[clock.Date]int64, error)
	PurgeBefore(ctx context.Context, cutoff clock.Date) (int64, error)
}

// WeeklyGoalStore keeps free-text weekly intentions.
type WeeklyGoalStore interface {
	UpsertWeeklyGoal(ctx context.Context, goal WeeklyGoal) error
	WeeklyGoals(ctx context.Context, weekStart clock.Date) ([]WeeklyGoal, error)
}

// LifecycleStore is what the session controller needs.
type LifecycleStore interface {
	SessionStore
	RecordStore
}

// Store is the full attendance persistence contract.
type Store interface {
	SessionStore
	RecordStore
	WeeklyGoalStore
}
