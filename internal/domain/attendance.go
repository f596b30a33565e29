// Package domain defines the attendance session and goal aggregation logic.
package domain

import (
	"time"

	"example.com/attendance/internal/clock"
)

// Session is the open occupancy of a single user.
type Session struct {
	UserID  string
	CheckIn time.Time
}

// Record is a day-bounded slice of an occupancy interval.
type Record struct {
	UserID      string
	CheckIn     time.Time
	CheckOut    time.Time
	DurationSec int64
	Day         clock.Date
}

// DayTotal is the summed duration of one user on one day.
type DayTotal struct {
	Day      clock.Date
	TotalSec int64
}

// WeeklyGoal is a free-text intention a member sets for a week.
type WeeklyGoal struct {
	UserID    string
	GoalText  string
	WeekStart clock.Date
	UpdatedAt time.Time
}
