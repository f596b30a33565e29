package domain

import "sync/atomic"

// Defaults applied when a GoalTable leaves a threshold unset.
const (
	DefaultDailyGoalSec     int64 = 7200
	DefaultWeeklyGoalDays         = 4
	DefaultMonthlyGoalWeeks       = 3
)

// GoalGroup assigns one daily goal to several users.
type GoalGroup struct {
	Name    string
	GoalSec int64
	Members []string
}

// GoalTable is the full goal configuration.
type GoalTable struct {
	DefaultSec       int64
	WeeklyGoalDays   int
	MonthlyGoalWeeks int
	Users            map[string]int64
	Groups           []GoalGroup
}

// Thresholds are the pass counts used by the weekly and monthly rules.
type Thresholds struct {
	WeeklyGoalDays   int
	MonthlyGoalWeeks int
}

type compiledGoals struct {
	defaultSec int64
	thresholds Thresholds
	byUser     map[string]int64
}

func compile(table GoalTable) *compiledGoals {
	c := &compiledGoals{
		defaultSec: table.DefaultSec,
		thresholds: Thresholds{
			WeeklyGoalDays:   table.WeeklyGoalDays,
			MonthlyGoalWeeks: table.MonthlyGoalWeeks,
		},
		byUser: make(map[string]int64, len(table.Users)),
	}
	if c.defaultSec <= 0 {
		c.defaultSec = DefaultDailyGoalSec
	}
	if c.thresholds.WeeklyGoalDays <= 0 {
		c.thresholds.WeeklyGoalDays = DefaultWeeklyGoalDays
	}
	if c.thresholds.MonthlyGoalWeeks <= 0 {
		c.thresholds.MonthlyGoalWeeks = DefaultMonthlyGoalWeeks
	}

	// Groups are applied in reverse so the first listed group wins, then
	// per-user overrides replace any group goal.
	for i := len(table.Groups) - 1; i >= 0; i-- {
		group := table.Groups[i]
		if group.GoalSec <= 0 {
			continue
		}
		for _, member := range group.Members {
			c.byUser[member] = group.GoalSec
		}
	}
	for userID, goal := range table.Users {
		if goal > 0 {
			c.byUser[userID] = goal
		}
	}
	return c
}

// GoalResolver maps users to their daily goal. Safe for concurrent use.
type GoalResolver struct {
	current atomic.Pointer[compiledGoals]
}

// NewGoalResolver constructs a resolver for table.
func NewGoalResolver(table GoalTable) *GoalResolver {
	r := &GoalResolver{}
	r.Update(table)
	return r
}

// Update swaps in a new table; later Resolve calls see it.
func (r *GoalResolver) Update(table GoalTable) {
	r.current.Store(compile(table))
}

// Resolve returns the user's daily goal in seconds: override, then first
// matching group, then the default.
func (r *GoalResolver) Resolve(userID string) int64 {
	c := r.current.Load()
	if goal, ok := c.byUser[userID]; ok {
		return goal
	}
	return c.defaultSec
}

// Thresholds returns the weekly and monthly pass counts.
func (r *GoalResolver) Thresholds() Thresholds {
	return r.current.Load().thresholds
}
