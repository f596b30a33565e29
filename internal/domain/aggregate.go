package domain

import (
	"context"
	"time"

	"example.com/attendance/internal/clock"
)

// DayStatus classifies one day against the daily goal.
type DayStatus string

const (
	StatusPass    DayStatus = "pass"
	StatusPartial DayStatus = "partial"
	StatusAbsent  DayStatus = "absent"
)

// Classify maps a day's total against goal.
func Classify(totalSec, goalSec int64) DayStatus {
	switch {
	case totalSec >= goalSec:
		return StatusPass
	case totalSec > 0:
		return StatusPartial
	default:
		return StatusAbsent
	}
}

// WeeklyStatus is the per-day classification of a list of dates.
type WeeklyStatus struct {
	Dates     []clock.Date
	Statuses  []DayStatus
	PassCount int
}

// Decision is the outcome of the monthly exemption rule.
type Decision string

const (
	DecisionExempt Decision = "exempt"
	DecisionCharge Decision = "charge"
)

// MonthlyStatus pairs the count of successful weeks with its decision.
type MonthlyStatus struct {
	Weeks    int
	Decision Decision
}

// Aggregator evaluates users against their goals. It only reads the store.
type Aggregator struct {
	records RecordStore
	goals   *GoalResolver
}

// NewAggregator constructs an Aggregator.
func NewAggregator(records RecordStore, goals *GoalResolver) *Aggregator {
	return &Aggregator{records: records, goals: goals}
}

// Goals returns the resolver backing the aggregator.
func (a *Aggregator) Goals() *GoalResolver {
	return a.goals
}

// DailyTotal returns the seconds recorded for userID on day.
func (a *Aggregator) DailyTotal(ctx context.Context, userID string, day clock.Date) (int64, error) {
	return a.records.SumDuration(ctx, userID, day)
}

// WeeklyStatusLine classifies each date in order. The goal is resolved once
// per call and days never carry over into each other.
func (a *Aggregator) WeeklyStatusLine(ctx context.Context, userID string, dates []clock.Date) (WeeklyStatus, error) {
	status := WeeklyStatus{
		Dates:    dates,
		Statuses: make([]DayStatus, len(dates)),
	}
	if len(dates) == 0 {
		return status, nil
	}

	goal := a.goals.Resolve(userID)
	totals, err := a.records.DailyTotals(ctx, userID, dates)
	if err != nil {
		return WeeklyStatus{}, err
	}
	for i, d := range dates {
		s := Classify(totals[d], goal)
		status.Statuses[i] = s
		if s == StatusPass {
			status.PassCount++
		}
	}
	return status, nil
}

// MonthlySuccessfulWeeks counts the Monday-start weeks of the month in which
// the user passed at least the weekly threshold. Only in-month days count.
func (a *Aggregator) MonthlySuccessfulWeeks(ctx context.Context, userID string, year int, month time.Month) (int, error) {
	_, last := clock.MonthBounds(year, month)
	return a.MonthlySuccessfulWeeksThrough(ctx, userID, year, month, last)
}

// MonthlySuccessfulWeeksThrough is MonthlySuccessfulWeeks with every day
// after through ignored.
func (a *Aggregator) MonthlySuccessfulWeeksThrough(ctx context.Context, userID string, year int, month time.Month, through clock.Date) (int, error) {
	threshold := a.goals.Thresholds().WeeklyGoalDays
	successful := 0
	for _, week := range clock.MonthWeeks(year, month) {
		days := make([]clock.Date, 0, len(week))
		for _, d := range week {
			if !d.After(through) {
				days = append(days, d)
			}
		}
		if len(days) == 0 {
			break
		}
		status, err := a.WeeklyStatusLine(ctx, userID, days)
		if err != nil {
			return 0, err
		}
		if status.PassCount >= threshold {
			successful++
		}
	}
	return successful, nil
}

// MonthlyExemptionDecision applies the monthly threshold to the month.
func (a *Aggregator) MonthlyExemptionDecision(ctx context.Context, userID string, year int, month time.Month) (MonthlyStatus, error) {
	weeks, err := a.MonthlySuccessfulWeeks(ctx, userID, year, month)
	if err != nil {
		return MonthlyStatus{}, err
	}
	return MonthlyStatus{Weeks: weeks, Decision: a.Decide(weeks)}, nil
}

// Decide maps a count of successful weeks onto the exemption decision.
func (a *Aggregator) Decide(weeks int) Decision {
	if weeks >= a.goals.Thresholds().MonthlyGoalWeeks {
		return DecisionExempt
	}
	return DecisionCharge
}
