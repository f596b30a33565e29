// Package report builds the weekly and monthly attendance reports and the
// notifications sent around sessions.
package report

import (
	"context"
	"fmt"
	"time"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
)

// Weekly report kinds.
const (
	WeeklyMid     = "weekly-mid"
	WeeklyCurrent = "weekly-current"
	WeeklyFinal   = "weekly-final"
)

// WeeklyRow is one user's line in a weekly report.
type WeeklyRow struct {
	UserID       string             `json:"user_id"`
	Statuses     []domain.DayStatus `json:"statuses"`
	PassCount    int                `json:"pass_count"`
	Achieved     bool               `json:"achieved"`
	MonthlyWeeks int                `json:"monthly_weeks"`
}

// WeeklyReport classifies every active user over a list of dates.
type WeeklyReport struct {
	Kind        string       `json:"kind"`
	Year        int          `json:"year"`
	Month       time.Month   `json:"month"`
	WeekOfMonth int          `json:"week_of_month"`
	Dates       []clock.Date `json:"dates"`
	Rows        []WeeklyRow  `json:"rows"`
}

// Outlook is where a user stands on the monthly exemption with one week left.
type Outlook string

const (
	OutlookConfirmed   Outlook = "confirmed"
	OutlookOneMoreWeek Outlook = "one_more_week"
	OutlookOutOfReach  Outlook = "out_of_reach"
)

// MidCheckRow is one user's monthly standing.
type MidCheckRow struct {
	UserID  string  `json:"user_id"`
	Weeks   int     `json:"weeks"`
	Outlook Outlook `json:"outlook"`
}

// MonthlyMidCheck is appended to the weekly final report after the third week of a month.
type MonthlyMidCheck struct {
	Year  int           `json:"year"`
	Month time.Month    `json:"month"`
	Rows  []MidCheckRow `json:"rows"`
}

// MonthlyRow is one user's final monthly result.
type MonthlyRow struct {
	UserID   string          `json:"user_id"`
	Weeks    int             `json:"weeks"`
	Decision domain.Decision `json:"decision"`
}

// MonthlyReport is the exemption settlement for a month.
type MonthlyReport struct {
	Year  int          `json:"year"`
	Month time.Month   `json:"month"`
	Rows  []MonthlyRow `json:"rows"`
}

// Exempt returns the rows whose decision is exempt.
func (r MonthlyReport) Exempt() []MonthlyRow { return r.filter(domain.DecisionExempt) }

// Charged returns the rows whose decision is charge.
func (r MonthlyReport) Charged() []MonthlyRow { return r.filter(domain.DecisionCharge) }

func (r MonthlyReport) filter(decision domain.Decision) []MonthlyRow {
	var rows []MonthlyRow
	for _, row := range r.Rows {
		if row.Decision == decision {
			rows = append(rows, row)
		}
	}
	return rows
}

// UserLister finds the users that recorded time in a month.
type UserLister interface {
	DistinctUsers(ctx context.Context, year int, month time.Month) ([]string, error)
}

// Builder assembles reports from the aggregation engine. Any store error
// aborts the whole report.
type Builder struct {
	users UserLister
	agg   *domain.Aggregator
}

// NewBuilder constructs a Builder.
func NewBuilder(users UserLister, agg *domain.Aggregator) *Builder {
	return &Builder{users: users, agg: agg}
}

// WeeklyMid covers Monday through Thursday of the week containing today.
func (b *Builder) WeeklyMid(ctx context.Context, today clock.Date) (WeeklyReport, error) {
	dates := clock.WeekDates(clock.StartOfWeek(today), 4)
	return b.weekly(ctx, WeeklyMid, today, dates, nil)
}

// Current covers Monday through today.
func (b *Builder) Current(ctx context.Context, today clock.Date) (WeeklyReport, error) {
	var dates []clock.Date
	for d := clock.StartOfWeek(today); !d.After(today); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return b.weekly(ctx, WeeklyCurrent, today, dates, nil)
}

// WeeklyFinal covers the full week that ended on the Sunday before today. When
// that Sunday falls in the third week of its month the monthly mid-check is
// returned as well.
func (b *Builder) WeeklyFinal(ctx context.Context, today clock.Date) (WeeklyReport, *MonthlyMidCheck, error) {
	lastSunday := clock.StartOfWeek(today).AddDays(-1)
	dates := clock.WeekDates(lastSunday.AddDays(-6), 7)

	monthly := map[string]int{}
	report, err := b.weekly(ctx, WeeklyFinal, lastSunday, dates, func(ctx context.Context, userID string) (int, error) {
		weeks, err := b.agg.MonthlySuccessfulWeeksThrough(ctx, userID, lastSunday.Year, lastSunday.Month, lastSunday)
		monthly[userID] = weeks
		return weeks, err
	})
	if err != nil {
		return WeeklyReport{}, nil, err
	}
	if clock.WeekOfMonth(lastSunday) != 3 {
		return report, nil, nil
	}

	goal := b.agg.Goals().Thresholds().MonthlyGoalWeeks
	mid := &MonthlyMidCheck{Year: lastSunday.Year, Month: lastSunday.Month}
	for _, row := range report.Rows {
		weeks := monthly[row.UserID]
		mid.Rows = append(mid.Rows, MidCheckRow{UserID: row.UserID, Weeks: weeks, Outlook: outlook(weeks, goal)})
	}
	return report, mid, nil
}

func outlook(weeks, goal int) Outlook {
	switch {
	case weeks >= goal:
		return OutlookConfirmed
	case weeks == goal-1:
		return OutlookOneMoreWeek
	default:
		return OutlookOutOfReach
	}
}

// MonthlyFinal settles the exemption decision for every user active in the month.
func (b *Builder) MonthlyFinal(ctx context.Context, year int, month time.Month) (MonthlyReport, error) {
	if month < time.January || month > time.December {
		return MonthlyReport{}, fmt.Errorf("month %d out of range", month)
	}
	users, err := b.users.DistinctUsers(ctx, year, month)
	if err != nil {
		return MonthlyReport{}, err
	}
	report := MonthlyReport{Year: year, Month: month, Rows: make([]MonthlyRow, 0, len(users))}
	for _, userID := range users {
		status, err := b.agg.MonthlyExemptionDecision(ctx, userID, year, month)
		if err != nil {
			return MonthlyReport{}, err
		}
		report.Rows = append(report.Rows, MonthlyRow{UserID: userID, Weeks: status.Weeks, Decision: status.Decision})
	}
	return report, nil
}

type monthlyFunc func(ctx context.Context, userID string) (int, error)

func (b *Builder) weekly(ctx context.Context, kind string, anchor clock.Date, dates []clock.Date, monthly monthlyFunc) (WeeklyReport, error) {
	users, err := b.users.DistinctUsers(ctx, anchor.Year, anchor.Month)
	if err != nil {
		return WeeklyReport{}, err
	}
	threshold := b.agg.Goals().Thresholds().WeeklyGoalDays

	report := WeeklyReport{
		Kind:        kind,
		Year:        anchor.Year,
		Month:       anchor.Month,
		WeekOfMonth: clock.WeekOfMonth(anchor),
		Dates:       dates,
		Rows:        make([]WeeklyRow, 0, len(users)),
	}
	for _, userID := range users {
		status, err := b.agg.WeeklyStatusLine(ctx, userID, dates)
		if err != nil {
			return WeeklyReport{}, err
		}
		row := WeeklyRow{
			UserID:    userID,
			Statuses:  status.Statuses,
			PassCount: status.PassCount,
			Achieved:  status.PassCount >= threshold,
		}
		if monthly != nil {
			if row.MonthlyWeeks, err = monthly(ctx, userID); err != nil {
				return WeeklyReport{}, err
			}
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}
