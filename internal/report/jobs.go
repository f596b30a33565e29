package report

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/notify"
	"example.com/attendance/internal/scheduler"
)

// Purger deletes records older than a cutoff day.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff clock.Date) (int64, error)
}

// Jobs are the scheduled report actions: build, deliver and, at month end,
// purge the settled month.
type Jobs struct {
	builder  *Builder
	notifier notify.Notifier
	purger   Purger
	channel  string
	logger   *log.Logger
}

// JobsOption configures optional behaviour for Jobs.
type JobsOption func(*Jobs)

// WithJobsLogger overrides the logger.
func WithJobsLogger(logger *log.Logger) JobsOption {
	return func(j *Jobs) {
		j.logger = logger
	}
}

// NewJobs constructs Jobs that post to channel.
func NewJobs(builder *Builder, notifier notify.Notifier, purger Purger, channel string, opts ...JobsOption) *Jobs {
	j := &Jobs{
		builder:  builder,
		notifier: notifier,
		purger:   purger,
		channel:  channel,
		logger:   log.New(log.Writer(), "[reports] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Triggers binds the jobs to their windows.
func (j *Jobs) Triggers(weeklyMid, weeklyFinal, monthlyFinal scheduler.Window) []scheduler.Trigger {
	return []scheduler.Trigger{
		{Name: scheduler.TriggerWeeklyMid, Window: weeklyMid, Action: j.WeeklyMid},
		{Name: scheduler.TriggerWeeklyFinal, Window: weeklyFinal, Action: j.WeeklyFinal},
		{Name: scheduler.TriggerMonthlyFinal, Window: monthlyFinal, Action: j.MonthlyFinal},
	}
}

// WeeklyMid posts the midweek check-in.
func (j *Jobs) WeeklyMid(ctx context.Context, now time.Time) error {
	report, err := j.builder.WeeklyMid(ctx, clock.DateOf(now))
	if err != nil {
		return fmt.Errorf("build weekly mid report: %w", err)
	}
	return j.send(ctx, notify.KindWeeklyMid, RenderWeeklyMid(report))
}

// WeeklyFinal posts last week's results and, after the third week of a
// month, the monthly checkpoint.
func (j *Jobs) WeeklyFinal(ctx context.Context, now time.Time) error {
	report, mid, err := j.builder.WeeklyFinal(ctx, clock.DateOf(now))
	if err != nil {
		return fmt.Errorf("build weekly final report: %w", err)
	}
	if err := j.send(ctx, notify.KindWeeklyFinal, RenderWeeklyFinal(report)); err != nil {
		return err
	}
	if mid == nil {
		return nil
	}
	return j.send(ctx, notify.KindMonthlyMid, RenderMonthlyMid(*mid))
}

// MonthlyFinal settles the previous month, then purges every record before the
// first of the current month. Nothing is purged when the settlement could not
// be built or delivered.
func (j *Jobs) MonthlyFinal(ctx context.Context, now time.Time) error {
	today := clock.DateOf(now)
	year, month := clock.PreviousMonth(today)

	report, err := j.builder.MonthlyFinal(ctx, year, month)
	if err != nil {
		return fmt.Errorf("build monthly final report: %w", err)
	}
	if err := j.send(ctx, notify.KindMonthlyFinal, RenderMonthlyFinal(report)); err != nil {
		return err
	}

	cutoff, _ := clock.MonthBounds(today.Year, today.Month)
	purged, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge before %s: %w", cutoff, err)
	}
	j.logger.Printf("purged %d records before %s", purged, cutoff)

	return j.send(ctx, notify.KindDataReset, RenderDataReset(month, today.Month))
}

func (j *Jobs) send(ctx context.Context, kind, text string) error {
	if err := j.notifier.Notify(ctx, notify.Notification{Channel: j.channel, Kind: kind, Text: text}); err != nil {
		return fmt.Errorf("deliver %s: %w", kind, err)
	}
	return nil
}
