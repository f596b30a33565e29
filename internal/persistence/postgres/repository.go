package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/observability"
)

// Repository provides Postgres-backed persistence for sessions, records and report state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open migrates the database at connStr and returns a pooled Repository.
func Open(ctx context.Context, connStr string) (*Repository, error) {
	if err := Migrate(connStr); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewRepository(pool), nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// OpenSession inserts the user's active session, failing if one exists.
func (r *Repository) OpenSession(ctx context.Context, userID string, checkIn time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO active_sessions (user_id, check_in) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, checkIn)
	if err != nil {
		return domain.WrapStorage("open session", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionAlreadyOpen
	}
	return nil
}

// CloseSession removes and returns the user's check-in in one statement.
func (r *Repository) CloseSession(ctx context.Context, userID string) (time.Time, bool, error) {
	var checkIn time.Time
	err := r.pool.QueryRow(ctx,
		`DELETE FROM active_sessions WHERE user_id = $1 RETURNING check_in`, userID).Scan(&checkIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, domain.WrapStorage("close session", err)
	}
	return checkIn, true, nil
}

// ActiveSession returns the user's open session or nil.
func (r *Repository) ActiveSession(ctx context.Context, userID string) (*domain.Session, error) {
	session := domain.Session{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT check_in FROM active_sessions WHERE user_id = $1`, userID).Scan(&session.CheckIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStorage("active session", err)
	}
	return &session, nil
}

// ActiveSessions lists every open session ordered by user.
func (r *Repository) ActiveSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, check_in FROM active_sessions ORDER BY user_id`)
	if err != nil {
		return nil, domain.WrapStorage("active sessions", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.UserID, &session.CheckIn); err != nil {
			return nil, domain.WrapStorage("active sessions", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, domain.WrapStorage("active sessions", rows.Err())
}

// InsertRecords writes all records in one transaction.
func (r *Repository) InsertRecords(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.WrapStorage("insert records", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`INSERT INTO attendance (user_id, check_in, check_out, duration, check_in_date) VALUES ($1,$2,$3,$4,$5)`,
			rec.UserID, rec.CheckIn, rec.CheckOut, rec.DurationSec, rec.Day.UTC())
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.WrapStorage("insert records", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.WrapStorage("insert records", err)
	}
	return nil
}

// SumDuration totals the user's seconds on day.
func (r *Repository) SumDuration(ctx context.Context, userID string, day clock.Date) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(duration), 0)::BIGINT FROM attendance WHERE user_id = $1 AND check_in_date = $2`,
		userID, day.UTC()).Scan(&total)
	if err != nil {
		return 0, domain.WrapStorage("sum duration", err)
	}
	return total, nil
}

// DistinctUsers lists users with at least one record in the month.
func (r *Repository) DistinctUsers(ctx context.Context, year int, month time.Month) ([]string, error) {
	first, last := clock.MonthBounds(year, month)
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM attendance WHERE check_in_date BETWEEN $1 AND $2 ORDER BY user_id`,
		first.UTC(), last.UTC())
	if err != nil {
		return nil, domain.WrapStorage("distinct users", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, domain.WrapStorage("distinct users", err)
	}
	return users, nil
}

// DailyTotals sums the user's seconds for each requested day. Days without
// records are absent from the result.
func (r *Repository) DailyTotals(ctx context.Context, userID string, days []clock.Date) (map[clock.Date]int64, error) {
	totals := make(map[clock.Date]int64, len(days))
	if len(days) == 0 {
		return totals, nil
	}
	params := make([]time.Time, len(days))
	for i, d := range days {
		params[i] = d.UTC()
	}

	rows, err := r.pool.Query(ctx,
		`SELECT check_in_date, SUM(duration)::BIGINT FROM attendance
        WHERE user_id = $1 AND check_in_date = ANY($2::date[])
        GROUP BY check_in_date`, userID, params)
	if err != nil {
		return nil, domain.WrapStorage("daily totals", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day   time.Time
			total int64
		)
		if err := rows.Scan(&day, &total); err != nil {
			return nil, domain.WrapStorage("daily totals", err)
		}
		totals[clock.DateOf(day)] = total
	}
	return totals, domain.WrapStorage("daily totals", rows.Err())
}

// PurgeBefore deletes records whose day is strictly before cutoff.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff clock.Date) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attendance WHERE check_in_date < $1`, cutoff.UTC())
	if err != nil {
		return 0, domain.WrapStorage("purge", err)
	}
	observability.RecordPurged(tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// UpsertWeeklyGoal stores or replaces the user's goal for the week.
func (r *Repository) UpsertWeeklyGoal(ctx context.Context, goal domain.WeeklyGoal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO weekly_goals (user_id, goal_text, week_start_date, updated_at) VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, week_start_date) DO UPDATE SET goal_text = EXCLUDED.goal_text, updated_at = EXCLUDED.updated_at`,
		goal.UserID, goal.GoalText, goal.WeekStart.UTC(), goal.UpdatedAt)
	return domain.WrapStorage("upsert weekly goal", err)
}

// WeeklyGoals lists the goals set for the week starting at weekStart.
func (r *Repository) WeeklyGoals(ctx context.Context, weekStart clock.Date) ([]domain.WeeklyGoal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, goal_text, updated_at FROM weekly_goals WHERE week_start_date = $1 ORDER BY user_id`,
		weekStart.UTC())
	if err != nil {
		return nil, domain.WrapStorage("weekly goals", err)
	}
	defer rows.Close()

	var goals []domain.WeeklyGoal
	for rows.Next() {
		goal := domain.WeeklyGoal{WeekStart: weekStart}
		if err := rows.Scan(&goal.UserID, &goal.GoalText, &goal.UpdatedAt); err != nil {
			return nil, domain.WrapStorage("weekly goals", err)
		}
		goals = append(goals, goal)
	}
	return goals, domain.WrapStorage("weekly goals", rows.Err())
}

// LastFired returns the day a report trigger last ran.
func (r *Repository) LastFired(ctx context.Context, trigger string) (clock.Date, bool, error) {
	var day time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT last_fired_date FROM report_triggers WHERE trigger_name = $1`, trigger).Scan(&day)
	if errors.Is(err, pgx.ErrNoRows) {
		return clock.Date{}, false, nil
	}
	if err != nil {
		return clock.Date{}, false, domain.WrapStorage("last fired", err)
	}
	return clock.DateOf(day), true, nil
}

// MarkFired records that trigger ran on day.
func (r *Repository) MarkFired(ctx context.Context, trigger string, day clock.Date) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO report_triggers (trigger_name, last_fired_date) VALUES ($1, $2)
        ON CONFLICT (trigger_name) DO UPDATE SET last_fired_date = EXCLUDED.last_fired_date`,
		trigger, day.UTC())
	return domain.WrapStorage("mark fired", err)
}
