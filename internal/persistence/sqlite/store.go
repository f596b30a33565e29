// Package sqlite stores attendance in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/observability"
)

// Store is the SQLite implementation of domain.Store and the scheduler state.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": []string{"busy_timeout(5000)", "journal_mode(WAL)", "foreign_keys(1)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// OpenSession inserts the user's active session, failing if one exists.
func (s *Store) OpenSession(ctx context.Context, userID string, checkIn time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO active_sessions (user_id, check_in) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, formatTime(checkIn))
	if err != nil {
		return domain.WrapStorage("open session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.WrapStorage("open session", err)
	}
	if n == 0 {
		return domain.ErrSessionAlreadyOpen
	}
	return nil
}

// CloseSession removes and returns the user's check-in in one statement.
func (s *Store) CloseSession(ctx context.Context, userID string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM active_sessions WHERE user_id = ? RETURNING check_in`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, domain.WrapStorage("close session", err)
	}
	checkIn, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, domain.WrapStorage("close session", err)
	}
	return checkIn, true, nil
}

// ActiveSession returns the user's open session or nil.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*domain.Session, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT check_in FROM active_sessions WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapStorage("active session", err)
	}
	checkIn, err := parseTime(raw)
	if err != nil {
		return nil, domain.WrapStorage("active session", err)
	}
	return &domain.Session{UserID: userID, CheckIn: checkIn}, nil
}

// ActiveSessions lists every open session ordered by user.
func (s *Store) ActiveSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, check_in FROM active_sessions ORDER BY user_id`)
	if err != nil {
		return nil, domain.WrapStorage("active sessions", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			session domain.Session
			raw     string
		)
		if err := rows.Scan(&session.UserID, &raw); err != nil {
			return nil, domain.WrapStorage("active sessions", err)
		}
		if session.CheckIn, err = parseTime(raw); err != nil {
			return nil, domain.WrapStorage("active sessions", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, domain.WrapStorage("active sessions", rows.Err())
}

// InsertRecords writes all records in one transaction.
func (s *Store) InsertRecords(ctx context.Context, records []domain.Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapStorage("insert records", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attendance (user_id, check_in, check_out, duration, check_in_date) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return domain.WrapStorage("insert records", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.UserID, formatTime(r.CheckIn), formatTime(r.CheckOut), r.DurationSec, r.Day.String()); err != nil {
			return domain.WrapStorage("insert records", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return domain.WrapStorage("insert records", err)
	}
	return nil
}

// SumDuration totals the user's seconds on day.
func (s *Store) SumDuration(ctx context.Context, userID string, day clock.Date) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(duration), 0) FROM attendance WHERE user_id = ? AND check_in_date = ?`,
		userID, day.String()).Scan(&total)
	if err != nil {
		return 0, domain.WrapStorage("sum duration", err)
	}
	return total, nil
}

// DistinctUsers lists users with at least one record in the month.
func (s *Store) DistinctUsers(ctx context.Context, year int, month time.Month) ([]string, error) {
	first, last := clock.MonthBounds(year, month)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM attendance WHERE check_in_date BETWEEN ? AND ? ORDER BY user_id`,
		first.String(), last.String())
	if err != nil {
		return nil, domain.WrapStorage("distinct users", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, domain.WrapStorage("distinct users", err)
		}
		users = append(users, userID)
	}
	return users, domain.WrapStorage("distinct users", rows.Err())
}

// DailyTotals sums the user's seconds for each requested day. Days without
// records are absent from the result.
func (s *Store) DailyTotals(ctx context.Context, userID string, days []clock.Date) (map[clock.Date]int64, error) {
	totals := make(map[clock.Date]int64, len(days))
	if len(days) == 0 {
		return totals, nil
	}

	args := make([]any, 0, len(days)+1)
	args = append(args, userID)
	for _, d := range days {
		args = append(args, d.String())
	}
	query := `SELECT check_in_date, SUM(duration) FROM attendance
        WHERE user_id = ? AND check_in_date IN (` + placeholders(len(days)) + `)
        GROUP BY check_in_date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStorage("daily totals", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw   string
			total int64
		)
		if err := rows.Scan(&raw, &total); err != nil {
			return nil, domain.WrapStorage("daily totals", err)
		}
		day, err := clock.ParseDate(raw)
		if err != nil {
			return nil, domain.WrapStorage("daily totals", err)
		}
		totals[day] = total
	}
	return totals, domain.WrapStorage("daily totals", rows.Err())
}

// PurgeBefore deletes records whose day is strictly before cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff clock.Date) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE check_in_date < ?`, cutoff.String())
	if err != nil {
		return 0, domain.WrapStorage("purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.WrapStorage("purge", err)
	}
	observability.RecordPurged(n)
	return n, nil
}

// UpsertWeeklyGoal stores or replaces the user's goal for the week.
func (s *Store) UpsertWeeklyGoal(ctx context.Context, goal domain.WeeklyGoal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weekly_goals (user_id, goal_text, week_start_date, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (user_id, week_start_date) DO UPDATE SET goal_text = excluded.goal_text, updated_at = excluded.updated_at`,
		goal.UserID, goal.GoalText, goal.WeekStart.String(), formatTime(goal.UpdatedAt))
	return domain.WrapStorage("upsert weekly goal", err)
}

// WeeklyGoals lists the goals set for the week starting at weekStart.
func (s *Store) WeeklyGoals(ctx context.Context, weekStart clock.Date) ([]domain.WeeklyGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, goal_text, updated_at FROM weekly_goals WHERE week_start_date = ? ORDER BY user_id`,
		weekStart.String())
	if err != nil {
		return nil, domain.WrapStorage("weekly goals", err)
	}
	defer rows.Close()

	var goals []domain.WeeklyGoal
	for rows.Next() {
		var (
			goal = domain.WeeklyGoal{WeekStart: weekStart}
			raw  string
		)
		if err := rows.Scan(&goal.UserID, &goal.GoalText, &raw); err != nil {
			return nil, domain.WrapStorage("weekly goals", err)
		}
		if goal.UpdatedAt, err = parseTime(raw); err != nil {
			return nil, domain.WrapStorage("weekly goals", err)
		}
		goals = append(goals, goal)
	}
	return goals, domain.WrapStorage("weekly goals", rows.Err())
}

// LastFired returns the day a report trigger last ran.
func (s *Store) LastFired(ctx context.Context, trigger string) (clock.Date, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_fired_date FROM report_triggers WHERE trigger_name = ?`, trigger).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return clock.Date{}, false, nil
	}
	if err != nil {
		return clock.Date{}, false, domain.WrapStorage("last fired", err)
	}
	day, err := clock.ParseDate(raw)
	if err != nil {
		return clock.Date{}, false, domain.WrapStorage("last fired", err)
	}
	return day, true, nil
}

// MarkFired records that trigger ran on day.
func (s *Store) MarkFired(ctx context.Context, trigger string, day clock.Date) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_triggers (trigger_name, last_fired_date) VALUES (?, ?)
        ON CONFLICT (trigger_name) DO UPDATE SET last_fired_date = excluded.last_fired_date`,
		trigger, day.String())
	return domain.WrapStorage("mark fired", err)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
