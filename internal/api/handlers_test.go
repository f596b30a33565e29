package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/persistence/sqlite"
	"example.com/attendance/internal/report"
)

var kst = time.FixedZone("KST", 9*60*60)

type fixture struct {
	store *sqlite.Store
	mux   *http.ServeMux
	clock *quartz.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2024, time.February, 7, 12, 0, 0, 0, kst))
	local := clock.NewLocal(mClock, kst)

	agg := domain.NewAggregator(store, domain.NewGoalResolver(domain.GoalTable{Users: map[string]int64{"slow": 3600}}))
	handler := NewHandler(store, agg, report.NewBuilder(store, agg), local)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return &fixture{store: store, mux: mux, clock: mClock}
}

func (f *fixture) seed(t *testing.T, userID string, in, out time.Time) {
	t.Helper()
	records, err := domain.SplitRecords(userID, in, out)
	require.NoError(t, err)
	require.NoError(t, f.store.InsertRecords(context.Background(), records))
}

func (f *fixture) do(t *testing.T, method, target, body string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if scopes != nil {
		claims := &auth.Claims{Subject: "tester", Scopes: map[string]struct{}{}, ExpiresAt: time.Now().Add(time.Hour)}
		for _, s := range scopes {
			claims.Scopes[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func kstTime(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, kst)
}

func TestDailyAttendance(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", kstTime(time.February, 7, 9, 0), kstTime(time.February, 7, 10, 30))
	f.seed(t, "slow", kstTime(time.February, 6, 9, 0), kstTime(time.February, 6, 10, 0))

	rr := f.do(t, http.MethodGet, "/v1/attendance/daily?user_id=u1", "", auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[DailyAttendanceResponse](t, rr)
	require.EqualValues(t, 5400, resp.TotalSec)
	require.EqualValues(t, 7200, resp.GoalSec)
	require.Equal(t, domain.StatusPartial, resp.Status)
	require.Equal(t, clock.NewDate(2024, time.February, 7), resp.Date)
	require.Equal(t, "01h 30m", resp.Formatted)

	rr = f.do(t, http.MethodGet, "/v1/attendance/daily?user_id=slow&date=2024-02-06", "", auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, domain.StatusPass, decode[DailyAttendanceResponse](t, rr).Status)
}

func TestDailyAttendanceValidation(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/attendance/daily", "", auth.ScopeAttendanceRead).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/attendance/daily?user_id=u&date=07-02-2024", "", auth.ScopeAttendanceRead).Code)
	require.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodPost, "/v1/attendance/daily?user_id=u", "", auth.ScopeAttendanceRead).Code)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/attendance/daily?user_id=u", "").Code)

	rr := f.do(t, http.MethodGet, "/v1/attendance/daily?user_id=u", "", "other:read")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decode[map[string]string](t, rr)["type"])
}

func TestWeeklyReportMondayThroughDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "u1", kstTime(time.February, 5, 9, 0), kstTime(time.February, 5, 11, 0))
	f.seed(t, "u1", kstTime(time.February, 6, 9, 0), kstTime(time.February, 6, 9, 30))

	rr := f.do(t, http.MethodGet, "/v1/reports/weekly", "", auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[WeeklyReportResponse](t, rr)
	require.Len(t, resp.Dates, 3)
	require.Len(t, resp.Rows, 1)
	require.Equal(t, []domain.DayStatus{domain.StatusPass, domain.StatusPartial, domain.StatusAbsent}, resp.Rows[0].Statuses)
	require.Contains(t, resp.Text, "<@u1>")
}

func TestMonthlyReportDefaultsToPreviousMonth(t *testing.T) {
	f := newFixture(t)
	for _, day := range []int{1, 2, 3, 4, 8, 9, 10, 11, 15, 16, 17, 18} {
		f.seed(t, "steady", kstTime(time.January, day, 9, 0), kstTime(time.January, day, 11, 0))
	}
	f.seed(t, "rare", kstTime(time.January, 2, 9, 0), kstTime(time.January, 2, 9, 10))

	rr := f.do(t, http.MethodGet, "/v1/reports/monthly", "", auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[MonthlyReportResponse](t, rr)
	require.Equal(t, 2024, resp.Year)
	require.Equal(t, time.January, resp.Month)
	require.Equal(t, []string{"steady"}, resp.Exempt)
	require.Equal(t, []string{"rare"}, resp.Charged)

	rr = f.do(t, http.MethodGet, "/v1/reports/monthly?year=2024&month=2", "", auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decode[MonthlyReportResponse](t, rr).Rows)

	for _, bad := range []string{"month=0", "month=13", "month=feb", "year=-1"} {
		rr = f.do(t, http.MethodGet, "/v1/reports/monthly?"+bad, "", auth.ScopeAttendanceRead)
		require.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestActiveSessions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.OpenSession(context.Background(), "u1", kstTime(time.February, 7, 11, 0)))

	rr := f.do(t, http.MethodGet, "/v1/sessions/active", "", auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[ActiveSessionsResponse](t, rr)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "u1", resp.Items[0].UserID)
	require.EqualValues(t, 3600, resp.Items[0].ElapsedSec)
}

func TestWeeklyGoals(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPut, "/v1/weekly-goals", `{"user_id":"u1","goal_text":"ship it"}`, auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/weekly-goals", `{"user_id":"u1","goal_text":"  "}`, auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/weekly-goals", `{`, auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPut, "/v1/weekly-goals", `{"user_id":"u1","goal_text":"ship it"}`, auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, clock.NewDate(2024, time.February, 5), decode[WeeklyGoalView](t, rr).WeekStart)

	rr = f.do(t, http.MethodPut, "/v1/weekly-goals", `{"user_id":"u1","goal_text":"ship it twice"}`, auth.ScopeAttendanceWrite)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/weekly-goals?week=2024-02-08", "", auth.ScopeAttendanceRead)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[WeeklyGoalsResponse](t, rr)
	require.Equal(t, clock.NewDate(2024, time.February, 5), resp.WeekStart)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "ship it twice", resp.Items[0].GoalText)

	rr = f.do(t, http.MethodGet, "/v1/weekly-goals?week=2024-02-12", "", auth.ScopeAttendanceRead)
	require.Empty(t, decode[WeeklyGoalsResponse](t, rr).Items)

	require.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodDelete, "/v1/weekly-goals", "", auth.ScopeAttendanceWrite).Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
