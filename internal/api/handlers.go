// Package api exposes HTTP handlers for the attendance service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"example.com/attendance/internal/auth"
	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/report"
)

const maxGoalTextLength = 500

// Handler coordinates HTTP requests with the aggregation engine and reports.
type Handler struct {
	store   domain.Store
	agg     *domain.Aggregator
	reports *report.Builder
	clock   *clock.Local
}

// NewHandler builds a Handler.
func NewHandler(store domain.Store, agg *domain.Aggregator, reports *report.Builder, local *clock.Local) *Handler {
	return &Handler{store: store, agg: agg, reports: reports, clock: local}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/attendance/daily", h.dailyAttendance)
	mux.HandleFunc("/v1/reports/weekly", h.weeklyReport)
	mux.HandleFunc("/v1/reports/monthly", h.monthlyReport)
	mux.HandleFunc("/v1/sessions/active", h.activeSessions)
	mux.HandleFunc("/v1/weekly-goals", h.weeklyGoals)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) dailyAttendance(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, auth.ScopeAttendanceRead) {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}
	day, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	total, err := h.agg.DailyTotal(r.Context(), userID, day)
	if err != nil {
		writeServerError(w, err)
		return
	}
	goal := h.agg.Goals().Resolve(userID)

	writeJSON(w, http.StatusOK, DailyAttendanceResponse{
		UserID:    userID,
		Date:      day,
		TotalSec:  total,
		GoalSec:   goal,
		Status:    domain.Classify(total, goal),
		Formatted: report.FormatDuration(total),
	})
}

func (h *Handler) weeklyReport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, auth.ScopeAttendanceRead) {
		return
	}
	day, ok := h.dateParam(w, r, "date")
	if !ok {
		return
	}

	weekly, err := h.reports.Current(r.Context(), day)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WeeklyReportResponse{WeeklyReport: weekly, Text: report.RenderCurrent(weekly)})
}

func (h *Handler) monthlyReport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, auth.ScopeAttendanceRead) {
		return
	}

	year, month := clock.PreviousMonth(h.clock.Today())
	query := r.URL.Query()
	if raw := query.Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "validation_failed", "year must be a positive integer")
			return
		}
		year = parsed
	}
	if raw := query.Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			writeError(w, http.StatusBadRequest, "validation_failed", "month must be between 1 and 12")
			return
		}
		month = time.Month(parsed)
	}

	monthly, err := h.reports.MonthlyFinal(r.Context(), year, month)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MonthlyReportResponse{
		MonthlyReport: monthly,
		Exempt:        userIDs(monthly.Exempt()),
		Charged:       userIDs(monthly.Charged()),
		Text:          report.RenderMonthlyFinal(monthly),
	})
}

func (h *Handler) activeSessions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) || !requireScope(w, r, auth.ScopeAttendanceRead) {
		return
	}

	sessions, err := h.store.ActiveSessions(r.Context())
	if err != nil {
		writeServerError(w, err)
		return
	}

	now := h.clock.Now()
	items := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, SessionView{
			UserID:     s.UserID,
			CheckIn:    s.CheckIn.In(h.clock.Location()),
			ElapsedSec: int64(now.Sub(s.CheckIn) / time.Second),
		})
	}
	writeJSON(w, http.StatusOK, ActiveSessionsResponse{Items: items})
}

func (h *Handler) weeklyGoals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWeeklyGoals(w, r)
	case http.MethodPut:
		h.putWeeklyGoal(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listWeeklyGoals(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeAttendanceRead) {
		return
	}
	day, ok := h.dateParam(w, r, "week")
	if !ok {
		return
	}
	weekStart := clock.StartOfWeek(day)

	goals, err := h.store.WeeklyGoals(r.Context(), weekStart)
	if err != nil {
		writeServerError(w, err)
		return
	}
	items := make([]WeeklyGoalView, 0, len(goals))
	for _, g := range goals {
		items = append(items, toWeeklyGoalView(g))
	}
	writeJSON(w, http.StatusOK, WeeklyGoalsResponse{WeekStart: weekStart, Items: items})
}

func (h *Handler) putWeeklyGoal(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeAttendanceWrite) {
		return
	}

	var req PutWeeklyGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	goal := domain.WeeklyGoal{
		UserID:    strings.TrimSpace(req.UserID),
		GoalText:  strings.TrimSpace(req.GoalText),
		WeekStart: clock.StartOfWeek(h.clock.Today()),
		UpdatedAt: h.clock.Now(),
	}
	if err := h.store.UpsertWeeklyGoal(r.Context(), goal); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeeklyGoalView(goal))
}

// dateParam reads an optional YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request, name string) (clock.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return h.clock.Today(), true
	}
	day, err := clock.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("%s must be YYYY-MM-DD", name))
		return clock.Date{}, false
	}
	return day, true
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return false
	}
	return true
}

// requireScope accepts the write scope wherever the read scope is asked for.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if claims.HasScope(scope) || (scope == auth.ScopeAttendanceRead && claims.HasScope(auth.ScopeAttendanceWrite)) {
		return true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return false
}

// DailyAttendanceResponse is one user's total for one day.
type DailyAttendanceResponse struct {
	UserID    string           `json:"user_id"`
	Date      clock.Date       `json:"date"`
	TotalSec  int64            `json:"total_sec"`
	GoalSec   int64            `json:"goal_sec"`
	Status    domain.DayStatus `json:"status"`
	Formatted string           `json:"formatted"`
}

// WeeklyReportResponse is the Monday-to-date report with its rendered text.
type WeeklyReportResponse struct {
	report.WeeklyReport
	Text string `json:"text"`
}

// MonthlyReportResponse is a month settlement with its rendered text.
type MonthlyReportResponse struct {
	report.MonthlyReport
	Exempt  []string `json:"exempt"`
	Charged []string `json:"charged"`
	Text    string   `json:"text"`
}

// SessionView describes one open session.
type SessionView struct {
	UserID     string    `json:"user_id"`
	CheckIn    time.Time `json:"check_in"`
	ElapsedSec int64     `json:"elapsed_sec"`
}

// ActiveSessionsResponse lists the open sessions.
type ActiveSessionsResponse struct {
	Items []SessionView `json:"items"`
}

// PutWeeklyGoalRequest is the payload for PUT /v1/weekly-goals.
type PutWeeklyGoalRequest struct {
	UserID   string `json:"user_id"`
	GoalText string `json:"goal_text"`
}

// Validate ensures request correctness.
func (r PutWeeklyGoalRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	text := strings.TrimSpace(r.GoalText)
	if text == "" {
		return errors.New("goal_text is required")
	}
	if utf8.RuneCountInString(text) > maxGoalTextLength {
		return fmt.Errorf("goal_text must be at most %d characters", maxGoalTextLength)
	}
	return nil
}

// WeeklyGoalView exposes one weekly goal.
type WeeklyGoalView struct {
	UserID    string     `json:"user_id"`
	GoalText  string     `json:"goal_text"`
	WeekStart clock.Date `json:"week_start"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WeeklyGoalsResponse lists the goals set for a week.
type WeeklyGoalsResponse struct {
	WeekStart clock.Date       `json:"week_start"`
	Items     []WeeklyGoalView `json:"items"`
}

func toWeeklyGoalView(g domain.WeeklyGoal) WeeklyGoalView {
	return WeeklyGoalView{UserID: g.UserID, GoalText: g.GoalText, WeekStart: g.WeekStart, UpdatedAt: g.UpdatedAt}
}

func userIDs(rows []report.MonthlyRow) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.UserID)
	}
	return out
}

func writeServerError(w http.ResponseWriter, err error) {
	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
