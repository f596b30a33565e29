package report

import (
	"fmt"
	"strings"
	"time"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/domain"
)

var statusIcons = map[domain.DayStatus]string{
	domain.StatusPass:    "✅",
	domain.StatusPartial: "⚠️",
	domain.StatusAbsent:  "❌",
}

const legend = "> (✅: goal met, ⚠️: not enough, ❌: absent)"

// Mention renders a chat mention for a user.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// StatusLine renders statuses as space-separated icons.
func StatusLine(statuses []domain.DayStatus) string {
	icons := make([]string, len(statuses))
	for i, s := range statuses {
		icons[i] = statusIcons[s]
	}
	return strings.Join(icons, " ")
}

func weekdayLabels(dates []clock.Date) string {
	labels := make([]string, len(dates))
	for i, d := range dates {
		labels[i] = d.Weekday().String()[:3]
	}
	return "`" + strings.Join(labels, " ") + "`"
}

func rowLines(rows []WeeklyRow) []string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("`%s` %s", StatusLine(row.Statuses), Mention(row.UserID)))
	}
	return lines
}

// RenderWeeklyMid renders the Thursday check-in.
func RenderWeeklyMid(r WeeklyReport) string {
	lines := []string{
		fmt.Sprintf("[🔥 Midweek push] %s week %d check-in", r.Month, r.WeekOfMonth),
		"Two days left until the weekend! Here is where everyone stands.",
		weekdayLabels(r.Dates),
	}
	lines = append(lines, rowLines(r.Rows)...)
	lines = append(lines, "\n"+legend+"\n\nThere is still plenty of time. Keep going! 🚀")
	return strings.Join(lines, "\n")
}

// RenderCurrent renders the on-demand report for the current week.
func RenderCurrent(r WeeklyReport) string {
	if len(r.Rows) == 0 {
		return "No activity recorded this month yet. Start right now! 💪"
	}
	lines := []string{
		fmt.Sprintf("[📢 This week so far] %s week %d", r.Month, r.WeekOfMonth),
		"Attendance up to today.",
		weekdayLabels(r.Dates),
	}
	lines = append(lines, rowLines(r.Rows)...)
	lines = append(lines, "\n"+legend)
	return strings.Join(lines, "\n")
}

// RenderWeeklyFinal renders the Monday settlement of the previous week.
func RenderWeeklyFinal(r WeeklyReport) string {
	lines := []string{
		fmt.Sprintf("[✅ Weekly results] %s week %d final", r.Month, r.WeekOfMonth),
		"Great work last week, everyone. Here are the final results.",
		weekdayLabels(r.Dates),
	}
	for _, row := range r.Rows {
		result := "Missed 😥"
		if row.Achieved {
			result = "Achieved! 🎉"
		}
		lines = append(lines, fmt.Sprintf("`%s` %s   **%s** (month: %d weeks passed)",
			StatusLine(row.Statuses), Mention(row.UserID), result, row.MonthlyWeeks))
	}
	lines = append(lines, "\nHere's to another week together!")
	return strings.Join(lines, "\n")
}

// RenderMonthlyMid renders the exemption outlook sent after the third week.
func RenderMonthlyMid(m MonthlyMidCheck) string {
	lines := []string{
		fmt.Sprintf("[🚨 Monthly checkpoint] What is left for the %s fee exemption", m.Month),
		fmt.Sprintf("The last stretch already! Here is the %s exemption status.", m.Month),
	}
	for _, row := range m.Rows {
		var status string
		switch row.Outlook {
		case OutlookConfirmed:
			status = "Exemption confirmed! 🥳"
		case OutlookOneMoreWeek:
			status = "Pass one more week to be exempt! 🔥"
		default:
			status = "Exemption is out of reach, but finish strong! 💪"
		}
		lines = append(lines, fmt.Sprintf("%s: **%d weeks** so far - **%s**", Mention(row.UserID), row.Weeks, status))
	}
	return strings.Join(lines, "\n")
}

// RenderMonthlyFinal renders the fee settlement for a month.
func RenderMonthlyFinal(r MonthlyReport) string {
	if len(r.Rows) == 0 {
		return "There are no attendance records for that month."
	}
	lines := []string{
		fmt.Sprintf("[🏆 Monthly settlement] %s results and data reset", r.Month),
		fmt.Sprintf("Thanks for a great %s %d, everyone! Here is the final fee settlement.", r.Month, r.Year),
		"\n**🎉 Fee exempt**",
	}
	lines = append(lines, settlementLines(r.Exempt())...)
	lines = append(lines, "\n**😥 Fee charged**")
	lines = append(lines, settlementLines(r.Charged())...)
	return strings.Join(lines, "\n")
}

func settlementLines(rows []MonthlyRow) []string {
	if len(rows) == 0 {
		return []string{"- Nobody."}
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("• %s (%d weeks passed)", Mention(row.UserID), row.Weeks))
	}
	return lines
}

// RenderDataReset renders the notice sent after the monthly purge.
func RenderDataReset(purged, next time.Month) string {
	return fmt.Sprintf("\n---\n*All %s attendance data has been reset. Let's keep it up in %s!*", purged, next)
}

// RenderSessionStarted renders the notice sent when a user starts a session.
func RenderSessionStarted(userID string) string {
	return fmt.Sprintf("%s, work started! 🔥", Mention(userID))
}

// RenderSessionCompleted renders the feedback sent when a session closes,
// one total per calendar day the session touched.
func RenderSessionCompleted(userID string, totals []domain.DayTotal) string {
	lines := []string{fmt.Sprintf("Good work, %s! 👏", Mention(userID))}
	for _, t := range totals {
		lines = append(lines, fmt.Sprintf("> %s total: %s", t.Day.UTC().Format("Jan 2"), FormatDuration(t.TotalSec)))
	}
	return strings.Join(lines, "\n")
}

// RenderAreaStatus renders an area status change. changedBy may be empty.
func RenderAreaStatus(status, changedBy string) string {
	if changedBy == "" {
		return fmt.Sprintf("The room status changed to '**%s**'! (could not tell who changed it 😥)", status)
	}
	return fmt.Sprintf("%s opened the '**%s**' room! 🎉", Mention(changedBy), status)
}

// FormatDuration renders seconds as "HHh MMm".
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%02dh %02dm", hours, minutes)
}
