package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"example.com/attendance/internal/domain"
)

// goalsFile is the YAML layout of GOALS_FILE. Goals are whole seconds or Go
// durations:
//
//	default: 2h
//	weekly_goal_days: 4
//	monthly_goal_weeks: 3
//	groups:
//	  - name: part-time
//	    goal: 1h
//	    members: [u1, u2]
//	users:
//	  u3: 3h30m
type goalsFile struct {
	Default          string            `yaml:"default"`
	WeeklyGoalDays   int               `yaml:"weekly_goal_days"`
	MonthlyGoalWeeks int               `yaml:"monthly_goal_weeks"`
	Groups           []goalGroupYAML   `yaml:"groups"`
	Users            map[string]string `yaml:"users"`
}

type goalGroupYAML struct {
	Name    string   `yaml:"name"`
	Goal    string   `yaml:"goal"`
	Members []string `yaml:"members"`
}

// LoadGoals reads the goals file at path on top of base. Keys absent from the
// file keep the base value.
func LoadGoals(path string, base domain.GoalTable) (domain.GoalTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.GoalTable{}, fmt.Errorf("read goals file: %w", err)
	}
	return ParseGoals(data, base)
}

// ParseGoals decodes a goals document on top of base.
func ParseGoals(data []byte, base domain.GoalTable) (domain.GoalTable, error) {
	var doc goalsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.GoalTable{}, fmt.Errorf("parse goals file: %w", err)
	}

	table := base
	var errs []error
	if doc.Default != "" {
		sec, err := goalSeconds(doc.Default)
		if err != nil {
			errs = append(errs, fmt.Errorf("default: %w", err))
		}
		table.DefaultSec = sec
	}
	if doc.WeeklyGoalDays != 0 {
		if doc.WeeklyGoalDays < 1 || doc.WeeklyGoalDays > 7 {
			errs = append(errs, fmt.Errorf("weekly_goal_days: %d is outside 1-7", doc.WeeklyGoalDays))
		}
		table.WeeklyGoalDays = doc.WeeklyGoalDays
	}
	if doc.MonthlyGoalWeeks != 0 {
		if doc.MonthlyGoalWeeks < 1 || doc.MonthlyGoalWeeks > 6 {
			errs = append(errs, fmt.Errorf("monthly_goal_weeks: %d is outside 1-6", doc.MonthlyGoalWeeks))
		}
		table.MonthlyGoalWeeks = doc.MonthlyGoalWeeks
	}

	table.Groups = make([]domain.GoalGroup, 0, len(doc.Groups))
	for i, g := range doc.Groups {
		sec, err := goalSeconds(g.Goal)
		if err != nil {
			errs = append(errs, fmt.Errorf("groups[%d] %s: %w", i, g.Name, err))
			continue
		}
		table.Groups = append(table.Groups, domain.GoalGroup{Name: g.Name, GoalSec: sec, Members: g.Members})
	}

	table.Users = make(map[string]int64, len(doc.Users))
	for userID, raw := range doc.Users {
		sec, err := goalSeconds(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("users.%s: %w", userID, err))
			continue
		}
		table.Users[userID] = sec
	}

	if err := errors.Join(errs...); err != nil {
		return domain.GoalTable{}, fmt.Errorf("goals file: %w", err)
	}
	return table, nil
}

// goalSeconds accepts whole seconds ("7200") or a duration ("2h").
func goalSeconds(raw string) (int64, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if sec < 1 {
			return 0, fmt.Errorf("goal %q must be at least one second", raw)
		}
		return sec, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("goal %q must be at least one second", raw)
	}
	return int64(d / time.Second), nil
}
