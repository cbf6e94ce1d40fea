package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"crewmind/internal/model"

	"gorm.io/gorm"
)

// TeamNotFoundError signals a team name that did not resolve against the
// caller's own team list. The router turns it into a conversational
// rejection, never a hard error.
type TeamNotFoundError struct {
	Name string
}

func (e *TeamNotFoundError) Error() string {
	return fmt.Sprintf("team %q not found", e.Name)
}

// resolveTeam matches name case-insensitively against teams. It never looks
// outside the supplied list, so the caller's tenant boundary is the search
// space by construction.
func resolveTeam(teams []model.Team, name string) (model.Team, error) {
	for _, t := range teams {
		if strings.EqualFold(strings.TrimSpace(t.TeamName), strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return model.Team{}, &TeamNotFoundError{Name: name}
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dueDateBounds interprets the classifier's dueDate token. A bare YYYY-MM-DD
// day expands to the inclusive UTC day range; anything fuller is an exact
// instant. The classifier emits both shapes, so both must resolve to the
// filter the user meant.
func dueDateBounds(s string) (start, end time.Time, exact bool, err error) {
	s = strings.TrimSpace(s)
	if dayPattern.MatchString(s) {
		day, perr := time.ParseInLocation("2006-01-02", s, time.UTC)
		if perr != nil {
			return start, end, false, fmt.Errorf("parse due date %q: %w", s, perr)
		}
		return day, day.Add(24*time.Hour - time.Millisecond), false, nil
	}
	t, perr := time.Parse(time.RFC3339, s)
	if perr != nil {
		return start, end, false, fmt.Errorf("parse due date %q: %w", s, perr)
	}
	return t.UTC(), t.UTC(), true, nil
}

// taskQuery builds the security-scoped task query for a find filter. The
// base condition is always team_id IN (caller's teams); a teamName in the
// filter narrows that set, it can never widen it.
func (a *Assistant) taskQuery(ctx context.Context, teams []model.Team, find *model.FindFilter) (*gorm.DB, error) {
	ids := make([]int, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
	}
	tx := a.db.WithContext(ctx).Model(&model.Task{}).Where("team_id IN ?", ids)
	if find == nil {
		return tx, nil
	}

	if find.TeamName != "" {
		team, err := resolveTeam(teams, find.TeamName)
		if err != nil {
			return nil, err
		}
		tx = tx.Where("team_id = ?", team.ID)
	}
	if find.AssignedTo != "" {
		tx = tx.Where("LOWER(assigned_to) = ?", strings.ToLower(strings.TrimSpace(find.AssignedTo)))
	}
	if find.Title != "" {
		tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(find.Title))+"%")
	}
	if find.Status != "" {
		tx = tx.Where("status = ?", canonicalTaskStatus(find.Status))
	}
	if find.DueDate != "" {
		start, end, exact, err := dueDateBounds(find.DueDate)
		if err != nil {
			return nil, err
		}
		if exact {
			tx = tx.Where("due_date = ?", start)
		} else {
			tx = tx.Where("due_date >= ? AND due_date <= ?", start, end)
		}
	}
	return tx, nil
}

// canonicalTaskStatus normalizes classifier casing ("pending", "IN PROGRESS")
// onto the stored status values; unknown strings pass through unchanged.
func canonicalTaskStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return model.TaskPending
	case "in progress":
		return model.TaskInProgress
	case "completed":
		return model.TaskCompleted
	}
	return strings.TrimSpace(s)
}

func canonicalAttendanceStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present":
		return model.AttendancePresent, true
	case "absent":
		return model.AttendanceAbsent, true
	case "leave":
		return model.AttendanceLeave, true
	case "holiday":
		return model.AttendanceHoliday, true
	}
	return "", false
}
