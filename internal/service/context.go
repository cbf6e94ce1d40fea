package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crewmind/internal/model"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Snapshot is one user's entire visible data set, read in a single pass and
// rendered as the grounding text for every LLM call. Read-only; any fetch
// error is a hard failure because a partial snapshot silently degrades every
// downstream decision.
type Snapshot struct {
	Teams      []model.Team
	Tasks      []model.Task
	Meetings   []model.Meeting
	TeamNotes  []model.TeamNote
	Notes      []model.Note
	Attendance []model.Attendance
	Totals     []AttendanceTotal
	Holidays   []model.Attendance
}

// AttendanceTotal is the all-time count of one status for one member.
type AttendanceTotal struct {
	Member string
	Status string
	Count  int
}

type ContextBuilder struct {
	db *gorm.DB
}

func NewContextBuilder(db *gorm.DB) *ContextBuilder {
	return &ContextBuilder{db: db}
}

// Build reads the user's full visible data set. Teams are fetched first
// because the team-scoped reads depend on their ids; everything else runs
// concurrently.
func (b *ContextBuilder) Build(ctx context.Context, user model.User, now time.Time) (*Snapshot, error) {
	scope := user.ScopeIDs()
	snap := &Snapshot{}

	if err := b.db.WithContext(ctx).
		Where("owner_id IN ?", scope).
		Order("team_name").Find(&snap.Teams).Error; err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	teamIDs := make([]int, len(snap.Teams))
	for i, t := range snap.Teams {
		teamIDs[i] = t.ID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(teamIDs) == 0 {
			return nil
		}
		if err := b.db.WithContext(gctx).Where("team_id IN ?", teamIDs).
			Order("due_date").Find(&snap.Tasks).Error; err != nil {
			return fmt.Errorf("load tasks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if len(teamIDs) == 0 {
			return nil
		}
		if err := b.db.WithContext(gctx).Where("team_id IN ?", teamIDs).
			Order("meeting_time").Find(&snap.Meetings).Error; err != nil {
			return fmt.Errorf("load meetings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if len(teamIDs) == 0 {
			return nil
		}
		if err := b.db.WithContext(gctx).Where("team_id IN ?", teamIDs).
			Order("created_at desc").Find(&snap.TeamNotes).Error; err != nil {
			return fmt.Errorf("load team notes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := b.db.WithContext(gctx).Where("user_id = ?", user.ID).
			Order("created_at desc").Find(&snap.Notes).Error; err != nil {
			return fmt.Errorf("load notes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		since := now.UTC().AddDate(0, 0, -30)
		if err := b.db.WithContext(gctx).
			Where("leader_id IN ? AND date >= ?", scope, since).
			Order("date").Find(&snap.Attendance).Error; err != nil {
			return fmt.Errorf("load attendance: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := b.db.WithContext(gctx).Model(&model.Attendance{}).
			Select("member, status, count(*) as count").
			Where("leader_id IN ?", scope).
			Group("member").Group("status").
			Scan(&snap.Totals).Error; err != nil {
			return fmt.Errorf("load attendance totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := b.db.WithContext(gctx).
			Where("leader_id IN ? AND status = ?", scope, model.AttendanceHoliday).
			Order("date").Find(&snap.Holidays).Error; err != nil {
			return fmt.Errorf("load holidays: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Render serializes the snapshot into the newline-delimited block handed to
// the LLM. Dates are always YYYY-MM-DD and meeting times are localized to
// the user's timezone so the model sees consistent tokens.
func (s *Snapshot) Render(userName string, tz string, now time.Time) string {
	loc := locationOrUTC(tz)
	var sb strings.Builder

	fmt.Fprintf(&sb, "User: %s\nToday: %s\n", userName, now.In(loc).Format("2006-01-02"))

	teamName := make(map[int]string, len(s.Teams))
	sb.WriteString("\nTeams:\n")
	if len(s.Teams) == 0 {
		sb.WriteString("- none\n")
	}
	for _, t := range s.Teams {
		teamName[t.ID] = t.TeamName
		fmt.Fprintf(&sb, "- %s (members: %s)\n", t.TeamName, strings.Join(t.Members, ", "))
	}

	sb.WriteString("\nTasks:\n")
	if len(s.Tasks) == 0 {
		sb.WriteString("- none\n")
	}
	for _, t := range s.Tasks {
		due := "no due date"
		if t.DueDate != nil {
			due = "due " + t.DueDate.UTC().Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "- [%s] %q assigned to %s in %s, %s\n",
			t.Status, t.Title, t.AssignedTo, teamName[t.TeamID], due)
	}

	sb.WriteString("\nMeetings:\n")
	if len(s.Meetings) == 0 {
		sb.WriteString("- none\n")
	}
	for _, m := range s.Meetings {
		fmt.Fprintf(&sb, "- %q for %s at %s (participants: %s)\n",
			m.Title, teamName[m.TeamID],
			m.MeetingTime.In(loc).Format("2006-01-02 15:04"),
			strings.Join(m.Participants, ", "))
	}

	sb.WriteString("\nPersonal notes:\n")
	if len(s.Notes) == 0 {
		sb.WriteString("- none\n")
	}
	for _, n := range s.Notes {
		line := n.Title
		if n.Content != "" {
			line += ": " + n.Content
		}
		if n.Category != "" {
			line += " [" + n.Category + "]"
		}
		fmt.Fprintf(&sb, "- %s\n", line)
	}

	sb.WriteString("\nTeam notes:\n")
	if len(s.TeamNotes) == 0 {
		sb.WriteString("- none\n")
	}
	for _, n := range s.TeamNotes {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", teamName[n.TeamID], n.Title, n.Content)
	}

	sb.WriteString("\nAttendance (last 30 days):\n")
	if len(s.Attendance) == 0 {
		sb.WriteString("- none\n")
	}
	for _, a := range s.Attendance {
		fmt.Fprintf(&sb, "- %s: %s on %s\n", a.Member, a.Status, a.Date.UTC().Format("2006-01-02"))
	}

	sb.WriteString("\nAttendance totals (all time):\n")
	if len(s.Totals) == 0 {
		sb.WriteString("- none\n")
	}
	for _, t := range s.Totals {
		fmt.Fprintf(&sb, "- %s: %d day(s) %s\n", t.Member, t.Count, t.Status)
	}

	if len(s.Holidays) > 0 {
		sb.WriteString("\nHolidays:\n")
		for _, h := range s.Holidays {
			fmt.Fprintf(&sb, "- %s on %s\n", h.Member, h.Date.UTC().Format("2006-01-02"))
		}
	}

	return sb.String()
}
