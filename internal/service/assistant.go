package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewmind/internal/logger"
	"crewmind/internal/model"

	"gorm.io/gorm"
)

// placeholderMeetingLink is stored when the external scheduler cannot
// produce a real link. The meeting write itself must never be blocked by a
// link failure.
const placeholderMeetingLink = "link unavailable"

// LinkProvider is the external scheduling/calendar collaborator. Both
// operations are best-effort from the router's point of view.
type LinkProvider interface {
	CreateMeetingLink(ctx context.Context, title string, at time.Time) (string, error)
	PushCalendarEvent(ctx context.Context, title string, at time.Time, participants []string)
}

// rejection is a validation or business error surfaced to the user as a
// conversational sentence with HTTP 200. It never escapes Ask as an error.
type rejection struct {
	msg string
}

func (r rejection) Error() string { return r.msg }

func rejectf(format string, args ...any) error {
	return rejection{msg: fmt.Sprintf(format, args...)}
}

// teamRejection converts a TeamNotFoundError into its user-facing sentence
// and passes every other error through.
func teamRejection(err error) error {
	var tnf *TeamNotFoundError
	if errors.As(err, &tnf) {
		return rejectf("I couldn't find a team named %q in your workspace.", tnf.Name)
	}
	return err
}

// Assistant executes classified chat actions against the caller's data.
// One classification maps to exactly one execution; there are no
// cross-action transitions and no retries.
type Assistant struct {
	db       *gorm.DB
	ai       *AIService
	contexts *ContextBuilder
	links    LinkProvider
	audit    *Audit
	now      func() time.Time
}

func NewAssistant(db *gorm.DB, ai *AIService, links LinkProvider, audit *Audit) *Assistant {
	return &Assistant{
		db:       db,
		ai:       ai,
		contexts: NewContextBuilder(db),
		links:    links,
		audit:    audit,
		now:      time.Now,
	}
}

// Ask runs the full chat pipeline: aggregate context, classify, execute,
// respond. Validation rejections come back as the reply text; only
// classifier and infrastructure failures return an error.
func (a *Assistant) Ask(ctx context.Context, user model.User, req model.ChatRequest) (string, error) {
	now := a.now()
	snap, err := a.contexts.Build(ctx, user, now)
	if err != nil {
		return "", err
	}
	grounding := snap.Render(user.Name, req.Timezone, now)

	action, err := a.ai.ClassifyAction(ctx, req.Question, req.History, grounding, req.Timezone, now)
	if err != nil {
		return "", err
	}
	logger.Info("assistant.action", "uid", user.ID, "action", action.Kind)

	reply, err := a.execute(ctx, user, action, req, grounding, now)
	var rej rejection
	if errors.As(err, &rej) {
		return rej.msg, nil
	}
	if err != nil {
		return "", err
	}
	a.audit.Record(user.ID, action.Kind, req.Question)
	return reply, nil
}

func (a *Assistant) execute(ctx context.Context, user model.User, action model.Action, req model.ChatRequest, grounding string, now time.Time) (string, error) {
	p := action.Payload
	switch action.Kind {
	case model.ActionCreateTask:
		return a.createTask(ctx, user, p)
	case model.ActionScheduleMeeting:
		return a.scheduleMeeting(ctx, user, p, req.Timezone)
	case model.ActionAddNote:
		return a.addNote(ctx, user, p)
	case model.ActionUpdateTasks:
		return a.updateTasks(ctx, user, p)
	case model.ActionDeleteTasks:
		return a.deleteTasks(ctx, user, p)
	case model.ActionUpdateNote:
		return a.updateNote(ctx, user, p)
	case model.ActionDeleteNote:
		return a.deleteNote(ctx, user, p)
	case model.ActionUpdateMeeting:
		return a.updateMeeting(ctx, user, p, req.Timezone)
	case model.ActionDeleteMeeting:
		return a.deleteMeeting(ctx, user, p)
	case model.ActionSetAttendance:
		return a.setAttendance(ctx, user, p, now)
	default:
		return a.ai.Answer(ctx, req.Question, req.History, grounding)
	}
}

// ownTeams reads the caller's team list fresh. Write branches never reuse
// the aggregation snapshot for validation, so concurrent roster edits are
// always seen.
func (a *Assistant) ownTeams(ctx context.Context, user model.User) ([]model.Team, error) {
	var teams []model.Team
	if err := a.db.WithContext(ctx).
		Where("owner_id IN ?", user.ScopeIDs()).
		Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	return teams, nil
}

func (a *Assistant) createTask(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.TeamName == "" || p.AssignedTo == "" || p.Title == "" {
		return "", rejectf("To create a task I need the team, the assignee and a title. Could you give me all three?")
	}
	teams, err := a.ownTeams(ctx, user)
	if err != nil {
		return "", err
	}
	team, err := resolveTeam(teams, p.TeamName)
	if err != nil {
		return "", teamRejection(err)
	}
	if !team.HasMember(p.AssignedTo) {
		return "", rejectf("%s isn't a member of %s, so I didn't create the task.", p.AssignedTo, team.TeamName)
	}

	task := model.Task{
		TeamID:      team.ID,
		Title:       p.Title,
		Description: p.Description,
		Status:      model.TaskPending,
		AssignedTo:  p.AssignedTo,
		CreatedBy:   user.ID,
	}
	reply := fmt.Sprintf("Created task %q for %s in %s.", p.Title, p.AssignedTo, team.TeamName)
	if p.DueDate != "" {
		start, _, _, derr := dueDateBounds(p.DueDate)
		if derr != nil {
			return "", rejectf("I couldn't understand the due date %q. Try a date like 2026-09-15.", p.DueDate)
		}
		task.DueDate = &start
		reply = fmt.Sprintf("Created task %q for %s in %s, due %s.",
			p.Title, p.AssignedTo, team.TeamName, start.Format("2006-01-02"))
	}
	if err := a.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return reply, nil
}

func (a *Assistant) scheduleMeeting(ctx context.Context, user model.User, p model.ActionPayload, tz string) (string, error) {
	if p.TeamName == "" || p.Title == "" || p.MeetingTime == "" {
		return "", rejectf("To schedule a meeting I need the team, a title and a time. Could you give me all three?")
	}
	teams, err := a.ownTeams(ctx, user)
	if err != nil {
		return "", err
	}
	team, err := resolveTeam(teams, p.TeamName)
	if err != nil {
		return "", teamRejection(err)
	}
	at, perr := time.Parse(time.RFC3339, p.MeetingTime)
	if perr != nil {
		return "", rejectf("I couldn't understand the meeting time %q. Try something like \"tomorrow at 3pm\".", p.MeetingTime)
	}
	for _, name := range p.Participants {
		if !team.HasMember(name) {
			return "", rejectf("%s isn't a member of %s, so I didn't schedule the meeting.", name, team.TeamName)
		}
	}

	// Link generation is best-effort: a scheduler outage must not block the
	// meeting write.
	link, lerr := a.links.CreateMeetingLink(ctx, p.Title, at)
	if lerr != nil {
		logger.Warn("meeting link failed", "title", p.Title, "err", lerr)
		link = placeholderMeetingLink
	}

	meeting := model.Meeting{
		TeamID:       team.ID,
		Title:        p.Title,
		Agenda:       p.Agenda,
		MeetingTime:  at.UTC(),
		Participants: p.Participants,
		MeetingLink:  link,
		CreatedBy:    user.ID,
	}
	if err := a.db.WithContext(ctx).Create(&meeting).Error; err != nil {
		return "", fmt.Errorf("create meeting: %w", err)
	}
	go a.links.PushCalendarEvent(context.Background(), p.Title, at, p.Participants)

	return fmt.Sprintf("Scheduled %q for %s at %s.",
		p.Title, team.TeamName, at.In(locationOrUTC(tz)).Format("2006-01-02 15:04")), nil
}

func (a *Assistant) addNote(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.Title == "" {
		return "", rejectf("What should the note be called? Give me at least a title.")
	}
	note := model.Note{
		UserID:     user.ID,
		Title:      p.Title,
		Content:    p.Content,
		Category:   p.Category,
		PlanPeriod: p.PlanPeriod,
	}
	if err := a.db.WithContext(ctx).Create(&note).Error; err != nil {
		return "", fmt.Errorf("create note: %w", err)
	}
	return fmt.Sprintf("Added note %q.", p.Title), nil
}

func (a *Assistant) updateTasks(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.Find.IsEmpty() {
		return "", rejectf("Which tasks should I update? Give me a team, assignee, title or status to match.")
	}
	if p.Updates.IsEmpty() {
		return "", rejectf("What should I change on those tasks?")
	}
	teams, err := a.ownTeams(ctx, user)
	if err != nil {
		return "", err
	}

	values := map[string]any{}
	if p.Updates.Title != "" {
		values["title"] = p.Updates.Title
	}
	if p.Updates.Description != "" {
		values["description"] = p.Updates.Description
	}
	if p.Updates.Status != "" {
		values["status"] = canonicalTaskStatus(p.Updates.Status)
	}
	if p.Updates.DueDate != "" {
		start, _, _, derr := dueDateBounds(p.Updates.DueDate)
		if derr != nil {
			return "", rejectf("I couldn't understand the due date %q.", p.Updates.DueDate)
		}
		values["due_date"] = start
	}
	if p.Updates.AssignedTo != "" {
		// Reassignment needs an unambiguous roster to validate against.
		if p.Find.TeamName == "" {
			return "", rejectf("To reassign tasks, tell me which team they belong to so I can check the new assignee.")
		}
		team, terr := resolveTeam(teams, p.Find.TeamName)
		if terr != nil {
			return "", teamRejection(terr)
		}
		if !team.HasMember(p.Updates.AssignedTo) {
			return "", rejectf("%s isn't a member of %s, so I didn't reassign anything.", p.Updates.AssignedTo, team.TeamName)
		}
		values["assigned_to"] = p.Updates.AssignedTo
	}

	tx, err := a.taskQuery(ctx, teams, p.Find)
	if err != nil {
		return "", teamRejection(err)
	}
	res := tx.Updates(values)
	if res.Error != nil {
		return "", fmt.Errorf("update tasks: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "No tasks matched those filters, so nothing was updated.", nil
	}
	return fmt.Sprintf("Updated %d task(s).", res.RowsAffected), nil
}

func (a *Assistant) deleteTasks(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.Find.IsEmpty() {
		return "", rejectf("Which tasks should I delete? Give me a team, assignee, title or status to match.")
	}
	teams, err := a.ownTeams(ctx, user)
	if err != nil {
		return "", err
	}
	tx, err := a.taskQuery(ctx, teams, p.Find)
	if err != nil {
		return "", teamRejection(err)
	}
	res := tx.Delete(&model.Task{})
	if res.Error != nil {
		return "", fmt.Errorf("delete tasks: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "No tasks matched those filters, so nothing was deleted.", nil
	}
	return fmt.Sprintf("Deleted %d task(s).", res.RowsAffected), nil
}

// findNote locates the caller's first note whose title contains the given
// text, case-insensitively. Multiple matches are not disambiguated further;
// the first (newest) match wins.
func (a *Assistant) findNote(ctx context.Context, user model.User, title string) (model.Note, error) {
	var note model.Note
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(title) LIKE ?", user.ID, "%"+strings.ToLower(strings.TrimSpace(title))+"%").
		Order("created_at desc").
		First(&note).Error
	return note, err
}

func (a *Assistant) updateNote(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.Find == nil || p.Find.Title == "" {
		return "", rejectf("Which note should I update? Give me part of its title.")
	}
	if p.Updates.IsEmpty() {
		return "", rejectf("What should I change on that note?")
	}
	note, err := a.findNote(ctx, user, p.Find.Title)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", rejectf("I couldn't find a note matching %q.", p.Find.Title)
	}
	if err != nil {
		return "", fmt.Errorf("find note: %w", err)
	}

	values := map[string]any{}
	if p.Updates.Title != "" {
		values["title"] = p.Updates.Title
	}
	if p.Updates.Content != "" {
		values["content"] = p.Updates.Content
	}
	if len(values) == 0 {
		return "", rejectf("What should I change on that note?")
	}
	if err := a.db.WithContext(ctx).Model(&note).Updates(values).Error; err != nil {
		return "", fmt.Errorf("update note: %w", err)
	}
	return fmt.Sprintf("Updated note %q.", note.Title), nil
}

func (a *Assistant) deleteNote(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.Find == nil || p.Find.Title == "" {
		return "", rejectf("Which note should I delete? Give me part of its title.")
	}
	note, err := a.findNote(ctx, user, p.Find.Title)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", rejectf("I couldn't find a note matching %q.", p.Find.Title)
	}
	if err != nil {
		return "", fmt.Errorf("find note: %w", err)
	}
	if err := a.db.WithContext(ctx).Delete(&note).Error; err != nil {
		return "", fmt.Errorf("delete note: %w", err)
	}
	return fmt.Sprintf("Deleted note %q.", note.Title), nil
}

// findMeeting locates the first meeting in the caller's teams whose title
// contains the given text, optionally narrowed by team and exact time.
func (a *Assistant) findMeeting(ctx context.Context, teams []model.Team, find *model.FindFilter) (model.Meeting, error) {
	ids := make([]int, len(teams))
	for i, t := range teams {
		ids[i] = t.ID
	}
	tx := a.db.WithContext(ctx).
		Where("team_id IN ?", ids).
		Where("LOWER(title) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(find.Title))+"%")
	if find.TeamName != "" {
		team, err := resolveTeam(teams, find.TeamName)
		if err != nil {
			return model.Meeting{}, err
		}
		tx = tx.Where("team_id = ?", team.ID)
	}
	if find.MeetingTime != "" {
		at, err := time.Parse(time.RFC3339, find.MeetingTime)
		if err == nil {
			tx = tx.Where("meeting_time = ?", at.UTC())
		}
	}
	var meeting model.Meeting
	err := tx.Order("meeting_time").First(&meeting).Error
	return meeting, err
}

func (a *Assistant) updateMeeting(ctx context.Context, user model.User, p model.ActionPayload, tz string) (string, error) {
	if p.Find == nil || p.Find.Title == "" {
		return "", rejectf("Which meeting should I update? Give me part of its title.")
	}
	if p.Updates.IsEmpty() {
		return "", rejectf("What should I change on that meeting?")
	}
	teams, err := a.ownTeams(ctx, user)
	if err != nil {
		return "", err
	}
	meeting, err := a.findMeeting(ctx, teams, p.Find)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", rejectf("I couldn't find a meeting matching %q.", p.Find.Title)
	}
	if err != nil {
		return "", teamRejection(err)
	}

	values := map[string]any{}
	if p.Updates.Title != "" {
		values["title"] = p.Updates.Title
	}
	if p.Updates.Agenda != "" {
		values["agenda"] = p.Updates.Agenda
	}
	if p.Updates.MeetingTime != "" {
		at, perr := time.Parse(time.RFC3339, p.Updates.MeetingTime)
		if perr != nil {
			return "", rejectf("I couldn't understand the new meeting time %q.", p.Updates.MeetingTime)
		}
		values["meeting_time"] = at.UTC()
	}
	if len(p.Updates.Participants) > 0 {
		// Participants are validated against the meeting's own team roster.
		var team model.Team
		if terr := a.db.WithContext(ctx).First(&team, meeting.TeamID).Error; terr != nil {
			return "", fmt.Errorf("load meeting team: %w", terr)
		}
		for _, name := range p.Updates.Participants {
			if !team.HasMember(name) {
				return "", rejectf("%s isn't a member of %s, so I didn't update the meeting.", name, team.TeamName)
			}
		}
		values["participants"] = p.Updates.Participants
	}
	if err := a.db.WithContext(ctx).Model(&meeting).Updates(values).Error; err != nil {
		return "", fmt.Errorf("update meeting: %w", err)
	}
	if at, ok := values["meeting_time"].(time.Time); ok {
		go a.links.PushCalendarEvent(context.Background(), meeting.Title, at, meeting.Participants)
		return fmt.Sprintf("Updated meeting %q, now at %s.",
			meeting.Title, at.In(locationOrUTC(tz)).Format("2006-01-02 15:04")), nil
	}
	return fmt.Sprintf("Updated meeting %q.", meeting.Title), nil
}

func (a *Assistant) deleteMeeting(ctx context.Context, user model.User, p model.ActionPayload) (string, error) {
	if p.Find == nil || p.Find.Title == "" {
		return "", rejectf("Which meeting should I cancel? Give me part of its title.")
	}
	teams, err := a.ownTeams(ctx, user)
	if err != nil {
		return "", err
	}
	meeting, err := a.findMeeting(ctx, teams, p.Find)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", rejectf("I couldn't find a meeting matching %q.", p.Find.Title)
	}
	if err != nil {
		return "", teamRejection(err)
	}
	if err := a.db.WithContext(ctx).Delete(&meeting).Error; err != nil {
		return "", fmt.Errorf("delete meeting: %w", err)
	}
	return fmt.Sprintf("Cancelled meeting %q.", meeting.Title), nil
}

func (a *Assistant) setAttendance(ctx context.Context, user model.User, p model.ActionPayload, now time.Time) (string, error) {
	status, ok := canonicalAttendanceStatus(p.Status)
	if !ok {
		return "", rejectf("Attendance status must be Present, Absent, Leave or Holiday.")
	}

	// teamName takes precedence over an explicit member list.
	var members []string
	var scopeLabel string
	if p.TeamName != "" {
		teams, err := a.ownTeams(ctx, user)
		if err != nil {
			return "", err
		}
		team, err := resolveTeam(teams, p.TeamName)
		if err != nil {
			return "", teamRejection(err)
		}
		members = team.Members
		scopeLabel = " in " + team.TeamName
	} else {
		members = p.Members
	}
	if len(members) == 0 {
		return "", rejectf("Whose attendance should I mark? Give me a team or a list of members.")
	}

	// Attendance is always for "today", truncated to day granularity in UTC.
	day := truncateToDay(now)
	updated := 0
	for _, member := range members {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		var rec model.Attendance
		err := a.db.WithContext(ctx).
			Where("leader_id = ? AND member = ? AND date = ?", user.ID, member, day).
			First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = model.Attendance{LeaderID: user.ID, Member: member, Date: day, Status: status}
			if cerr := a.db.WithContext(ctx).Create(&rec).Error; cerr != nil {
				return "", fmt.Errorf("create attendance: %w", cerr)
			}
		case err != nil:
			return "", fmt.Errorf("find attendance: %w", err)
		default:
			if uerr := a.db.WithContext(ctx).Model(&rec).Update("status", status).Error; uerr != nil {
				return "", fmt.Errorf("update attendance: %w", uerr)
			}
		}
		updated++
	}
	return fmt.Sprintf("Marked %d member(s)%s as %s for today.", updated, scopeLabel, status), nil
}

// DraftEmail produces an AI-drafted email grounded in the caller's
// aggregated context.
func (a *Assistant) DraftEmail(ctx context.Context, user model.User, req model.EmailDraftRequest) (model.EmailDraft, error) {
	now := a.now()
	snap, err := a.contexts.Build(ctx, user, now)
	if err != nil {
		return model.EmailDraft{}, err
	}
	draft, err := a.ai.DraftEmail(ctx, req.Instructions, req.History, snap.Render(user.Name, user.Timezone, now))
	if err != nil {
		return model.EmailDraft{}, err
	}
	a.audit.Record(user.ID, "DRAFT_EMAIL", req.Instructions)
	return draft, nil
}

func truncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
