package service

import (
	"context"
	"testing"
	"time"

	"crewmind/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ask(t *testing.T, a *Assistant, user model.User, question string) (string, error) {
	t.Helper()
	return a.Ask(context.Background(), user, model.ChatRequest{
		Question: question,
		Timezone: "UTC",
	})
}

func TestCreateTaskHappyPath(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionCreateTask, `{"teamName":"fixspire","assignedTo":"Priya","title":"Ship onboarding","dueDate":"2026-09-05"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, team := seedTenant(t, db, "ava", "Fixspire", []string{"Priya", "Daniel"})

	reply, err := ask(t, a, user, "give Priya a task to ship onboarding by Sept 5")
	require.NoError(t, err)
	assert.Contains(t, reply, "Created task")
	assert.Contains(t, reply, "Fixspire")

	var task model.Task
	require.NoError(t, db.First(&task).Error)
	assert.Equal(t, team.ID, task.TeamID)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, "Priya", task.AssignedTo)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, "2026-09-05", task.DueDate.UTC().Format("2006-01-02"))
}

func TestCreateTaskRejectsNonMemberWithoutWriting(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionCreateTask, `{"teamName":"Fixspire","assignedTo":"Omar","title":"Ship onboarding"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "give Omar a task")
	require.NoError(t, err)
	assert.Contains(t, reply, "Omar")
	assert.Contains(t, reply, "Fixspire")

	var count int64
	db.Model(&model.Task{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateTaskUnknownTeamRejected(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionCreateTask, `{"teamName":"Ghost","assignedTo":"Priya","title":"x"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "task for the Ghost team")
	require.NoError(t, err)
	assert.Contains(t, reply, `"Ghost"`)
}

func TestUpdateTasksEmptyUpdatesRejectedIdempotently(t *testing.T) {
	payload := `{"find":{"teamName":"Fixspire"},"updates":{}}`
	llm := &fakeLLM{replies: []string{
		classify(model.ActionUpdateTasks, payload),
		classify(model.ActionUpdateTasks, payload),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, team := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})
	require.NoError(t, db.Create(&model.Task{TeamID: team.ID, Title: "Keep me", AssignedTo: "Priya", Status: model.TaskPending, CreatedBy: user.ID}).Error)

	first, err := ask(t, a, user, "update the Fixspire tasks")
	require.NoError(t, err)
	second, err := ask(t, a, user, "update the Fixspire tasks")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var task model.Task
	require.NoError(t, db.First(&task).Error)
	assert.Equal(t, model.TaskPending, task.Status)
}

func TestUpdateTasksEmptyFindRejected(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionUpdateTasks, `{"find":{},"updates":{"status":"Completed"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "mark everything done")
	require.NoError(t, err)
	assert.Contains(t, reply, "Which tasks")
}

func TestUpdateTasksZeroMatchesIsSuccessShaped(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionUpdateTasks, `{"find":{"title":"nonexistent"},"updates":{"status":"Completed"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "complete the nonexistent task")
	require.NoError(t, err)
	assert.Contains(t, reply, "No tasks matched")
}

func TestReassignmentRequiresTeamHint(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionUpdateTasks, `{"find":{"assignedTo":"Priya"},"updates":{"assignedTo":"Daniel"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya", "Daniel"})

	reply, err := ask(t, a, user, "move Priya's tasks to Daniel")
	require.NoError(t, err)
	assert.Contains(t, reply, "which team")
}

func TestBulkDeleteNeverCrossesTenants(t *testing.T) {
	// Classifier supplies no team filter at all; the query must still be
	// intersected with the caller's own team ids.
	llm := &fakeLLM{replies: []string{
		classify(model.ActionDeleteTasks, `{"find":{"status":"Pending"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	alice, aliceTeam := seedTenant(t, db, "alice", "Fixspire", []string{"Priya"})
	_, bobTeam := seedTenant(t, db, "bob", "Rivals", []string{"Zed"})

	require.NoError(t, db.Create(&model.Task{TeamID: aliceTeam.ID, Title: "mine", AssignedTo: "Priya", Status: model.TaskPending, CreatedBy: alice.ID}).Error)
	require.NoError(t, db.Create(&model.Task{TeamID: bobTeam.ID, Title: "theirs", AssignedTo: "Zed", Status: model.TaskPending, CreatedBy: 999}).Error)

	reply, err := ask(t, a, alice, "delete all pending tasks")
	require.NoError(t, err)
	assert.Contains(t, reply, "Deleted 1 task(s)")

	var remaining []model.Task
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, bobTeam.ID, remaining[0].TeamID)
}

func TestDueDateDayRangeFilter(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionDeleteTasks, `{"find":{"dueDate":"2025-11-15"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, team := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	inDay := time.Date(2025, 11, 15, 10, 30, 0, 0, time.UTC)
	nextDay := time.Date(2025, 11, 16, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&model.Task{TeamID: team.ID, Title: "in range", AssignedTo: "Priya", DueDate: &inDay, CreatedBy: user.ID}).Error)
	require.NoError(t, db.Create(&model.Task{TeamID: team.ID, Title: "out of range", AssignedTo: "Priya", DueDate: &nextDay, CreatedBy: user.ID}).Error)

	reply, err := ask(t, a, user, "delete tasks due Nov 15")
	require.NoError(t, err)
	assert.Contains(t, reply, "Deleted 1 task(s)")

	var remaining model.Task
	require.NoError(t, db.First(&remaining).Error)
	assert.Equal(t, "out of range", remaining.Title)
}

func TestDueDateExactInstantFilter(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionDeleteTasks, `{"find":{"dueDate":"2025-11-15T10:00:00Z"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, team := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	exact := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
	sameDay := time.Date(2025, 11, 15, 11, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&model.Task{TeamID: team.ID, Title: "exact", AssignedTo: "Priya", DueDate: &exact, CreatedBy: user.ID}).Error)
	require.NoError(t, db.Create(&model.Task{TeamID: team.ID, Title: "same day", AssignedTo: "Priya", DueDate: &sameDay, CreatedBy: user.ID}).Error)

	reply, err := ask(t, a, user, "delete the 10am task")
	require.NoError(t, err)
	assert.Contains(t, reply, "Deleted 1 task(s)")

	var remaining model.Task
	require.NoError(t, db.First(&remaining).Error)
	assert.Equal(t, "same day", remaining.Title)
}

func TestScheduleMeetingSurvivesLinkFailure(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionScheduleMeeting, `{"teamName":"Fixspire","title":"Sprint review","meetingTime":"2026-09-01T15:00:00Z","participants":["Priya"]}`),
	}}
	a, db := newTestAssistant(t, llm, downLinks{})
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "schedule a sprint review tomorrow 3pm")
	require.NoError(t, err)
	assert.Contains(t, reply, "Scheduled")

	var meeting model.Meeting
	require.NoError(t, db.First(&meeting).Error)
	assert.Equal(t, placeholderMeetingLink, meeting.MeetingLink)
	assert.Equal(t, []string{"Priya"}, meeting.Participants)
}

func TestScheduleMeetingRejectsForeignParticipant(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionScheduleMeeting, `{"teamName":"Fixspire","title":"Sync","meetingTime":"2026-09-01T15:00:00Z","participants":["Zed"]}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "schedule a sync with Zed")
	require.NoError(t, err)
	assert.Contains(t, reply, "Zed")

	var count int64
	db.Model(&model.Meeting{}).Count(&count)
	assert.Zero(t, count)
}

func TestDeleteMeetingWithDisambiguators(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionDeleteMeeting, `{"find":{"title":"standup","teamName":"Fixspire","meetingTime":"2026-09-02T09:00:00Z"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, team := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	keep := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	drop := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&model.Meeting{TeamID: team.ID, Title: "Daily Standup", MeetingTime: keep, CreatedBy: user.ID}).Error)
	require.NoError(t, db.Create(&model.Meeting{TeamID: team.ID, Title: "Daily Standup", MeetingTime: drop, CreatedBy: user.ID}).Error)

	reply, err := ask(t, a, user, "cancel tomorrow's standup")
	require.NoError(t, err)
	assert.Contains(t, reply, "Cancelled")

	var remaining model.Meeting
	require.NoError(t, db.First(&remaining).Error)
	assert.Equal(t, keep, remaining.MeetingTime.UTC())
}

func TestDeleteNoteNotFound(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionDeleteNote, `{"find":{"title":"Old Ideas"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "delete the note titled Old Ideas")
	require.NoError(t, err)
	assert.Contains(t, reply, "couldn't find a note matching")
	assert.Contains(t, reply, "Old Ideas")
}

func TestUpdateNoteFirstMatchOnly(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionUpdateNote, `{"find":{"title":"plan"},"updates":{"content":"revised"}}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	older := model.Note{UserID: user.ID, Title: "Plan A", Content: "one", CreatedAt: testNow.Add(-2 * time.Hour)}
	newer := model.Note{UserID: user.ID, Title: "Plan B", Content: "two", CreatedAt: testNow.Add(-1 * time.Hour)}
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)

	_, err := ask(t, a, user, "update my plan note")
	require.NoError(t, err)

	var got model.Note
	require.NoError(t, db.First(&got, newer.ID).Error)
	assert.Equal(t, "revised", got.Content)
	var untouched model.Note
	require.NoError(t, db.First(&untouched, older.ID).Error)
	assert.Equal(t, "one", untouched.Content)
}

func TestSetAttendanceExpandsTeamAndUpserts(t *testing.T) {
	payload := `{"teamName":"Fixspire","status":"Present"}`
	llm := &fakeLLM{replies: []string{
		classify(model.ActionSetAttendance, payload),
		classify(model.ActionSetAttendance, `{"teamName":"Fixspire","status":"Absent"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya", "Daniel", "Mei"})

	reply, err := ask(t, a, user, "mark the whole Fixspire team present")
	require.NoError(t, err)
	assert.Contains(t, reply, "3 member(s)")
	assert.Contains(t, reply, "Present")

	var count int64
	db.Model(&model.Attendance{}).Count(&count)
	assert.EqualValues(t, 3, count)

	// second call for the same day updates in place, no duplicate rows
	_, err = ask(t, a, user, "actually mark them absent")
	require.NoError(t, err)
	db.Model(&model.Attendance{}).Count(&count)
	assert.EqualValues(t, 3, count)

	var rec model.Attendance
	require.NoError(t, db.Where("member = ?", "Priya").First(&rec).Error)
	assert.Equal(t, model.AttendanceAbsent, rec.Status)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), rec.Date.UTC())
}

func TestSetAttendanceTeamNameTakesPrecedenceOverMembers(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionSetAttendance, `{"teamName":"Fixspire","members":["Stranger"],"status":"Leave"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	_, err := ask(t, a, user, "mark leave")
	require.NoError(t, err)

	var count int64
	db.Model(&model.Attendance{}).Where("member = ?", "Stranger").Count(&count)
	assert.Zero(t, count)
	db.Model(&model.Attendance{}).Where("member = ?", "Priya").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestSetAttendanceBadStatusRejected(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionSetAttendance, `{"teamName":"Fixspire","status":"WFH"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "mark everyone WFH")
	require.NoError(t, err)
	assert.Contains(t, reply, "Present, Absent, Leave or Holiday")
}

func TestMalformedClassifierOutputIsDistinguishable(t *testing.T) {
	llm := &fakeLLM{replies: []string{`{"action":"CREATE_TASK","payload":{"teamNa`}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	_, err := ask(t, a, user, "do something")
	assert.ErrorIs(t, err, model.ErrInvalidAIResponse)

	var count int64
	db.Model(&model.Task{}).Count(&count)
	assert.Zero(t, count)
}

func TestUnknownActionFallsBackToReadOnlyAnswer(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		`{"action":"FORMAT_DISK","payload":{}}`,
		"You have one team, Fixspire, with 1 open task.",
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	reply, err := ask(t, a, user, "what's going on?")
	require.NoError(t, err)
	assert.Contains(t, reply, "Fixspire")
	assert.Equal(t, 2, llm.callCount())
}

func TestManagerScopeIncludesOwnerTeams(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionCreateTask, `{"teamName":"Fixspire","assignedTo":"Priya","title":"Cross-scope task"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	owner, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	manager := model.User{Username: "raj", Name: "Raj", Role: model.RoleManager, OwnerID: &owner.ID, Timezone: "UTC"}
	require.NoError(t, db.Create(&manager).Error)

	reply, err := ask(t, a, manager, "create a task in Fixspire")
	require.NoError(t, err)
	assert.Contains(t, reply, "Created task")
}

func TestAuditLogWrittenOnSuccess(t *testing.T) {
	llm := &fakeLLM{replies: []string{
		classify(model.ActionAddNote, `{"title":"Quarterly goals"}`),
	}}
	a, db := newTestAssistant(t, llm, nil)
	user, _ := seedTenant(t, db, "ava", "Fixspire", []string{"Priya"})

	_, err := ask(t, a, user, "note down quarterly goals")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var count int64
		db.Model(&model.AIActionLog{}).Where("user_id = ? AND action = ?", user.ID, model.ActionAddNote).Count(&count)
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}
