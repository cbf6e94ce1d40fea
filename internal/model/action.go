package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// Action kinds the intent classifier may emit. Anything it returns outside
// this set degrades to ActionGetAnswer, the read-only path.
const (
	ActionGetAnswer       = "GET_ANSWER"
	ActionCreateTask      = "CREATE_TASK"
	ActionScheduleMeeting = "SCHEDULE_MEETING"
	ActionAddNote         = "ADD_NOTE"
	ActionUpdateTasks     = "UPDATE_TASKS"
	ActionDeleteTasks     = "DELETE_TASKS"
	ActionUpdateNote      = "UPDATE_NOTE"
	ActionDeleteNote      = "DELETE_NOTE"
	ActionUpdateMeeting   = "UPDATE_MEETING"
	ActionDeleteMeeting   = "DELETE_MEETING"
	ActionSetAttendance   = "SET_ATTENDANCE"
)

// ErrInvalidAIResponse marks classifier output that could not be parsed at
// all. Distinct from an unknown action kind, which falls back to GET_ANSWER.
var ErrInvalidAIResponse = errors.New("ai returned invalid response")

// Action is the tagged union produced by the intent classifier. Kind selects
// the branch; Payload carries whatever fields that branch needs.
type Action struct {
	Kind    string        `json:"action"`
	Payload ActionPayload `json:"payload"`
}

type ActionPayload struct {
	TeamName     string       `json:"teamName,omitempty"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	AssignedTo   string       `json:"assignedTo,omitempty"`
	DueDate      string       `json:"dueDate,omitempty"`
	MeetingTime  string       `json:"meetingTime,omitempty"`
	Agenda       string       `json:"agenda,omitempty"`
	Content      string       `json:"content,omitempty"`
	Category     string       `json:"category,omitempty"`
	PlanPeriod   string       `json:"planPeriod,omitempty"`
	Status       string       `json:"status,omitempty"`
	Participants []string     `json:"participants,omitempty"`
	Members      []string     `json:"members,omitempty"`
	Find         *FindFilter  `json:"find,omitempty"`
	Updates      *TaskUpdates `json:"updates,omitempty"`
}

// FindFilter is the loosely-typed locator emitted by the classifier for bulk
// and single-record operations. All fields are optional.
type FindFilter struct {
	TeamName    string `json:"teamName,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	MeetingTime string `json:"meetingTime,omitempty"`
}

func (f *FindFilter) IsEmpty() bool {
	return f == nil || (f.TeamName == "" && f.AssignedTo == "" && f.Title == "" &&
		f.Status == "" && f.DueDate == "" && f.MeetingTime == "")
}

// TaskUpdates carries the mutation half of UPDATE_TASKS / UPDATE_NOTE /
// UPDATE_MEETING payloads.
type TaskUpdates struct {
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status,omitempty"`
	AssignedTo   string   `json:"assignedTo,omitempty"`
	DueDate      string   `json:"dueDate,omitempty"`
	MeetingTime  string   `json:"meetingTime,omitempty"`
	Agenda       string   `json:"agenda,omitempty"`
	Content      string   `json:"content,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

func (u *TaskUpdates) IsEmpty() bool {
	return u == nil || (u.Title == "" && u.Description == "" && u.Status == "" &&
		u.AssignedTo == "" && u.DueDate == "" && u.MeetingTime == "" &&
		u.Agenda == "" && u.Content == "" && len(u.Participants) == 0)
}

var knownActions = map[string]bool{
	ActionGetAnswer:       true,
	ActionCreateTask:      true,
	ActionScheduleMeeting: true,
	ActionAddNote:         true,
	ActionUpdateTasks:     true,
	ActionDeleteTasks:     true,
	ActionUpdateNote:      true,
	ActionDeleteNote:      true,
	ActionUpdateMeeting:   true,
	ActionDeleteMeeting:   true,
	ActionSetAttendance:   true,
}

// ParseAction defensively decodes a raw LLM completion into an Action.
// The model is told to answer with JSON only, but it may wrap the object in
// code fences or prose; we extract the outermost object before decoding.
// Undecodable output returns ErrInvalidAIResponse; a decodable object with
// an unrecognised action kind degrades to GET_ANSWER.
func ParseAction(raw string) (Action, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return Action{}, ErrInvalidAIResponse
	}
	var a Action
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return Action{}, ErrInvalidAIResponse
	}
	a.Kind = strings.ToUpper(strings.TrimSpace(a.Kind))
	if !knownActions[a.Kind] {
		a.Kind = ActionGetAnswer
	}
	return a, nil
}

// extractJSONObject returns the substring spanning the first '{' through the
// last '}', or "" when no object-shaped region exists.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
