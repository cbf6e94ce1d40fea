package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crewmind/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// completionAPI is the slice of the OpenAI client the AI service needs.
// *openai.Client satisfies it; tests substitute a canned fake.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type AIService struct {
	client completionAPI
	model  string
}

func NewAIService(baseURL, apiKey, modelName string) *AIService {
	conf := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		conf.BaseURL = baseURL
	}
	return &AIService{client: openai.NewClientWithConfig(conf), model: modelName}
}

func NewAIServiceWithClient(client completionAPI, model string) *AIService {
	return &AIService{client: client, model: model}
}

// Fixed sentences the responder is told to use verbatim. The responder is the
// last line of defense against an unintended mutation: it only ever answers.
const (
	responderRefusal = "I can't make changes from a general question. Ask me directly, for example: \"create a task for Priya in Fixspire\"."
	responderUnknown = "I don't have that information in your workspace data."
)

func (s *AIService) chat(ctx context.Context, system string, history []model.HistoryItem, user string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, h := range history {
		role := openai.ChatMessageRoleUser
		if h.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm call: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ClassifyAction maps a free-text question onto one action from the fixed
// taxonomy. One shot, no retries; the result is parsed defensively and
// unparsable output surfaces as model.ErrInvalidAIResponse.
func (s *AIService) ClassifyAction(ctx context.Context, question string, history []model.HistoryItem, snapshot string, tz string, now time.Time) (model.Action, error) {
	loc := locationOrUTC(tz)
	system := fmt.Sprintf(`You are the intent classifier of a team-management assistant.
Today is %s and the user's timezone is %s. Resolve every relative or local
time expression ("tomorrow 3pm", "next Friday") into an absolute UTC instant
in RFC3339 form using that timezone.

Classify the user's request into exactly one action and respond with a single
JSON object only, no prose, no code fences:

{"action": "<ACTION>", "payload": { ... }}

Actions and payloads:
- GET_ANSWER: read-only question. payload: {}
- CREATE_TASK: {"teamName","assignedTo","title","description"?,"dueDate"?}
- SCHEDULE_MEETING: {"teamName","title","meetingTime","agenda"?,"participants"?}
- ADD_NOTE: {"title","content"?,"category"?,"planPeriod"?}
- UPDATE_TASKS: {"find":{"teamName"?,"assignedTo"?,"title"?,"status"?,"dueDate"?},"updates":{"status"?,"assignedTo"?,"dueDate"?,"title"?,"description"?}}
- DELETE_TASKS: {"find":{...same as UPDATE_TASKS...}}
- UPDATE_NOTE: {"find":{"title"},"updates":{"title"?,"content"?}}
- DELETE_NOTE: {"find":{"title"}}
- UPDATE_MEETING: {"find":{"title"},"updates":{"title"?,"meetingTime"?,"agenda"?,"participants"?}}
- DELETE_MEETING: {"find":{"title","teamName"?,"meetingTime"?}}
- SET_ATTENDANCE: {"status","teamName"?,"members"?}

Dates in find.dueDate may be a bare YYYY-MM-DD day or a full RFC3339 instant.
Task statuses: Pending, In Progress, Completed.
Attendance statuses: Present, Absent, Leave, Holiday.
When the request is ambiguous or purely informational, use GET_ANSWER.

The user's current workspace data:
%s`, now.In(loc).Format("2006-01-02 (Monday)"), tz, snapshot)

	raw, err := s.chat(ctx, system, history, question)
	if err != nil {
		return model.Action{}, err
	}
	return model.ParseAction(raw)
}

// Answer is the read-only conversational fallback, grounded strictly in the
// aggregated snapshot.
func (s *AIService) Answer(ctx context.Context, question string, history []model.HistoryItem, snapshot string) (string, error) {
	system := fmt.Sprintf(`You are a helpful team-management assistant. Answer the user's
question using ONLY the workspace data below. Never invent teams, tasks,
meetings, people or numbers that are not in the data.
If the user asks you to create, change or delete anything, reply exactly:
%q
If the answer is not in the data, reply exactly:
%q

Workspace data:
%s`, responderRefusal, responderUnknown, snapshot)

	return s.chat(ctx, system, history, question)
}

type insightDraft struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// GenerateInsights asks the model for at most maxInsights categorized
// observations over the snapshot. Malformed output degrades to an empty list.
func (s *AIService) GenerateInsights(ctx context.Context, snapshot string, now time.Time) []insightDraft {
	system := fmt.Sprintf(`You are a proactive team analyst. Today is %s.
Scan the workspace data for at most %d notable patterns: overdue or stalled
tasks, attendance anomalies, overloaded members, and genuine positives.
Respond with a JSON array only, no prose:
[{"type":"Warning|Suggestion|Insight","title":"...","message":"..."}]

Workspace data:
%s`, now.UTC().Format("2006-01-02"), maxInsights, snapshot)

	raw, err := s.chat(ctx, system, nil, "Generate the insights now.")
	if err != nil {
		return nil
	}
	return parseInsightDrafts(raw)
}

// parseInsightDrafts decodes the model's array, tolerating code fences and
// surrounding prose. Anything undecodable yields no insights.
func parseInsightDrafts(raw string) []insightDraft {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil
	}
	var drafts []insightDraft
	if err := json.Unmarshal([]byte(s[start:end+1]), &drafts); err != nil {
		return nil
	}
	out := drafts[:0]
	for _, d := range drafts {
		if strings.TrimSpace(d.Message) == "" {
			continue
		}
		switch d.Type {
		case model.InsightWarning, model.InsightSuggestion, model.InsightInsight:
		default:
			d.Type = model.InsightInsight
		}
		out = append(out, d)
	}
	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}

// DraftEmail produces a subject and body grounded in the snapshot.
func (s *AIService) DraftEmail(ctx context.Context, instructions string, history []model.HistoryItem, snapshot string) (model.EmailDraft, error) {
	system := fmt.Sprintf(`You draft professional emails for a team leader, grounded in the
workspace data below. Respond with a single JSON object only:
{"subject":"...","body":"..."}

Workspace data:
%s`, snapshot)

	if strings.TrimSpace(instructions) == "" {
		instructions = "Draft a status update email covering the current state of my teams."
	}
	raw, err := s.chat(ctx, system, history, instructions)
	if err != nil {
		return model.EmailDraft{}, err
	}
	body := strings.TrimSpace(raw)
	if i := strings.Index(body, "{"); i >= 0 {
		if j := strings.LastIndex(body, "}"); j > i {
			body = body[i : j+1]
		}
	}
	var draft model.EmailDraft
	if err := json.Unmarshal([]byte(body), &draft); err != nil || draft.Subject == "" {
		return model.EmailDraft{}, model.ErrInvalidAIResponse
	}
	return draft, nil
}

func locationOrUTC(tz string) *time.Location {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		return loc
	}
	return time.UTC
}
