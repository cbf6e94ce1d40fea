package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"crewmind/internal/model"

	"github.com/glebarez/sqlite"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// shared-cache in-memory DB so gorm's connection pool sees one database
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Team{}, &model.Task{}, &model.Meeting{},
		&model.Note{}, &model.TeamNote{}, &model.Attendance{},
		&model.Insight{}, &model.AIActionLog{},
	))
	return db
}

// fakeLLM plays back scripted completions in order and counts calls.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
	err     error
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if len(f.replies) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("fakeLLM: no scripted reply")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type okLinks struct{}

func (okLinks) CreateMeetingLink(context.Context, string, time.Time) (string, error) {
	return "https://meet.example/room-1", nil
}
func (okLinks) PushCalendarEvent(context.Context, string, time.Time, []string) {}

type downLinks struct{}

func (downLinks) CreateMeetingLink(context.Context, string, time.Time) (string, error) {
	return "", errors.New("scheduler unreachable")
}
func (downLinks) PushCalendarEvent(context.Context, string, time.Time, []string) {}

func newTestAssistant(t *testing.T, llm *fakeLLM, links LinkProvider) (*Assistant, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	if links == nil {
		links = okLinks{}
	}
	a := NewAssistant(db, NewAIServiceWithClient(llm, "test-model"), links, NewAudit(db))
	a.now = func() time.Time { return testNow }
	return a, db
}

// seedTenant creates a leader with one team and returns both.
func seedTenant(t *testing.T, db *gorm.DB, username, teamName string, members []string) (model.User, model.Team) {
	t.Helper()
	user := model.User{Username: username, Name: username, Role: model.RoleOwner, Timezone: "UTC"}
	require.NoError(t, db.Create(&user).Error)
	team := model.Team{OwnerID: user.ID, TeamName: teamName, Members: members}
	require.NoError(t, db.Create(&team).Error)
	return user, team
}

func classify(kind string, payload string) string {
	return fmt.Sprintf(`{"action":%q,"payload":%s}`, kind, payload)
}
