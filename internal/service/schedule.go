package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crewmind/internal/logger"
)

// Scheduler talks to the external meeting-link / calendar service. It is a
// best-effort collaborator: callers treat every failure as non-fatal.
type Scheduler struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewScheduler(baseURL, apiKey string) *Scheduler {
	return &Scheduler{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Scheduler) CreateMeetingLink(ctx context.Context, title string, at time.Time) (string, error) {
	var resp struct {
		JoinURL string `json:"join_url"`
	}
	body := map[string]string{"title": title, "start_time": at.UTC().Format(time.RFC3339)}
	if err := s.doJSON(ctx, "POST", "/api/meetings", body, &resp); err != nil {
		return "", err
	}
	if resp.JoinURL == "" {
		return "", fmt.Errorf("scheduler returned no join url")
	}
	return resp.JoinURL, nil
}

// PushCalendarEvent mirrors a meeting into the external calendar. Failures
// are logged and suppressed; the primary write already succeeded.
func (s *Scheduler) PushCalendarEvent(ctx context.Context, title string, at time.Time, participants []string) {
	body := map[string]any{
		"title":        title,
		"start_time":   at.UTC().Format(time.RFC3339),
		"participants": participants,
	}
	if err := s.doJSON(ctx, "POST", "/api/calendar/events", body, nil); err != nil {
		logger.Warn("calendar push failed", "title", title, "err", err)
	}
}

func (s *Scheduler) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if s.baseURL == "" {
		return fmt.Errorf("scheduler not configured")
	}
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("scheduler %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scheduler %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out != nil {
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
	}
	return nil
}
