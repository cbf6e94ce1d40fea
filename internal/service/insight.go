package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crewmind/internal/logger"
	"crewmind/internal/model"

	"gorm.io/gorm"
)

const (
	// insightFreshness is how long a generation cycle stays valid. Within
	// the window no LLM call is issued and nothing is deleted or recreated.
	insightFreshness = 4 * time.Hour
	maxInsights      = 5
)

// InsightService regenerates the caller's unread insights when they go
// stale. Regeneration replaces unread insights wholesale; read insights are
// preserved as history.
type InsightService struct {
	db       *gorm.DB
	ai       *AIService
	contexts *ContextBuilder
	now      func() time.Time
}

func NewInsightService(db *gorm.DB, ai *AIService) *InsightService {
	return &InsightService{db: db, ai: ai, contexts: NewContextBuilder(db), now: time.Now}
}

// Current returns the user's unread insights, transparently regenerating
// when the last cycle is older than the freshness window. Generation
// failures degrade to "no new insights": this runs as a side effect of a
// read endpoint and must never fail that read.
func (s *InsightService) Current(ctx context.Context, user model.User) ([]model.Insight, error) {
	now := s.now()

	var latest model.Insight
	err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("created_at desc").First(&latest).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load latest insight: %w", err)
	}
	stale := err != nil || now.Sub(latest.CreatedAt) >= insightFreshness
	if stale {
		s.regenerate(ctx, user, now)
	}

	var unread []model.Insight
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Order("created_at desc").Find(&unread).Error; err != nil {
		return nil, fmt.Errorf("load insights: %w", err)
	}
	return unread, nil
}

func (s *InsightService) regenerate(ctx context.Context, user model.User, now time.Time) {
	// Unread insights are replaced wholesale, read ones kept as history.
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Delete(&model.Insight{}).Error; err != nil {
		logger.Warn("insight cleanup failed", "uid", user.ID, "err", err)
		return
	}

	snap, err := s.contexts.Build(ctx, user, now)
	if err != nil {
		logger.Warn("insight context failed", "uid", user.ID, "err", err)
		return
	}
	drafts := s.ai.GenerateInsights(ctx, snap.Render(user.Name, user.Timezone, now), now)
	if len(drafts) == 0 {
		logger.Info("insight generation produced nothing", "uid", user.ID)
		return
	}

	rows := make([]model.Insight, 0, len(drafts))
	for _, d := range drafts {
		rows = append(rows, model.Insight{
			UserID:    user.ID,
			Type:      d.Type,
			Title:     d.Title,
			Message:   d.Message,
			CreatedAt: now,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		logger.Warn("insight save failed", "uid", user.ID, "err", err)
		return
	}
	logger.Info("insights regenerated", "uid", user.ID, "count", len(rows))
}

// MarkRead flags one insight as read. gorm.ErrRecordNotFound when the id
// does not exist or belongs to another user.
func (s *InsightService) MarkRead(ctx context.Context, userID, id int) error {
	res := s.db.WithContext(ctx).Model(&model.Insight{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark insight read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
