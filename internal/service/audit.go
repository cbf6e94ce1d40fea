package service

import (
	"context"
	"time"

	"crewmind/internal/logger"
	"crewmind/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit appends AIActionLog rows. Record is fire-and-forget: it never blocks
// the user-facing response and swallows its own failures.
type Audit struct {
	db *gorm.DB
}

func NewAudit(db *gorm.DB) *Audit { return &Audit{db: db} }

func (a *Audit) Record(userID int, action, detail string) {
	if len(detail) > 500 {
		detail = detail[:500]
	}
	rec := model.AIActionLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		// Deliberately detached from the request context: an abandoned
		// connection must not cancel the audit write.
		if err := a.db.WithContext(context.Background()).Create(&rec).Error; err != nil {
			logger.Warn("audit write failed", "action", action, "err", err)
		}
	}()
}

func (a *Audit) Recent(ctx context.Context, userID, limit int) ([]model.AIActionLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var logs []model.AIActionLog
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Limit(limit).
		Find(&logs).Error
	return logs, err
}
