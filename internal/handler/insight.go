package handler

import (
	"errors"
	"net/http"
	"strconv"

	"crewmind/internal/logger"
	"crewmind/internal/model"
	"crewmind/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type InsightHandler struct {
	insights *service.InsightService
	audit    *service.Audit
	users    *service.AuthService
}

func NewInsightHandler(insights *service.InsightService, audit *service.Audit, users *service.AuthService) *InsightHandler {
	return &InsightHandler{insights: insights, audit: audit, users: users}
}

// GET /api/insights — regenerates transparently when stale.
func (h *InsightHandler) List(c *gin.Context) {
	user, ok := currentUser(c, h.users)
	if !ok {
		return
	}
	insights, err := h.insights.Current(c.Request.Context(), user)
	if err != nil {
		logger.Error("insights.failed", "uid", user.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again"})
		return
	}
	if insights == nil {
		insights = []model.Insight{}
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

// PUT /api/insights/:id/read
func (h *InsightHandler) MarkRead(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	uid := c.GetInt("user_id")
	if err := h.insights.MarkRead(c.Request.Context(), uid, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "insight not found"})
			return
		}
		logger.Error("insights.mark_read failed", "uid", uid, "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/ai/logs — the caller's recent assistant action audit trail.
func (h *InsightHandler) Logs(c *gin.Context) {
	uid := c.GetInt("user_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.audit.Recent(c.Request.Context(), uid, limit)
	if err != nil {
		logger.Error("audit.list failed", "uid", uid, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again"})
		return
	}
	if logs == nil {
		logs = []model.AIActionLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
