package handler

import (
	"errors"
	"net/http"

	"crewmind/internal/logger"
	"crewmind/internal/model"
	"crewmind/internal/service"

	"github.com/gin-gonic/gin"
)

type EmailHandler struct {
	assistant *service.Assistant
	users     *service.AuthService
}

func NewEmailHandler(assistant *service.Assistant, users *service.AuthService) *EmailHandler {
	return &EmailHandler{assistant: assistant, users: users}
}

// POST /api/emails/draft
func (h *EmailHandler) Draft(c *gin.Context) {
	var req model.EmailDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user, ok := currentUser(c, h.users)
	if !ok {
		return
	}

	draft, err := h.assistant.DraftEmail(c.Request.Context(), user, req)
	if errors.Is(err, model.ErrInvalidAIResponse) {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "AI returned an invalid response, please try again."})
		return
	}
	if err != nil {
		logger.Error("email.draft failed", "uid", user.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again"})
		return
	}
	c.JSON(http.StatusOK, draft)
}
