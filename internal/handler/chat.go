package handler

import (
	"errors"
	"net/http"

	"crewmind/internal/logger"
	"crewmind/internal/model"
	"crewmind/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	assistant *service.Assistant
	users     *service.AuthService
}

func NewChatHandler(assistant *service.Assistant, users *service.AuthService) *ChatHandler {
	return &ChatHandler{assistant: assistant, users: users}
}

// currentUser loads the authenticated user's full row; handlers need role,
// owner back-reference and timezone, not just the JWT claims.
func currentUser(c *gin.Context, users *service.AuthService) (model.User, bool) {
	uid := c.GetInt("user_id")
	user, err := users.GetUser(c.Request.Context(), uid)
	if err != nil {
		logger.Error("load user failed", "uid", uid, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again"})
		return model.User{}, false
	}
	return user, true
}

// POST /api/chat/ask
func (h *ChatHandler) Ask(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user, ok := currentUser(c, h.users)
	if !ok {
		return
	}

	reply, err := h.assistant.Ask(c.Request.Context(), user, req)
	if errors.Is(err, model.ErrInvalidAIResponse) {
		logger.Warn("chat.invalid_ai_response", "uid", user.ID, "question", req.Question)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "AI returned an invalid response, please try again."})
		return
	}
	if err != nil {
		logger.Error("chat.failed", "uid", user.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "something went wrong, please try again"})
		return
	}
	c.JSON(http.StatusOK, model.ChatResponse{Response: reply})
}
