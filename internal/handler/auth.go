package handler

import (
	"net/http"
	"time"

	"crewmind/internal/logger"
	"crewmind/internal/middleware"
	"crewmind/internal/model"
	"crewmind/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type AuthHandler struct{ auth *service.AuthService }

func NewAuthHandler(auth *service.AuthService) *AuthHandler { return &AuthHandler{auth: auth} }

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	u, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.Warn("login.failed", "username", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	logger.Info("login.ok", "uid", u.ID, "name", u.Name)

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":  u.ID,
		"name": u.Name,
		"exp":  time.Now().Add(7 * 24 * time.Hour).Unix(),
	}).SignedString(middleware.JWTSecret)

	c.JSON(http.StatusOK, model.LoginResponse{
		Token: token,
		User:  model.PublicUser{ID: u.ID, Name: u.Name, Role: u.Role},
	})
}
