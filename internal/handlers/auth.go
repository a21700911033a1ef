package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-calling/internal/directory"
	"github.com/mossy-p/webrtc-calling/internal/middleware"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type AuthHandler struct {
	dir      directory.Directory
	secret   string
	tokenTTL time.Duration
	log      *slog.Logger
}

func NewAuthHandler(dir directory.Directory, jwtSecret string, tokenTTL time.Duration, log *slog.Logger) *AuthHandler {
	return &AuthHandler{dir: dir, secret: jwtSecret, tokenTTL: tokenTTL, log: log}
}

// Login issues a token and registers the user in the directory.
// For demo purposes, accepts any username/password combination
func (h *AuthHandler) Login(c *gin.Context) {
	const op = "handlers.auth.login"
	log := h.log.With(slog.String("op", op))

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	userID := req.Username

	if err := h.dir.Register(c.Request.Context(), models.Identity(userID)); err != nil {
		log.Error("failed to register user", slog.String("user_id", userID), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register user",
		})
		return
	}

	token, err := middleware.IssueToken(h.secret, userID, h.tokenTTL)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	log.Info("user logged in", slog.String("user_id", userID))
	c.JSON(http.StatusOK, LoginResponse{
		Token:  token,
		UserID: userID,
	})
}
