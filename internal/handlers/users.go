package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-calling/internal/directory"
	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

type UserHandler struct {
	dir directory.Directory
	log *slog.Logger
}

func NewUserHandler(dir directory.Directory, log *slog.Logger) *UserHandler {
	return &UserHandler{dir: dir, log: log}
}

// GetUser reports whether a user with the given identity exists.
func (h *UserHandler) GetUser(c *gin.Context) {
	id := models.Identity(c.Param("id"))

	exists, err := h.dir.Exists(c.Request.Context(), id)
	if err != nil {
		h.log.Error("directory lookup failed", slog.String("op", "handlers.users.get"), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up user"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": id})
}
