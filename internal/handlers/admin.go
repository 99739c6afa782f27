package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nebula-chat/internal/repositories"
)

// adminUserID is the only account allowed to run cleanup. The first
// registered user is the de facto administrator.
const adminUserID = 1

const defaultCleanupDays = 90

// AdminHandler exposes maintenance endpoints.
type AdminHandler struct {
	messages repositories.MessageRepository
	logger   *zap.Logger
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(messages repositories.MessageRepository, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{messages: messages, logger: logger}
}

// CleanupMessages deletes messages older than the requested number of days.
func (h *AdminHandler) CleanupMessages(c *gin.Context) {
	userID := c.GetInt("userID")
	if userID != adminUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	var req struct {
		Days *int `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	days := defaultCleanupDays
	if req.Days != nil {
		days = *req.Days
	}
	if days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be at least 1"})
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := h.messages.DeleteOlderThan(c.Request.Context(), cutoff)
	if err != nil {
		h.logger.Error("manual cleanup failed", zap.Int("days", days), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}

	h.logger.Info("manual cleanup completed",
		zap.Int("user_id", userID),
		zap.Int64("deleted", deleted),
		zap.Int("days", days),
	)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": deleted,
		"days":    days,
	})
}
