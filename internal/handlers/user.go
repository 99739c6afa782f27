package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nebula-chat/internal/repositories"
	"nebula-chat/internal/sanitize"
)

const searchResultLimit = 10

// UserHandler serves user lookup endpoints.
type UserHandler struct {
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// SearchUsers matches usernames case-insensitively, excluding the caller.
// Queries shorter than two characters are rejected.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if len([]rune(query)) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query too short"})
		return
	}
	query = sanitize.Text(query)

	userID := c.GetInt("userID")
	users, err := h.users.SearchUsers(c.Request.Context(), query, userID, searchResultLimit)
	if err != nil {
		h.logger.Error("user search failed", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	type userResponse struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}

	responses := make([]userResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, userResponse{
			ID:       user.ID,
			Username: user.Username,
			Avatar:   user.Avatar,
		})
	}

	c.JSON(http.StatusOK, responses)
}
