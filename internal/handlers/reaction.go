package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/ws"
)

const maxEmojiLength = 10

// ReactionHandler toggles emoji reactions on messages.
type ReactionHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	hub      *ws.Hub
	logger   *zap.Logger
}

// NewReactionHandler builds a ReactionHandler.
func NewReactionHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, users repositories.UserRepository, hub *ws.Hub, logger *zap.Logger) *ReactionHandler {
	return &ReactionHandler{
		rooms:    rooms,
		messages: messages,
		users:    users,
		hub:      hub,
		logger:   logger,
	}
}

// React toggles the caller's reaction on a message and broadcasts the
// full updated mapping to the message's room.
func (h *ReactionHandler) React(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji required"})
		return
	}

	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emoji required"})
		return
	}
	if len([]rune(emoji)) > maxEmojiLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid emoji"})
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), msg.RoomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
		return
	}

	userID := c.GetInt("userID")
	if room.RestrictsAccess() {
		member, err := h.rooms.IsMember(c.Request.Context(), room.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
		return
	}

	reactions := msg.Reactions
	if reactions == nil {
		reactions = models.ReactionSet{}
	}
	reactions.Toggle(emoji, user.Username)

	if err := h.messages.UpdateReactions(c.Request.Context(), msg.ID, reactions); err != nil {
		h.logger.Error("reaction update failed", zap.Int("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update reaction"})
		return
	}

	h.hub.Broadcast(room.ID, models.EventMessageReaction, models.ReactionPayload{
		MessageID: msg.ID,
		Reactions: reactions,
	}, nil)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"reactions": reactions,
	})
}
