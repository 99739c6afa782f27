package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/sanitize"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageHandler serves message history.
type MessageHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	logger   *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{rooms: rooms, messages: messages, logger: logger}
}

// GetMessages returns a page of room history in chronological order.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	userID := c.GetInt("userID")
	if room.RestrictsAccess() {
		member, err := h.rooms.IsMember(c.Request.Context(), room.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(c, "per_page", defaultPageSize)
	if perPage < 1 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	msgs, err := h.messages.ListRoomMessages(c.Request.Context(), room.ID, perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("fetch messages failed", zap.Int("room_id", room.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	// The query returns newest first; history reads oldest first.
	responses := make([]models.MessagePayload, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		reactions := msg.Reactions
		if reactions == nil {
			reactions = models.ReactionSet{}
		}
		responses = append(responses, models.MessagePayload{
			ID:         msg.ID,
			Text:       msg.Text,
			User:       msg.Username,
			UserAvatar: msg.Avatar,
			Timestamp:  msg.Timestamp.Format("15:04"),
			IsOwn:      msg.UserID == userID,
			Reactions:  reactions,
			ReplyTo:    h.replyPreview(c, msg.ReplyToID),
		})
	}

	c.JSON(http.StatusOK, responses)
}

func (h *MessageHandler) replyPreview(c *gin.Context, replyToID *int) *models.ReplyPreview {
	if replyToID == nil {
		return nil
	}
	ref, err := h.messages.GetMessageWithAuthor(c.Request.Context(), *replyToID)
	if err != nil {
		return nil
	}
	return &models.ReplyPreview{
		ID:   ref.ID,
		Text: sanitize.Truncate(ref.Text, 50),
		User: ref.Username,
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
