package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"nebula-chat/internal/models"
	"nebula-chat/internal/observability"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/sanitize"
)

const replyPreviewLength = 50

func (h *Handler) dispatchEvent(ctx context.Context, s *Session, raw []byte) {
	var evt models.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		h.sendError(s, "invalid event format")
		return
	}
	observability.IncWSEvent(evt.Event)

	switch evt.Event {
	case models.EventJoinRoom:
		h.handleJoinRoom(ctx, s, evt.Data)
	case models.EventLeaveRoom:
		h.handleLeaveRoom(ctx, s, evt.Data)
	case models.EventSendMessage:
		h.handleSendMessage(ctx, s, evt.Data)
	case models.EventTyping:
		h.handleTyping(ctx, s, evt.Data)
	default:
		h.sendError(s, "unknown event")
	}
}

func (h *Handler) sendError(s *Session, message string) {
	s.Send(models.EventError, models.ErrorPayload{Message: message})
}

// handleJoinRoom validates access and subscribes the session. The joining
// connection receives the user_joined broadcast too.
func (h *Handler) handleJoinRoom(ctx context.Context, s *Session, data json.RawMessage) {
	var payload models.RoomEventPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID <= 0 {
		h.logger.Warn("invalid room id in join_room", zap.String("username", s.Username))
		return
	}

	room, err := h.rooms.GetRoom(ctx, payload.RoomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return
		}
		h.logger.Error("join_room lookup failed", zap.Int("room_id", payload.RoomID), zap.Error(err))
		return
	}

	if room.RestrictsAccess() {
		member, err := h.rooms.IsMember(ctx, room.ID, s.UserID)
		if err != nil {
			h.logger.Error("membership check failed", zap.Int("room_id", room.ID), zap.Error(err))
			return
		}
		if !member {
			h.sendError(s, "access denied")
			return
		}
	}

	h.hub.Join(room.ID, s)
	h.logger.Info("user joined room",
		zap.String("username", s.Username),
		zap.String("room", room.Name),
	)
	h.hub.Broadcast(room.ID, models.EventUserJoined, models.RoomPresencePayload{
		User: s.Username,
		Room: room.Name,
	}, nil)
}

// handleLeaveRoom unsubscribes the session. Leaving a room never joined
// is a no-op and broadcasts nothing.
func (h *Handler) handleLeaveRoom(ctx context.Context, s *Session, data json.RawMessage) {
	var payload models.RoomEventPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID <= 0 {
		h.logger.Warn("invalid room id in leave_room", zap.String("username", s.Username))
		return
	}

	if !h.hub.Leave(payload.RoomID, s) {
		return
	}

	room, err := h.rooms.GetRoom(ctx, payload.RoomID)
	if err != nil {
		return
	}
	h.logger.Info("user left room",
		zap.String("username", s.Username),
		zap.String("room", room.Name),
	)
	h.hub.Broadcast(room.ID, models.EventUserLeft, models.RoomPresencePayload{
		User: s.Username,
		Room: room.Name,
	}, nil)
}

// handleSendMessage runs the full pipeline: rate limit, access check,
// sanitize, persist, then dual fan-out with is_own.
func (h *Handler) handleSendMessage(ctx context.Context, s *Session, data json.RawMessage) {
	if !h.limiter.Allow(s.UserID) {
		observability.IncRateLimited()
		h.logger.Warn("rate limit exceeded", zap.String("username", s.Username))
		h.sendError(s, "too many messages, please slow down")
		return
	}

	var payload models.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(s, "invalid message format")
		return
	}
	if payload.RoomID <= 0 {
		h.sendError(s, "invalid room id")
		return
	}

	room, err := h.rooms.GetRoom(ctx, payload.RoomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			h.sendError(s, "room not found")
			return
		}
		h.logger.Error("send_message lookup failed", zap.Int("room_id", payload.RoomID), zap.Error(err))
		h.sendError(s, "failed to send message")
		return
	}

	if room.RestrictsAccess() {
		member, err := h.rooms.IsMember(ctx, room.ID, s.UserID)
		if err != nil {
			h.logger.Error("membership check failed", zap.Int("room_id", room.ID), zap.Error(err))
			h.sendError(s, "failed to send message")
			return
		}
		if !member {
			h.sendError(s, "access denied")
			return
		}
	}

	text := sanitize.Message(payload.Text, h.maxMessageLength)
	if strings.TrimSpace(text) == "" {
		h.sendError(s, "message cannot be empty")
		return
	}

	replyTo := h.resolveReply(ctx, room.ID, payload.ReplyTo())
	var replyToID *int
	if replyTo != nil {
		replyToID = &replyTo.ID
	}

	msg, err := h.messages.CreateMessage(ctx, room.ID, s.UserID, text, replyToID)
	if err != nil {
		h.logger.Error("message insert failed",
			zap.Int("room_id", room.ID),
			zap.Int("user_id", s.UserID),
			zap.Error(err),
		)
		h.sendError(s, "failed to send message")
		return
	}

	observability.IncMessage()
	h.logger.Info("message sent",
		zap.String("username", s.Username),
		zap.String("room", room.Name),
		zap.Int("message_id", msg.ID),
	)

	out := models.MessagePayload{
		ID:         msg.ID,
		Text:       text,
		User:       s.Username,
		UserAvatar: s.Avatar,
		Timestamp:  msg.Timestamp.Format("15:04"),
		IsOwn:      false,
		Reactions:  models.ReactionSet{},
		ReplyTo:    replyTo,
	}
	h.hub.Broadcast(room.ID, models.EventReceiveMessage, out, s)

	out.IsOwn = true
	s.Send(models.EventReceiveMessage, out)
}

// resolveReply looks up the referenced message and renders a preview.
// Invalid or cross-room references degrade to no reply.
func (h *Handler) resolveReply(ctx context.Context, roomID, replyToID int) *models.ReplyPreview {
	if replyToID == 0 {
		return nil
	}
	ref, err := h.messages.GetMessageWithAuthor(ctx, replyToID)
	if err != nil || ref.RoomID != roomID {
		return nil
	}
	return &models.ReplyPreview{
		ID:   ref.ID,
		Text: sanitize.Truncate(ref.Text, replyPreviewLength),
		User: ref.Username,
	}
}

func (h *Handler) handleTyping(ctx context.Context, s *Session, data json.RawMessage) {
	var payload models.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID <= 0 {
		return
	}

	h.hub.Broadcast(payload.RoomID, models.EventUserTyping, models.TypingNotification{
		User:     s.Username,
		IsTyping: payload.IsTyping,
	}, s)
}
