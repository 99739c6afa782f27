package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/sanitize"
	"nebula-chat/internal/telemetry"
	"nebula-chat/internal/ws"
)

const maxGroupMembers = 100

// RoomHandler manages room listing, creation, invites and membership.
type RoomHandler struct {
	rooms   repositories.RoomRepository
	users   repositories.UserRepository
	hub     *ws.Hub
	emitter *telemetry.AuditEmitter
	logger  *zap.Logger
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, users repositories.UserRepository, hub *ws.Hub, emitter *telemetry.AuditEmitter, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:   rooms,
		users:   users,
		hub:     hub,
		emitter: emitter,
		logger:  logger,
	}
}

// ListRooms returns every room visible to the authenticated user: all
// public rooms plus private and group rooms the user belongs to.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list rooms failed", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	type roomResponse struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		IsPrivate bool   `json:"is_private"`
		IsGroup   bool   `json:"is_group"`
	}

	responses := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		responses = append(responses, roomResponse{
			ID:        room.ID,
			Name:      room.Name,
			IsPrivate: room.IsPrivate,
			IsGroup:   room.IsGroup,
		})
	}

	c.JSON(http.StatusOK, gin.H{"rooms": responses})
}

// CreatePrivateRoom creates or returns the existing two-party private room
// between the caller and the target user.
func (h *RoomHandler) CreatePrivateRoom(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	userID := c.GetInt("userID")
	if otherID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot create chat with yourself"})
		return
	}

	other, err := h.users.GetUser(c.Request.Context(), otherID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	self, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	name := fmt.Sprintf("%s & %s", self.Username, other.Username)
	room, existed, err := h.rooms.CreateOrGetPrivateRoom(c.Request.Context(), userID, otherID, name)
	if err != nil {
		h.logger.Error("create private room failed",
			zap.Int("user_id", userID),
			zap.Int("other_id", otherID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	if !existed {
		h.logger.Info("private room created",
			zap.String("user", self.Username),
			zap.String("other", other.Username),
		)
		h.emitter.Emit(c.Request.Context(), "INFO", "private room created", requestIDFromContext(c), userIDFromContext(c))
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":   room.ID,
		"room_name": room.Name,
		"existed":   existed,
	})
}

// CreateGroup creates a group room with the caller as its only member.
func (h *RoomHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name required"})
		return
	}

	name := strings.TrimSpace(sanitize.Text(req.Name))
	if len([]rune(name)) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name too short"})
		return
	}
	if len([]rune(name)) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name too long"})
		return
	}

	userID := c.GetInt("userID")
	room, err := h.rooms.CreateGroup(c.Request.Context(), userID, name)
	if err != nil {
		h.logger.Error("create group failed", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create group"})
		return
	}

	h.logger.Info("group created", zap.String("name", name), zap.Int("user_id", userID))
	h.emitter.Emit(c.Request.Context(), "INFO", "group created", requestIDFromContext(c), userIDFromContext(c))

	c.JSON(http.StatusOK, gin.H{
		"room_id":   room.ID,
		"room_name": room.Name,
	})
}

// InviteToRoom adds a user to a group room and notifies its members.
func (h *RoomHandler) InviteToRoom(c *gin.Context) {
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}

	if !room.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "can only invite to groups"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.rooms.IsMember(c.Request.Context(), room.ID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	var req struct {
		UserID int `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	invitee, err := h.users.GetUser(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}

	alreadyMember, err := h.rooms.IsMember(c.Request.Context(), room.ID, invitee.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}
	if alreadyMember {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user already in group"})
		return
	}

	count, err := h.rooms.MemberCount(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}
	if count >= maxGroupMembers {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group is full (max 100 members)"})
		return
	}

	if err := h.rooms.AddMember(c.Request.Context(), room.ID, invitee.ID); err != nil {
		h.logger.Error("invite failed", zap.Int("room_id", room.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}

	inviter, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite user"})
		return
	}

	h.logger.Info("user invited to group",
		zap.String("inviter", inviter.Username),
		zap.String("invitee", invitee.Username),
		zap.String("room", room.Name),
	)
	h.hub.Broadcast(room.ID, models.EventUserInvited, models.InvitePayload{
		User:      invitee.Username,
		InvitedBy: inviter.Username,
		RoomID:    room.ID,
	}, nil)

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"username": invitee.Username,
	})
}

// GetRoomMembers lists a room's members with a creator flag.
func (h *RoomHandler) GetRoomMembers(c *gin.Context) {
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch members"})
		return
	}

	userID := c.GetInt("userID")
	if room.RestrictsAccess() {
		member, err := h.rooms.IsMember(c.Request.Context(), room.ID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch members"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
	}

	members, err := h.rooms.ListMembers(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch members"})
		return
	}

	type memberResponse struct {
		ID        int    `json:"id"`
		Username  string `json:"username"`
		Avatar    string `json:"avatar"`
		IsCreator bool   `json:"is_creator"`
	}

	responses := make([]memberResponse, 0, len(members))
	for _, member := range members {
		isCreator := room.CreatedBy != nil && *room.CreatedBy == member.ID
		responses = append(responses, memberResponse{
			ID:        member.ID,
			Username:  member.Username,
			Avatar:    member.Avatar,
			IsCreator: isCreator,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id":   room.ID,
		"room_name": room.Name,
		"is_group":  room.IsGroup,
		"members":   responses,
	})
}
