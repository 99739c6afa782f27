package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, query string, excludeID int, limit int) ([]models.UserSummary, error) {
	args := m.Called(ctx, query, excludeID, limit)
	var list []models.UserSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.UserSummary)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) SetOnline(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	args := m.Called(ctx, userID, online, lastSeen)
	return args.Error(0)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) AddMember(ctx context.Context, roomID int, userID int) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) MemberCount(ctx context.Context, roomID int) (int, error) {
	args := m.Called(ctx, roomID)
	return args.Int(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListMembers(ctx context.Context, roomID int) ([]models.UserSummary, error) {
	args := m.Called(ctx, roomID)
	var list []models.UserSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.UserSummary)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var list []models.Room
	if val := args.Get(0); val != nil {
		list = val.([]models.Room)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) CreateOrGetPrivateRoom(ctx context.Context, userID int, otherID int, name string) (models.Room, bool, error) {
	args := m.Called(ctx, userID, otherID, name)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) CreateGroup(ctx context.Context, ownerID int, name string) (models.Room, error) {
	args := m.Called(ctx, ownerID, name)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, roomID int, userID int, text string, replyToID *int) (models.Message, error) {
	args := m.Called(ctx, roomID, userID, text, replyToID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageWithAuthor(ctx context.Context, messageID int) (models.MessageWithAuthor, error) {
	args := m.Called(ctx, messageID)
	var msg models.MessageWithAuthor
	if val := args.Get(0); val != nil {
		msg = val.(models.MessageWithAuthor)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRoomMessages(ctx context.Context, roomID int, limit int, offset int) ([]models.MessageWithAuthor, error) {
	args := m.Called(ctx, roomID, limit, offset)
	var list []models.MessageWithAuthor
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageWithAuthor)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateReactions(ctx context.Context, messageID int, reactions models.ReactionSet) error {
	args := m.Called(ctx, messageID, reactions)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

var (
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
	_ repositories.RoomRepository    = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)
