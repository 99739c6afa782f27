package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nebula-chat/internal/mocks"
	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/ws"
)

func setupRoomRouter(handler *RoomHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/api/rooms", handler.ListRooms)
	r.POST("/api/rooms/private/:user_id", handler.CreatePrivateRoom)
	r.POST("/api/rooms/group", handler.CreateGroup)
	r.POST("/api/rooms/:room_id/invite", handler.InviteToRoom)
	r.GET("/api/rooms/:room_id/members", handler.GetRoomMembers)
	return r
}

func newRoomHandler(rooms *mocks.RoomRepositoryMock, users *mocks.UserRepositoryMock) *RoomHandler {
	return NewRoomHandler(rooms, users, ws.NewHub(zap.NewNop()), nil, zap.NewNop())
}

func TestListRoomsSuccess(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, users))

	rooms.On("ListRoomsForUser", mock.Anything, 1).Return([]models.Room{
		{ID: 1, Name: "general"},
		{ID: 2, Name: "devs", IsGroup: true},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rooms []map[string]any `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Rooms, 2)
	rooms.AssertExpectations(t)
}

func TestCreatePrivateRoomNew(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, users))

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	rooms.On("CreateOrGetPrivateRoom", mock.Anything, 1, 2, "alice & bob").
		Return(models.Room{ID: 9, Name: "alice & bob", IsPrivate: true}, false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/private/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, false, resp["existed"])
	require.Equal(t, float64(9), resp["room_id"])
	rooms.AssertExpectations(t)
}

func TestCreatePrivateRoomExisted(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, users))

	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	rooms.On("CreateOrGetPrivateRoom", mock.Anything, 1, 2, "alice & bob").
		Return(models.Room{ID: 9, Name: "alice & bob", IsPrivate: true}, true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/private/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, true, resp["existed"])
	require.Equal(t, float64(9), resp["room_id"])
}

func TestCreatePrivateRoomWithSelf(t *testing.T) {
	router := setupRoomRouter(newRoomHandler(new(mocks.RoomRepositoryMock), new(mocks.UserRepositoryMock)))

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/private/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePrivateRoomTargetMissing(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, users))

	users.On("GetUser", mock.Anything, 7).Return(models.User{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/rooms/private/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGroupNameTooShort(t *testing.T) {
	router := setupRoomRouter(newRoomHandler(new(mocks.RoomRepositoryMock), new(mocks.UserRepositoryMock)))

	body := bytes.NewBufferString(`{"name":"ab"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/group", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupSanitizesName(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, new(mocks.UserRepositoryMock)))

	rooms.On("CreateGroup", mock.Anything, 1, "team chat").
		Return(models.Room{ID: 4, Name: "team chat", IsGroup: true}, nil).Once()

	body := bytes.NewBufferString(`{"name":"<b>team chat</b>"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/group", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	rooms.AssertExpectations(t)
}

func TestInviteToRoomFull(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, users))

	rooms.On("GetRoom", mock.Anything, 3).Return(models.Room{ID: 3, Name: "big", IsGroup: true}, nil).Once()
	rooms.On("IsMember", mock.Anything, 3, 1).Return(true, nil).Once()
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	rooms.On("IsMember", mock.Anything, 3, 2).Return(false, nil).Once()
	rooms.On("MemberCount", mock.Anything, 3).Return(100, nil).Once()

	body := bytes.NewBufferString(`{"user_id":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/3/invite", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	rooms.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestInviteToNonGroupRoom(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, new(mocks.UserRepositoryMock)))

	rooms.On("GetRoom", mock.Anything, 3).Return(models.Room{ID: 3, Name: "dm", IsPrivate: true}, nil).Once()

	body := bytes.NewBufferString(`{"user_id":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/3/invite", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInviteToRoomSuccess(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, users))

	rooms.On("GetRoom", mock.Anything, 3).Return(models.Room{ID: 3, Name: "devs", IsGroup: true}, nil).Once()
	rooms.On("IsMember", mock.Anything, 3, 1).Return(true, nil).Once()
	users.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	rooms.On("IsMember", mock.Anything, 3, 2).Return(false, nil).Once()
	rooms.On("MemberCount", mock.Anything, 3).Return(5, nil).Once()
	rooms.On("AddMember", mock.Anything, 3, 2).Return(nil).Once()
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()

	body := bytes.NewBufferString(`{"user_id":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/3/invite", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "bob", resp["username"])
	rooms.AssertExpectations(t)
}

func TestGetRoomMembersAccessDenied(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, new(mocks.UserRepositoryMock)))

	rooms.On("GetRoom", mock.Anything, 3).Return(models.Room{ID: 3, Name: "secret", IsPrivate: true}, nil).Once()
	rooms.On("IsMember", mock.Anything, 3, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/3/members", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetRoomMembersFlagsCreator(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	router := setupRoomRouter(newRoomHandler(rooms, new(mocks.UserRepositoryMock)))

	creator := 1
	rooms.On("GetRoom", mock.Anything, 3).Return(models.Room{ID: 3, Name: "devs", IsGroup: true, CreatedBy: &creator}, nil).Once()
	rooms.On("IsMember", mock.Anything, 3, 1).Return(true, nil).Once()
	rooms.On("ListMembers", mock.Anything, 3).Return([]models.UserSummary{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/3/members", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Members []struct {
			ID        int  `json:"id"`
			IsCreator bool `json:"is_creator"`
		} `json:"members"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Members, 2)
	assert.True(t, resp.Members[0].IsCreator)
	assert.False(t, resp.Members[1].IsCreator)
}
