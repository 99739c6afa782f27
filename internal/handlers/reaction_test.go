package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nebula-chat/internal/mocks"
	"nebula-chat/internal/models"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/ws"
)

func setupReactionRouter(handler *ReactionHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/api/messages/:message_id/react", handler.React)
	return r
}

func reactRequest(router *gin.Engine, messageID, emoji string) *httptest.ResponseRecorder {
	body := bytes.NewBufferString(`{"emoji":"` + emoji + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/messages/"+messageID+"/react", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReactAddsReaction(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := NewReactionHandler(rooms, messages, users, ws.NewHub(zap.NewNop()), zap.NewNop())
	router := setupReactionRouter(handler)

	messages.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 1, Reactions: models.ReactionSet{}}, nil).Once()
	rooms.On("GetRoom", mock.Anything, 1).Return(models.Room{ID: 1, Name: "general"}, nil).Once()
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	messages.On("UpdateReactions", mock.Anything, 7, models.ReactionSet{"👍": {"alice"}}).Return(nil).Once()

	rec := reactRequest(router, "7", "👍")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Reactions models.ReactionSet `json:"reactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, models.ReactionSet{"👍": {"alice"}}, resp.Reactions)
	messages.AssertExpectations(t)
}

func TestReactSecondToggleRemoves(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	handler := NewReactionHandler(rooms, messages, users, ws.NewHub(zap.NewNop()), zap.NewNop())
	router := setupReactionRouter(handler)

	messages.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 1, Reactions: models.ReactionSet{"👍": {"alice"}}}, nil).Once()
	rooms.On("GetRoom", mock.Anything, 1).Return(models.Room{ID: 1, Name: "general"}, nil).Once()
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	messages.On("UpdateReactions", mock.Anything, 7, models.ReactionSet{}).Return(nil).Once()

	rec := reactRequest(router, "7", "👍")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Reactions models.ReactionSet `json:"reactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Empty(t, resp.Reactions)
	messages.AssertExpectations(t)
}

func TestReactMessageNotFound(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := NewReactionHandler(rooms, messages, new(mocks.UserRepositoryMock), ws.NewHub(zap.NewNop()), zap.NewNop())
	router := setupReactionRouter(handler)

	messages.On("GetMessage", mock.Anything, 99).Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	rec := reactRequest(router, "99", "🔥")

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReactAccessDenied(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	handler := NewReactionHandler(rooms, messages, new(mocks.UserRepositoryMock), ws.NewHub(zap.NewNop()), zap.NewNop())
	router := setupReactionRouter(handler)

	messages.On("GetMessage", mock.Anything, 7).Return(models.Message{ID: 7, RoomID: 2}, nil).Once()
	rooms.On("GetRoom", mock.Anything, 2).Return(models.Room{ID: 2, Name: "secret", IsPrivate: true}, nil).Once()
	rooms.On("IsMember", mock.Anything, 2, 1).Return(false, nil).Once()

	rec := reactRequest(router, "7", "🔥")

	require.Equal(t, http.StatusForbidden, rec.Code)
	messages.AssertNotCalled(t, "UpdateReactions", mock.Anything, mock.Anything, mock.Anything)
}

func TestReactEmptyEmoji(t *testing.T) {
	handler := NewReactionHandler(new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), ws.NewHub(zap.NewNop()), zap.NewNop())
	router := setupReactionRouter(handler)

	rec := reactRequest(router, "7", "  ")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
