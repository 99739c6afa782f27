package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nebula-chat/internal/mocks"
	"nebula-chat/internal/models"
)

func TestPresenceFlipsOnlineOnFirstConnection(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	hub := NewHub(zap.NewNop())
	watcher := newTestSession(9, "watcher")
	hub.Register(watcher)

	presence := NewPresence(users, hub, zap.NewNop())
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil).Once()

	presence.Connect(context.Background(), 1, "alice")
	presence.Connect(context.Background(), 1, "alice")

	require.Equal(t, 2, presence.Connections(1))
	evt := recvEvent(t, watcher)
	require.Equal(t, models.EventUserStatus, evt.Event)
	// Only the first connection broadcasts.
	assertNoEvent(t, watcher)
	users.AssertExpectations(t)
}

func TestPresenceStaysOnlineUntilLastDisconnect(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	hub := NewHub(zap.NewNop())
	watcher := newTestSession(9, "watcher")
	hub.Register(watcher)

	presence := NewPresence(users, hub, zap.NewNop())
	users.On("SetOnline", mock.Anything, 1, true, mock.Anything).Return(nil).Once()
	users.On("SetOnline", mock.Anything, 1, false, mock.Anything).Return(nil).Once()

	presence.Connect(context.Background(), 1, "alice")
	presence.Connect(context.Background(), 1, "alice")
	recvEvent(t, watcher)

	presence.Disconnect(context.Background(), 1, "alice")
	require.Equal(t, 1, presence.Connections(1))
	assertNoEvent(t, watcher)

	presence.Disconnect(context.Background(), 1, "alice")
	require.Equal(t, 0, presence.Connections(1))

	var payload models.PresencePayload
	evt := recvEvent(t, watcher)
	require.Equal(t, models.EventUserStatus, evt.Event)
	require.NoError(t, unmarshalPayload(evt, &payload))
	require.False(t, payload.IsOnline)
	require.NotEmpty(t, payload.LastSeen)
	users.AssertExpectations(t)
}
