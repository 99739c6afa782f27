package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nebula-chat/internal/models"
)

func newTestSession(userID int, username string) *Session {
	return NewSession(nil, userID, username, "👤", zap.NewNop())
}

func recvEvent(t *testing.T, s *Session) models.Event {
	t.Helper()
	select {
	case frame := <-s.send:
		var evt models.Event
		require.NoError(t, json.Unmarshal(frame, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return models.Event{}
	}
}

func unmarshalPayload(evt models.Event, v any) error {
	return json.Unmarshal(evt.Data, v)
}

func assertNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case frame := <-s.send:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := newTestSession(1, "alice")
	hub.Register(s)

	require.True(t, hub.Join(1, s))
	require.False(t, hub.Join(1, s))
	require.Equal(t, 1, hub.RoomSize(1))
}

func TestHubLeaveNeverJoinedIsNoop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := newTestSession(1, "alice")
	b := newTestSession(2, "bob")
	hub.Register(a)
	hub.Register(b)
	hub.Join(1, a)

	require.False(t, hub.Leave(1, b))
	require.Equal(t, 1, hub.RoomSize(1))
	assertNoEvent(t, a)
}

func TestHubLeaveRemovesMember(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := newTestSession(1, "alice")
	hub.Register(s)
	hub.Join(1, s)

	require.True(t, hub.Leave(1, s))
	require.False(t, hub.Leave(1, s))
	require.Equal(t, 0, hub.RoomSize(1))
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sender := newTestSession(1, "alice")
	other := newTestSession(2, "bob")
	hub.Register(sender)
	hub.Register(other)
	hub.Join(1, sender)
	hub.Join(1, other)

	hub.Broadcast(1, models.EventUserTyping, models.TypingNotification{User: "alice", IsTyping: true}, sender)

	evt := recvEvent(t, other)
	require.Equal(t, models.EventUserTyping, evt.Event)
	assertNoEvent(t, sender)
}

func TestHubBroadcastReachesAllMembers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := newTestSession(1, "alice")
	b := newTestSession(2, "bob")
	hub.Register(a)
	hub.Register(b)
	hub.Join(1, a)
	hub.Join(1, b)

	hub.Broadcast(1, models.EventUserJoined, models.RoomPresencePayload{User: "alice", Room: "general"}, nil)

	require.Equal(t, models.EventUserJoined, recvEvent(t, a).Event)
	require.Equal(t, models.EventUserJoined, recvEvent(t, b).Event)
}

func TestHubUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := newTestSession(1, "alice")
	other := newTestSession(2, "bob")
	hub.Register(s)
	hub.Register(other)
	hub.Join(1, s)
	hub.Join(2, s)
	hub.Join(1, other)

	hub.Unregister(s)

	require.Equal(t, 1, hub.RoomSize(1))
	require.Equal(t, 0, hub.RoomSize(2))
	// Disconnects are silent at the room level.
	assertNoEvent(t, other)
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub(zap.NewNop())
	inRoom := newTestSession(1, "alice")
	lobby := newTestSession(2, "bob")
	hub.Register(inRoom)
	hub.Register(lobby)
	hub.Join(1, inRoom)

	hub.BroadcastAll(models.EventUserStatus, models.PresencePayload{UserID: 3, Username: "carol", IsOnline: true})

	require.Equal(t, models.EventUserStatus, recvEvent(t, inRoom).Event)
	require.Equal(t, models.EventUserStatus, recvEvent(t, lobby).Event)
}

func TestHubBroadcastUnknownRoomDropped(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := newTestSession(1, "alice")
	hub.Register(s)

	hub.Broadcast(99, models.EventUserJoined, models.RoomPresencePayload{User: "alice", Room: "ghost"}, nil)
	assertNoEvent(t, s)
}
