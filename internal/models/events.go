package models

import "encoding/json"

// Event is the envelope for every frame on the realtime connection,
// in both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client-to-server event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Server-to-client event names.
const (
	EventConnectionStatus = "connection_status"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventReceiveMessage   = "receive_message"
	EventUserTyping       = "user_typing"
	EventUserStatus       = "user_status"
	EventMessageReaction  = "message_reaction"
	EventUserInvited      = "user_invited"
	EventError            = "error"
)

// RoomEventPayload is the inbound payload for join_room and leave_room.
type RoomEventPayload struct {
	RoomID int `json:"room_id"`
}

// SendMessagePayload is the inbound payload for send_message. ReplyToID is
// decoded loosely: anything that is not a positive integer means "no reply".
type SendMessagePayload struct {
	RoomID    int    `json:"room_id"`
	Text      string `json:"text"`
	ReplyToID any    `json:"reply_to_id"`
}

// ReplyTo returns the referenced message id, or 0 when the field is absent
// or not a positive integer.
func (p SendMessagePayload) ReplyTo() int {
	f, ok := p.ReplyToID.(float64)
	if !ok || f != float64(int(f)) || f <= 0 {
		return 0
	}
	return int(f)
}

// TypingPayload is the inbound payload for typing.
type TypingPayload struct {
	RoomID   int  `json:"room_id"`
	IsTyping bool `json:"is_typing"`
}

// ReplyPreview is the rendered reference to a replied-to message.
type ReplyPreview struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	User string `json:"user"`
}

// MessagePayload is the receive_message payload. Two copies are fanned out
// per message, identical except for IsOwn.
type MessagePayload struct {
	ID         int           `json:"id"`
	Text       string        `json:"text"`
	User       string        `json:"user"`
	UserAvatar string        `json:"user_avatar"`
	Timestamp  string        `json:"timestamp"`
	IsOwn      bool          `json:"is_own"`
	Reactions  ReactionSet   `json:"reactions"`
	ReplyTo    *ReplyPreview `json:"reply_to,omitempty"`
}

// PresencePayload is the globally broadcast user_status payload.
type PresencePayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
	LastSeen string `json:"last_seen,omitempty"`
}

// ReactionPayload carries the full updated reaction mapping for a message.
type ReactionPayload struct {
	MessageID int         `json:"message_id"`
	Reactions ReactionSet `json:"reactions"`
}

// RoomPresencePayload is the user_joined / user_left payload.
type RoomPresencePayload struct {
	User string `json:"user"`
	Room string `json:"room"`
}

// TypingNotification is the user_typing payload.
type TypingNotification struct {
	User     string `json:"user"`
	IsTyping bool   `json:"is_typing"`
}

// InvitePayload is the user_invited payload.
type InvitePayload struct {
	User      string `json:"user"`
	InvitedBy string `json:"invited_by"`
	RoomID    int    `json:"room_id"`
}

// ErrorPayload is sent to the offending connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ConnectionStatusPayload acknowledges a successful handshake.
type ConnectionStatusPayload struct {
	Status string `json:"status"`
	User   string `json:"user"`
}
