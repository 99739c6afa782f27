package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReactionSet maps an emoji to the usernames who reacted with it. It is
// persisted as a JSONB column.
type ReactionSet map[string][]string

// Toggle adds the username under emoji, or removes it if already present.
// Empty emoji keys are dropped so the mapping never carries dead entries.
func (r ReactionSet) Toggle(emoji, username string) {
	users := r[emoji]
	for i, u := range users {
		if u == username {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = users
			}
			return
		}
	}
	r[emoji] = append(users, username)
}

// Value implements driver.Valuer.
func (r ReactionSet) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *ReactionSet) Scan(src any) error {
	if src == nil {
		*r = ReactionSet{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ReactionSet", src)
	}
	if len(data) == 0 {
		*r = ReactionSet{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// MessageWithAuthor joins a message with its author's profile fields.
type MessageWithAuthor struct {
	Message
	Username string `db:"username" json:"username"`
	Avatar   string `db:"avatar" json:"avatar"`
}

// Message is a persisted chat message. ReplyToID survives deletion of the
// referenced message by being nulled, so it is resolved lazily by id.
type Message struct {
	ID        int         `db:"id" json:"id"`
	RoomID    int         `db:"room_id" json:"room_id"`
	UserID    int         `db:"user_id" json:"user_id"`
	Text      string      `db:"text" json:"text"`
	ReplyToID *int        `db:"reply_to_id" json:"reply_to_id,omitempty"`
	Reactions ReactionSet `db:"reactions" json:"reactions"`
	Timestamp time.Time   `db:"timestamp" json:"timestamp"`
}
