package models

import "time"

// Room is a chat channel. Neither flag set means a public room; IsPrivate
// means a two-party direct chat, IsGroup an invite-based group of up to 100.
type Room struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsPrivate bool      `db:"is_private" json:"is_private"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatedBy *int      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RestrictsAccess reports whether reads, writes and joins require membership.
func (r Room) RestrictsAccess() bool {
	return r.IsPrivate || r.IsGroup
}

// RoomMember is one row of the membership relation.
type RoomMember struct {
	RoomID   int       `db:"room_id" json:"room_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}
