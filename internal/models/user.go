package models

import "time"

// User is a registered account. Credentials are managed by the auth
// collaborator; this service only reads profile and presence fields.
type User struct {
	ID           int        `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Avatar       string     `db:"avatar" json:"avatar"`
	Language     string     `db:"language" json:"language"`
	IsOnline     bool       `db:"is_online" json:"is_online"`
	LastSeen     *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// UserSummary is the API-facing view used by search results.
type UserSummary struct {
	ID       int    `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Avatar   string `db:"avatar" json:"avatar"`
}
