package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"nebula-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository exposes the user reads and presence writes the core needs.
type UserRepository interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	SearchUsers(ctx context.Context, query string, excludeID int, limit int) ([]models.UserSummary, error)
	SetOnline(ctx context.Context, userID int, online bool, lastSeen time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, password_hash, avatar, language, is_online, last_seen, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SearchUsers matches usernames case-insensitively, excluding the caller.
func (r *UserRepo) SearchUsers(ctx context.Context, query string, excludeID int, limit int) ([]models.UserSummary, error) {
	var users []models.UserSummary
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, username, avatar FROM users WHERE username ILIKE $1 AND id<>$2 ORDER BY username LIMIT $3`,
		"%"+query+"%", excludeID, limit)
	return users, err
}

// SetOnline persists the presence transition for a user.
func (r *UserRepo) SetOnline(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2, last_seen=$3 WHERE id=$1`, userID, online, lastSeen)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
