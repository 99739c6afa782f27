package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"nebula-chat/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	IsMember(ctx context.Context, roomID int, userID int) (bool, error)
	AddMember(ctx context.Context, roomID int, userID int) error
	MemberCount(ctx context.Context, roomID int) (int, error)
	ListMembers(ctx context.Context, roomID int) ([]models.UserSummary, error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error)
	CreateOrGetPrivateRoom(ctx context.Context, userID int, otherID int, name string) (models.Room, bool, error)
	CreateGroup(ctx context.Context, ownerID int, name string) (models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, name, is_private, is_group, created_by, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// AddMember inserts a membership row; re-adding an existing member is a no-op.
func (r *RoomRepo) AddMember(ctx context.Context, roomID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roomID, userID)
	return err
}

// MemberCount returns the number of members of a room.
func (r *RoomRepo) MemberCount(ctx context.Context, roomID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM room_members WHERE room_id=$1`, roomID)
	return count, err
}

// ListMembers returns the members of a room ordered by join time.
func (r *RoomRepo) ListMembers(ctx context.Context, roomID int) ([]models.UserSummary, error) {
	var members []models.UserSummary
	err := r.db.SelectContext(ctx, &members,
		`SELECT u.id, u.username, u.avatar FROM users u
         INNER JOIN room_members rm ON rm.user_id = u.id
         WHERE rm.room_id=$1 ORDER BY rm.joined_at ASC`, roomID)
	return members, err
}

// ListRoomsForUser returns public rooms plus rooms the user belongs to,
// newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT DISTINCT r.id, r.name, r.is_private, r.is_group, r.created_by, r.created_at FROM rooms r
         LEFT JOIN room_members rm ON rm.room_id = r.id
         WHERE (r.is_private = FALSE AND r.is_group = FALSE) OR rm.user_id = $1
         ORDER BY r.created_at DESC`, userID)
	return rooms, err
}

// CreateOrGetPrivateRoom returns the private room between two users, creating
// it with both memberships when none exists. The second result reports
// whether the room already existed.
func (r *RoomRepo) CreateOrGetPrivateRoom(ctx context.Context, userID int, otherID int, name string) (models.Room, bool, error) {
	if userID == otherID {
		return models.Room{}, false, errors.New("cannot create private room with self")
	}

	var room models.Room
	query := `SELECT r.id, r.name, r.is_private, r.is_group, r.created_by, r.created_at FROM rooms r
        WHERE r.is_private = TRUE
        AND EXISTS(SELECT 1 FROM room_members WHERE room_id=r.id AND user_id=$1)
        AND EXISTS(SELECT 1 FROM room_members WHERE room_id=r.id AND user_id=$2)`
	err := r.db.GetContext(ctx, &room, query, userID, otherID)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (name, is_private, created_by) VALUES ($1, TRUE, $2) RETURNING id, name, is_private, is_group, created_by, created_at`, name, userID).
		StructScan(&room); err != nil {
		return models.Room{}, false, err
	}
	for _, id := range []int{userID, otherID} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, id); err != nil {
			return models.Room{}, false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Room{}, false, err
	}
	return room, false, nil
}

// CreateGroup creates a group room with the owner as first member atomically.
func (r *RoomRepo) CreateGroup(ctx context.Context, ownerID int, name string) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	if err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (name, is_group, created_by) VALUES ($1, TRUE, $2) RETURNING id, name, is_private, is_group, created_by, created_at`, name, ownerID).
		StructScan(&room); err != nil {
		return models.Room{}, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, room.ID, ownerID); err != nil {
		return models.Room{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}
