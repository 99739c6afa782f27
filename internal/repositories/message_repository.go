package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"nebula-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID int, userID int, text string, replyToID *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	GetMessageWithAuthor(ctx context.Context, messageID int) (models.MessageWithAuthor, error)
	ListRoomMessages(ctx context.Context, roomID int, limit int, offset int) ([]models.MessageWithAuthor, error)
	UpdateReactions(ctx context.Context, messageID int, reactions models.ReactionSet) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message with a server-assigned timestamp.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID int, userID int, text string, replyToID *int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, user_id, text, reply_to_id) VALUES ($1, $2, $3, $4)
         RETURNING id, room_id, user_id, text, reply_to_id, reactions, timestamp`,
		roomID, userID, text, replyToID).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, room_id, user_id, text, reply_to_id, reactions, timestamp FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessageWithAuthor retrieves a message joined with its author's profile.
func (r *MessageRepo) GetMessageWithAuthor(ctx context.Context, messageID int) (models.MessageWithAuthor, error) {
	var msg models.MessageWithAuthor
	err := r.db.GetContext(ctx, &msg,
		`SELECT m.id, m.room_id, m.user_id, m.text, m.reply_to_id, m.reactions, m.timestamp, u.username, u.avatar
         FROM messages m INNER JOIN users u ON u.id = m.user_id WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageWithAuthor{}, ErrMessageNotFound
	}
	return msg, err
}

// ListRoomMessages returns a page of room messages, newest first. Callers
// reverse the page for display.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID int, limit int, offset int) ([]models.MessageWithAuthor, error) {
	var msgs []models.MessageWithAuthor
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.room_id, m.user_id, m.text, m.reply_to_id, m.reactions, m.timestamp, u.username, u.avatar
         FROM messages m INNER JOIN users u ON u.id = m.user_id
         WHERE m.room_id=$1 ORDER BY m.timestamp DESC LIMIT $2 OFFSET $3`,
		roomID, limit, offset)
	return msgs, err
}

// UpdateReactions replaces the full reaction mapping of a message.
func (r *MessageRepo) UpdateReactions(ctx context.Context, messageID int, reactions models.ReactionSet) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reactions=$2 WHERE id=$1`, messageID, reactions)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteOlderThan removes messages older than the cutoff and reports how many.
func (r *MessageRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
