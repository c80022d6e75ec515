package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

// ErrMessageNotFound covers absent messages, messages of another author and
// messages that are already deleted.
var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, group_id, sender_id, content, message_type, status, created_at, updated_at, edited_at, deleted_at`

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, groupID int, senderID int, content string, msgType models.MessageType) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	UpdateMessage(ctx context.Context, messageID int, senderID int, content string) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int, senderID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a group message.
func (r *MessageRepo) CreateMessage(ctx context.Context, groupID int, senderID int, content string, msgType models.MessageType) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (group_id, sender_id, content, message_type, status) VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		groupID, senderID, content, msgType, models.MessageActive).StructScan(&msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message into group %d: %w", groupID, err)
	}
	return msg, nil
}

// GetMessage fetches a single message, deleted or not.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateMessage replaces content of a live message owned by senderID.
func (r *MessageRepo) UpdateMessage(ctx context.Context, messageID int, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET content=$3, status=$4, edited_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND sender_id=$2 AND status <> $5 RETURNING `+messageColumns,
		messageID, senderID, content, models.MessageEdited, models.MessageDeleted).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage tags a live message owned by senderID as deleted. Content is kept.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int, senderID int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET status=$3, deleted_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND sender_id=$2 AND status <> $3 RETURNING `+messageColumns,
		messageID, senderID, models.MessageDeleted).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
