package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength caps message content after trimming.
const MaxContentLength = 1000

var (
	ErrEmptyContent       = errors.New("message content is empty")
	ErrContentTooLong     = errors.New("message content is too long")
	ErrInvalidMessageType = errors.New("invalid message type")
)

// MessageStatus is the lifecycle tag of a group message.
type MessageStatus string

const (
	MessageActive  MessageStatus = "active"
	MessageEdited  MessageStatus = "edited"
	MessageDeleted MessageStatus = "deleted"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// ParseMessageType defaults an empty type to text and rejects unknown values.
func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(raw) {
	case "":
		return MessageText, nil
	case MessageText, MessageImage, MessageFile:
		return MessageType(raw), nil
	}
	return "", ErrInvalidMessageType
}

// NormalizeContent trims content and enforces the length bounds.
func NormalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// Message is a group message. Deleted messages keep their content.
type Message struct {
	ID          int           `db:"id" json:"id"`
	GroupID     int           `db:"group_id" json:"group_id"`
	SenderID    int           `db:"sender_id" json:"sender_id"`
	Content     string        `db:"content" json:"content"`
	MessageType MessageType   `db:"message_type" json:"message_type"`
	Status      MessageStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
	EditedAt    *time.Time    `db:"edited_at" json:"edited_at,omitempty"`
	DeletedAt   *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
}

func (m Message) IsEdited() bool  { return m.Status == MessageEdited }
func (m Message) IsDeleted() bool { return m.Status == MessageDeleted }

// MessageView is the client-facing form of a message with its sender inlined.
type MessageView struct {
	ID          int         `json:"id"`
	GroupID     int         `json:"group_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	Sender      UserSummary `json:"sender"`
	IsEdited    bool        `json:"is_edited"`
	IsDeleted   bool        `json:"is_deleted"`
	CreatedAt   time.Time   `json:"created_at"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
}

// View renders the message for broadcast.
func (m Message) View(sender UserSummary) *MessageView {
	return &MessageView{
		ID:          m.ID,
		GroupID:     m.GroupID,
		Content:     m.Content,
		MessageType: m.MessageType,
		Sender:      sender,
		IsEdited:    m.IsEdited(),
		IsDeleted:   m.IsDeleted(),
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
	}
}
