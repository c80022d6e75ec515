package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"groupchat-service/internal/models"
)

// ErrInvalidEvent is returned for frames that do not decode to a known event.
var ErrInvalidEvent = errors.New("invalid event")

// Inbound is the closed set of client events the router accepts.
type Inbound interface {
	Kind() models.EventType
	inbound()
}

type JoinRoom struct{ GroupID int }

type LeaveRoom struct{ GroupID int }

type SendMessage struct {
	GroupID     int
	Content     string
	MessageType models.MessageType
}

type EditMessage struct {
	MessageID int
	Content   string
}

type DeleteMessage struct{ MessageID int }

// Typing covers typing_start (Active) and typing_stop.
type Typing struct {
	GroupID int
	Active  bool
}

func (JoinRoom) Kind() models.EventType      { return models.EventJoinRoom }
func (LeaveRoom) Kind() models.EventType     { return models.EventLeaveRoom }
func (SendMessage) Kind() models.EventType   { return models.EventSendMessage }
func (EditMessage) Kind() models.EventType   { return models.EventEditMessage }
func (DeleteMessage) Kind() models.EventType { return models.EventDeleteMessage }

func (t Typing) Kind() models.EventType {
	if t.Active {
		return models.EventTypingStart
	}
	return models.EventTypingStop
}

func (JoinRoom) inbound()      {}
func (LeaveRoom) inbound()     {}
func (SendMessage) inbound()   {}
func (EditMessage) inbound()   {}
func (DeleteMessage) inbound() {}
func (Typing) inbound()        {}

// ParseInbound decodes a client frame and validates its fields.
func ParseInbound(raw []byte) (Inbound, error) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch frame.Type {
	case models.EventJoinRoom, models.EventLeaveRoom, models.EventTypingStart, models.EventTypingStop, models.EventSendMessage:
		if frame.GroupID <= 0 {
			return nil, fmt.Errorf("%w: %s requires group_id", ErrInvalidEvent, frame.Type)
		}
	case models.EventEditMessage, models.EventDeleteMessage:
		if frame.MessageID <= 0 {
			return nil, fmt.Errorf("%w: %s requires message_id", ErrInvalidEvent, frame.Type)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, frame.Type)
	}

	switch frame.Type {
	case models.EventJoinRoom:
		return JoinRoom{GroupID: frame.GroupID}, nil
	case models.EventLeaveRoom:
		return LeaveRoom{GroupID: frame.GroupID}, nil
	case models.EventTypingStart, models.EventTypingStop:
		return Typing{GroupID: frame.GroupID, Active: frame.Type == models.EventTypingStart}, nil
	case models.EventSendMessage:
		content, err := models.NormalizeContent(frame.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		msgType, err := models.ParseMessageType(frame.MessageType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return SendMessage{GroupID: frame.GroupID, Content: content, MessageType: msgType}, nil
	case models.EventEditMessage:
		content, err := models.NormalizeContent(frame.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return EditMessage{MessageID: frame.MessageID, Content: content}, nil
	default:
		return DeleteMessage{MessageID: frame.MessageID}, nil
	}
}

// Client-visible error strings. NotFound and access denied share one text.
const (
	errTextGroupAccess   = "Group not found or access denied"
	errTextMessageAccess = "Message not found or access denied"
	errTextSendFailed    = "Failed to send message"
	errTextEditFailed    = "Failed to edit message"
	errTextDeleteFailed  = "Failed to delete message"
	errTextInvalidEvent  = "Invalid event"
)

func errorEvent(text string) models.OutboundEvent {
	return models.OutboundEvent{Type: models.EventError, Error: text}
}
