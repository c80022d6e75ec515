package models

import "time"

// EventType names a frame on the realtime channel, inbound or outbound.
type EventType string

const (
	EventJoinRoom      EventType = "join_room"
	EventLeaveRoom     EventType = "leave_room"
	EventSendMessage   EventType = "send_message"
	EventEditMessage   EventType = "edit_message"
	EventDeleteMessage EventType = "delete_message"
	EventTypingStart   EventType = "typing_start"
	EventTypingStop    EventType = "typing_stop"

	EventNewMessage     EventType = "new_message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventUserOnline     EventType = "user_online"
	EventUserOffline    EventType = "user_offline"
	EventUserTyping     EventType = "user_typing"
	EventUserStopTyping EventType = "user_stop_typing"
	EventError          EventType = "error"
)

// InboundFrame is the raw client frame before it is narrowed to a concrete event.
type InboundFrame struct {
	Type        EventType `json:"type"`
	GroupID     int       `json:"group_id,omitempty"`
	MessageID   int       `json:"message_id,omitempty"`
	Content     string    `json:"content,omitempty"`
	MessageType string    `json:"message_type,omitempty"`
}

// OutboundEvent is sent to clients. It carries no references to mutable state.
type OutboundEvent struct {
	Type      EventType    `json:"type"`
	Message   *MessageView `json:"message,omitempty"`
	MessageID int          `json:"message_id,omitempty"`
	GroupID   int          `json:"group_id,omitempty"`
	UserID    int          `json:"user_id,omitempty"`
	Username  string       `json:"username,omitempty"`
	LastSeen  *time.Time   `json:"last_seen,omitempty"`
	Error     string       `json:"error,omitempty"`
}
