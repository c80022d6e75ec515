package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

const tracerName = "groupchat-service/ws"

// ErrAccessDenied marks a mutating event the requester may not perform.
var ErrAccessDenied = errors.New("access denied")

// delivery addresses one outbound event. Direct deliveries go to a single
// connection; otherwise the event goes to the room's subscribers that are
// durable members of the group, minus Exclude and every connection of
// ExcludeUser. Origin is a user whose membership was already checked; when
// the member list cannot be loaded only Origin's connections are reached.
type delivery struct {
	GroupID     int
	Event       models.OutboundEvent
	Exclude     *Connection
	ExcludeUser int
	Origin      int
	Direct      *Connection
}

func directError(conn *Connection, text string) []delivery {
	return []delivery{{Direct: conn, Event: errorEvent(text)}}
}

// Router authorizes inbound events, applies them to storage and fans the
// results out through the room table. Mutations for one group run on that
// group's serial queue.
type Router struct {
	rooms    *RoomTable
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	audit    *telemetry.AuditEmitter
	queue    *sequencer
}

// NewRouter constructs a Router around explicitly owned state. audit may be nil.
func NewRouter(rooms *RoomTable, groups repositories.GroupRepository, messages repositories.MessageRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter) *Router {
	return &Router{
		rooms:    rooms,
		groups:   groups,
		messages: messages,
		users:    users,
		audit:    audit,
		queue:    newSequencer(),
	}
}

// Rooms exposes the router's room table.
func (r *Router) Rooms() *RoomTable {
	return r.rooms
}

// Dispatch handles one inbound event from conn. It blocks until the event's
// effects are stored and its broadcasts are queued. Cancellation of ctx does
// not abort an event that has started.
func (r *Router) Dispatch(ctx context.Context, conn *Connection, ev Inbound) {
	start := time.Now()
	kind := string(ev.Kind())
	ctx, span := otel.Tracer(tracerName).Start(context.WithoutCancel(ctx), "ws."+kind)
	span.SetAttributes(
		attribute.String("ws.conn_id", conn.ID),
		attribute.Int("ws.user_id", conn.UserID),
	)
	defer span.End()
	defer observability.ObserveWSEvent(kind, start)
	observability.IncWSEvent(kind)

	var out []delivery
	switch e := ev.(type) {
	case JoinRoom:
		r.joinRoom(ctx, conn, e)
	case LeaveRoom:
		r.rooms.Leave(conn, e.GroupID)
	case Typing:
		out = r.typing(conn, e)
	case SendMessage:
		r.queue.Do(e.GroupID, func() {
			r.publish(ctx, r.sendMessage(ctx, conn, e))
		})
	case EditMessage:
		out = r.mutateMessage(ctx, conn, e.MessageID, errTextEditFailed, func(msg models.Message) []delivery {
			return r.editMessage(ctx, conn, msg, e.Content)
		})
	case DeleteMessage:
		out = r.mutateMessage(ctx, conn, e.MessageID, errTextDeleteFailed, func(msg models.Message) []delivery {
			return r.deleteMessage(ctx, conn, msg)
		})
	}

	for _, d := range out {
		if d.Direct != nil && d.Event.Type == models.EventError {
			span.SetStatus(codes.Error, d.Event.Error)
		}
	}
	r.publish(ctx, out)
}

// Reject answers a frame that never reached dispatch.
func (r *Router) Reject(conn *Connection, reason string) {
	observability.IncWSRejected("unknown", reason)
	conn.Send(errorEvent(errTextInvalidEvent))
}

func (r *Router) joinRoom(ctx context.Context, conn *Connection, e JoinRoom) {
	member, err := r.groups.IsMember(ctx, e.GroupID, conn.UserID)
	if err != nil {
		log.Printf("ws join_room membership check failed user_id=%d group_id=%d: %v", conn.UserID, e.GroupID, err)
		return
	}
	if !member {
		observability.IncWSRejected(string(models.EventJoinRoom), "not_member")
		return
	}
	if r.rooms.Join(conn, e.GroupID) {
		log.Printf("ws user_id=%d joined group_id=%d", conn.UserID, e.GroupID)
	}
}

func (r *Router) typing(conn *Connection, e Typing) []delivery {
	kind := models.EventUserStopTyping
	if e.Active {
		kind = models.EventUserTyping
	}
	return []delivery{{
		GroupID: e.GroupID,
		Exclude: conn,
		Event:   models.OutboundEvent{Type: kind, UserID: conn.UserID, GroupID: e.GroupID},
	}}
}

func (r *Router) sendMessage(ctx context.Context, conn *Connection, e SendMessage) []delivery {
	member, err := r.groups.IsMember(ctx, e.GroupID, conn.UserID)
	if err != nil {
		log.Printf("ws send_message membership check failed user_id=%d group_id=%d: %v", conn.UserID, e.GroupID, err)
		return directError(conn, errTextSendFailed)
	}
	if !member {
		observability.IncWSRejected(string(models.EventSendMessage), "not_member")
		r.emitAudit(ctx, conn, "ERROR", "not allowed to send message", e.GroupID, 0)
		return directError(conn, errTextGroupAccess)
	}

	msg, err := r.messages.CreateMessage(ctx, e.GroupID, conn.UserID, e.Content, e.MessageType)
	if err != nil {
		log.Printf("ws send_message store failed user_id=%d group_id=%d: %v", conn.UserID, e.GroupID, err)
		return directError(conn, errTextSendFailed)
	}
	if err := r.groups.TouchGroup(ctx, e.GroupID); err != nil {
		log.Printf("ws send_message touch group failed group_id=%d: %v", e.GroupID, err)
	}

	log.Printf("ws message_id=%d sent by user_id=%d to group_id=%d", msg.ID, conn.UserID, msg.GroupID)
	return []delivery{{
		GroupID: msg.GroupID,
		Origin:  conn.UserID,
		Event: models.OutboundEvent{
			Type:    models.EventNewMessage,
			GroupID: msg.GroupID,
			Message: msg.View(r.senderSummary(ctx, msg.SenderID)),
		},
	}}
}

// mutateMessage resolves the message's group, then runs apply on that
// group's queue so the change is ordered after the message's creation and
// any earlier change.
func (r *Router) mutateMessage(ctx context.Context, conn *Connection, messageID int, failText string, apply func(models.Message) []delivery) []delivery {
	msg, err := r.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return directError(conn, errTextMessageAccess)
	}
	if err != nil {
		log.Printf("ws load message failed message_id=%d: %v", messageID, err)
		return directError(conn, failText)
	}
	if err := authorizeAuthor(msg, conn.UserID); err != nil {
		observability.IncWSRejected("message_mutation", "not_author")
		r.emitAudit(ctx, conn, "ERROR", "not allowed to change message", msg.GroupID, msg.ID)
		return directError(conn, errTextMessageAccess)
	}

	r.queue.Do(msg.GroupID, func() {
		r.publish(ctx, apply(msg))
	})
	return nil
}

func authorizeAuthor(msg models.Message, userID int) error {
	if msg.SenderID != userID || msg.IsDeleted() {
		return ErrAccessDenied
	}
	return nil
}

func (r *Router) editMessage(ctx context.Context, conn *Connection, msg models.Message, content string) []delivery {
	updated, err := r.messages.UpdateMessage(ctx, msg.ID, conn.UserID, content)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return directError(conn, errTextMessageAccess)
	}
	if err != nil {
		log.Printf("ws edit_message store failed message_id=%d: %v", msg.ID, err)
		return directError(conn, errTextEditFailed)
	}

	r.emitAudit(ctx, conn, "INFO", "Group message edited", updated.GroupID, updated.ID)
	return []delivery{{
		GroupID: updated.GroupID,
		Origin:  conn.UserID,
		Event: models.OutboundEvent{
			Type:    models.EventMessageEdited,
			GroupID: updated.GroupID,
			Message: updated.View(r.senderSummary(ctx, updated.SenderID)),
		},
	}}
}

func (r *Router) deleteMessage(ctx context.Context, conn *Connection, msg models.Message) []delivery {
	deleted, err := r.messages.SoftDeleteMessage(ctx, msg.ID, conn.UserID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return directError(conn, errTextMessageAccess)
	}
	if err != nil {
		log.Printf("ws delete_message store failed message_id=%d: %v", msg.ID, err)
		return directError(conn, errTextDeleteFailed)
	}

	r.emitAudit(ctx, conn, "INFO", "Group message deleted", deleted.GroupID, deleted.ID)
	return []delivery{{
		GroupID: deleted.GroupID,
		Origin:  conn.UserID,
		Event: models.OutboundEvent{
			Type:      models.EventMessageDeleted,
			GroupID:   deleted.GroupID,
			MessageID: deleted.ID,
		},
	}}
}

// publish encodes each event once and queues it to its recipients.
func (r *Router) publish(ctx context.Context, out []delivery) {
	for _, d := range out {
		if d.Direct != nil {
			d.Direct.Send(d.Event)
			continue
		}
		if !r.rooms.HasSubscribers(d.GroupID) {
			continue
		}

		payload, err := json.Marshal(d.Event)
		if err != nil {
			log.Printf("ws encode error type=%s group_id=%d: %v", d.Event.Type, d.GroupID, err)
			continue
		}
		isMember, err := r.memberFilter(ctx, d.GroupID)
		if err != nil {
			log.Printf("ws member lookup failed group_id=%d type=%s, delivering to origin user_id=%d only: %v", d.GroupID, d.Event.Type, d.Origin, err)
			observability.IncWSRejected(string(d.Event.Type), "membership_unavailable")
			origin := d.Origin
			isMember = func(userID int) bool { return origin != 0 && userID == origin }
		}
		exclude, excludeUser := d.Exclude, d.ExcludeUser
		n := r.rooms.Broadcast(d.GroupID, payload, func(c *Connection) bool {
			if c == exclude || (excludeUser != 0 && c.UserID == excludeUser) {
				return false
			}
			return isMember(c.UserID)
		})
		observability.AddWSDeliveries(string(d.Event.Type), n)
	}
}

// memberFilter snapshots durable membership so stale room subscriptions are
// skipped.
func (r *Router) memberFilter(ctx context.Context, groupID int) (func(int) bool, error) {
	ids, err := r.groups.ListMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}
	return func(userID int) bool {
		_, ok := members[userID]
		return ok
	}, nil
}

func (r *Router) senderSummary(ctx context.Context, userID int) models.UserSummary {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		log.Printf("ws sender lookup failed user_id=%d: %v", userID, err)
		return models.UserSummary{ID: userID}
	}
	return user.Summary()
}

func (r *Router) emitAudit(ctx context.Context, conn *Connection, level, text string, groupID, messageID int) {
	if r.audit == nil {
		return
	}
	userID := conn.UserID
	r.audit.EmitPayload(ctx, telemetry.AuditPayload{
		Level:   level,
		Text:    text,
		GroupID: groupID,
		Message: messageID,
	}, conn.Info.RequestID, &userID)
}
