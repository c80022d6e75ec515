package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
)

// ErrAuthentication is returned by Connect when the credential is rejected.
var ErrAuthentication = errors.New("authentication failed")

// Verifier resolves a bearer credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (int, error)
}

// Handshake is what a client presents when opening a session.
type Handshake struct {
	Credential string
	Info       ConnInfo
}

// Manager owns session lifecycles: authentication, room hydration and teardown.
type Manager struct {
	verifier   Verifier
	router     *Router
	presence   *PresenceStore
	persist    *sequencer
	sendBuffer int
	now        func() time.Time
}

func NewManager(verifier Verifier, router *Router, presence *PresenceStore, sendBuffer int) *Manager {
	return &Manager{
		verifier:   verifier,
		router:     router,
		presence:   presence,
		persist:    newSequencer(),
		sendBuffer: sendBuffer,
		now:        time.Now,
	}
}

// Presence exposes the manager's presence store.
func (m *Manager) Presence() *PresenceStore {
	return m.presence
}

// Connect authenticates the handshake and, on success, marks the user online,
// subscribes the connection to every group the user belongs to and announces
// the user to those rooms. A rejected handshake mutates nothing. Hydration
// failures leave the connection open with whatever rooms were joined.
func (m *Manager) Connect(ctx context.Context, hs Handshake) (*Connection, error) {
	userID, err := m.verifier.Verify(ctx, hs.Credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	conn := NewConnection(userID, hs.Info, m.sendBuffer)
	if m.presence.SetOnline(userID) {
		m.persistPresence(ctx, userID)
	}
	observability.SetOnlineUsers(m.presence.OnlineCount())

	groupIDs, err := m.router.groups.ListGroupIDsForUser(ctx, userID)
	if err != nil {
		log.Printf("ws hydrate rooms failed user_id=%d conn_id=%s: %v", userID, conn.ID, err)
		return conn, nil
	}

	username := m.router.senderSummary(ctx, userID).Username
	out := make([]delivery, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		if !m.router.rooms.Join(conn, groupID) {
			continue
		}
		out = append(out, delivery{
			GroupID:     groupID,
			ExcludeUser: userID,
			Event: models.OutboundEvent{
				Type:     models.EventUserOnline,
				GroupID:  groupID,
				UserID:   userID,
				Username: username,
			},
		})
	}
	m.router.publish(ctx, out)

	log.Printf("ws user_id=%d connected conn_id=%s rooms=%d", userID, conn.ID, len(out))
	return conn, nil
}

// Disconnect tears the connection down. Only the first call has any effect.
// When it was the user's last connection the user goes offline and every
// group in the user's durable membership is told.
func (m *Manager) Disconnect(ctx context.Context, conn *Connection) {
	if conn == nil || !conn.markClosed() {
		return
	}
	ctx = context.WithoutCancel(ctx)

	m.router.rooms.LeaveAll(conn)
	lastSeen := m.now()
	wentOffline := m.presence.SetOffline(conn.UserID, lastSeen)
	observability.SetOnlineUsers(m.presence.OnlineCount())
	log.Printf("ws user_id=%d disconnected conn_id=%s offline=%t", conn.UserID, conn.ID, wentOffline)
	if !wentOffline {
		return
	}

	m.persistPresence(ctx, conn.UserID)

	groupIDs, err := m.router.groups.ListGroupIDsForUser(ctx, conn.UserID)
	if err != nil {
		log.Printf("ws offline broadcast skipped user_id=%d: %v", conn.UserID, err)
		return
	}
	// A new session may have started while storage was being touched.
	if m.presence.IsOnline(conn.UserID) {
		return
	}

	username := m.router.senderSummary(ctx, conn.UserID).Username
	out := make([]delivery, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		seen := lastSeen
		out = append(out, delivery{
			GroupID: groupID,
			Event: models.OutboundEvent{
				Type:     models.EventUserOffline,
				GroupID:  groupID,
				UserID:   conn.UserID,
				Username: username,
				LastSeen: &seen,
			},
		})
	}
	m.router.publish(ctx, out)
}

// persistPresence stores the user's live state as of when the write runs.
// Writes for one user run one at a time.
func (m *Manager) persistPresence(ctx context.Context, userID int) {
	m.persist.Do(userID, func() {
		rec, ok := m.presence.Lookup(userID)
		if !ok {
			return
		}
		if err := m.router.users.UpdatePresence(ctx, userID, rec.Online, rec.LastSeen); err != nil {
			log.Printf("ws persist presence failed user_id=%d online=%t: %v", userID, rec.Online, err)
		}
	})
}
