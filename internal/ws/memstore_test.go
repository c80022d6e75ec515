package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

// memStore is an in-memory stand-in for the group, message and user tables.
type memStore struct {
	mu       sync.Mutex
	members  map[int]map[int]struct{}
	users    map[int]models.User
	messages map[int]models.Message
	nextID   int
	touched  map[int]int
	presence map[int]bool
}

var (
	_ repositories.GroupRepository   = (*memStore)(nil)
	_ repositories.MessageRepository = (*memStore)(nil)
	_ repositories.UserRepository    = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		members:  make(map[int]map[int]struct{}),
		users:    make(map[int]models.User),
		messages: make(map[int]models.Message),
		touched:  make(map[int]int),
		presence: make(map[int]bool),
	}
}

func (s *memStore) addUser(id int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = models.User{ID: id, Username: name}
}

func (s *memStore) addMember(groupID, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[int]struct{})
	}
	s.members[groupID][userID] = struct{}{}
}

func (s *memStore) removeMember(groupID, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
}

func (s *memStore) message(id int) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) online(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence[userID]
}

func (s *memStore) ListGroupIDsForUser(_ context.Context, userID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for groupID, members := range s.members {
		if _, ok := members[userID]; ok {
			ids = append(ids, groupID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *memStore) IsMember(_ context.Context, groupID int, userID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

func (s *memStore) ListMemberIDs(_ context.Context, groupID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.members[groupID]))
	for id := range s.members[groupID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *memStore) TouchGroup(_ context.Context, groupID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[groupID]; !ok {
		return repositories.ErrGroupNotFound
	}
	s.touched[groupID]++
	return nil
}

func (s *memStore) CreateMessage(_ context.Context, groupID int, senderID int, content string, msgType models.MessageType) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now()
	msg := models.Message{
		ID:          s.nextID,
		GroupID:     groupID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		Status:      models.MessageActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *memStore) GetMessage(_ context.Context, messageID int) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (s *memStore) UpdateMessage(_ context.Context, messageID int, senderID int, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.SenderID != senderID || msg.IsDeleted() {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	now := time.Now()
	msg.Content = content
	msg.Status = models.MessageEdited
	msg.EditedAt = &now
	msg.UpdatedAt = now
	s.messages[messageID] = msg
	return msg, nil
}

func (s *memStore) SoftDeleteMessage(_ context.Context, messageID int, senderID int) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.SenderID != senderID || msg.IsDeleted() {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	now := time.Now()
	msg.Status = models.MessageDeleted
	msg.DeletedAt = &now
	msg.UpdatedAt = now
	s.messages[messageID] = msg
	return msg, nil
}

func (s *memStore) GetUser(_ context.Context, userID int) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) UpdatePresence(_ context.Context, userID int, online bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = online
	return nil
}

// tokenVerifier maps each seeded token to its user id.
type tokenVerifier map[string]int

func (v tokenVerifier) Verify(_ context.Context, credential string) (int, error) {
	id, ok := v[credential]
	if !ok {
		return 0, ErrAccessDenied
	}
	return id, nil
}

// failingMembers is a memStore whose member list lookup always fails.
type failingMembers struct {
	*memStore
}

func (failingMembers) ListMemberIDs(context.Context, int) ([]int, error) {
	return nil, errors.New("db down")
}

// gatedMessages parks CreateMessage until release is closed, then honours ctx.
type gatedMessages struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (g gatedMessages) CreateMessage(ctx context.Context, groupID int, senderID int, content string, msgType models.MessageType) (models.Message, error) {
	close(g.entered)
	<-g.release
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	return g.memStore.CreateMessage(ctx, groupID, senderID, content, msgType)
}

// gatedPresence parks the first offline write until release is closed.
type gatedPresence struct {
	*memStore
	once    *sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g gatedPresence) UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	if !online {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.memStore.UpdatePresence(ctx, userID, online, lastSeen)
}

// drain decodes every frame currently queued on conn.
func drain(t *testing.T, conn *Connection) []models.OutboundEvent {
	t.Helper()
	var events []models.OutboundEvent
	for {
		select {
		case payload, ok := <-conn.Outbound():
			if !ok {
				return events
			}
			var ev models.OutboundEvent
			require.NoError(t, json.Unmarshal(payload, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []models.OutboundEvent) []models.EventType {
	types := make([]models.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}
