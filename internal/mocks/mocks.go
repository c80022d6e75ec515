package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) ListMemberIDs(ctx context.Context, groupID int) ([]int, error) {
	args := m.Called(ctx, groupID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *GroupRepositoryMock) TouchGroup(ctx context.Context, groupID int) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, groupID int, senderID int, content string, msgType models.MessageType) (models.Message, error) {
	args := m.Called(ctx, groupID, senderID, content, msgType)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessage(ctx context.Context, messageID int, senderID int, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteMessage(ctx context.Context, messageID int, senderID int) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UpdatePresence(ctx context.Context, userID int, online bool, lastSeen time.Time) error {
	args := m.Called(ctx, userID, online, lastSeen)
	return args.Error(0)
}

var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
