package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"coach-chat/internal/feed"
	"coach-chat/internal/middleware"
	"coach-chat/internal/models"
	"coach-chat/internal/repositories"
	"coach-chat/internal/storage"
)

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) FetchMessages(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error) {
	args := m.Called(ctx, scope, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *GatewayMock) InsertMessage(ctx context.Context, scope models.Scope, authorID, body, attachmentURL string) (models.Message, error) {
	args := m.Called(ctx, scope, authorID, body, attachmentURL)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *GatewayMock) DeleteMessage(ctx context.Context, id string, actorID string) error {
	args := m.Called(ctx, id, actorID)
	return args.Error(0)
}

func (m *GatewayMock) MarkRead(ctx context.Context, scope models.Scope, readerID string) error {
	args := m.Called(ctx, scope, readerID)
	return args.Error(0)
}

func (m *GatewayMock) FetchOne(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *GatewayMock) Conversations(ctx context.Context, userID string) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	return messages(args.Get(0)), args.Error(1)
}

type BlobStorageMock struct {
	mock.Mock
}

func (m *BlobStorageMock) Upload(ctx context.Context, ownerID string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, ownerID, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *BlobStorageMock) Delete(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *BlobStorageMock) Get(ctx context.Context, name string) (storage.Blob, error) {
	args := m.Called(ctx, name)
	var blob storage.Blob
	if val := args.Get(0); val != nil {
		blob = val.(storage.Blob)
	}
	return blob, args.Error(1)
}

// EventFeedMock records the callback of each Subscribe call so tests can deliver
// simulated insert events through Emit.
type EventFeedMock struct {
	mock.Mock
	callbacks map[feed.Subscription]func(models.InsertRow)
	last      feed.Subscription
}

func (m *EventFeedMock) Subscribe(ctx context.Context, scope models.Scope, onInsert func(models.InsertRow)) (feed.Subscription, error) {
	args := m.Called(ctx, scope, onInsert)
	var sub feed.Subscription
	if val := args.Get(0); val != nil {
		sub = val.(feed.Subscription)
	}
	if err := args.Error(1); err != nil {
		return 0, err
	}
	if m.callbacks == nil {
		m.callbacks = map[feed.Subscription]func(models.InsertRow){}
	}
	m.callbacks[sub] = onInsert
	m.last = sub
	return sub, nil
}

func (m *EventFeedMock) Unsubscribe(sub feed.Subscription) error {
	args := m.Called(sub)
	return args.Error(0)
}

// Emit invokes the callback of the most recent subscription, even if it was
// unsubscribed, the way a late delivery would.
func (m *EventFeedMock) Emit(row models.InsertRow) {
	if cb, ok := m.callbacks[m.last]; ok {
		cb(row)
	}
}

var _ feed.Gateway = (*GatewayMock)(nil)
var _ feed.BlobStorage = (*BlobStorageMock)(nil)
var _ feed.EventFeed = (*EventFeedMock)(nil)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) ListDirect(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) ListPlan(ctx context.Context, planID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, planID, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) ListInvolving(ctx context.Context, userID string) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) Create(ctx context.Context, scope models.Scope, authorID, body, attachmentURL string) (models.Message, error) {
	args := m.Called(ctx, scope, authorID, body, attachmentURL)
	return message(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	return message(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, id, actorID string) error {
	args := m.Called(ctx, id, actorID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkDirectRead(ctx context.Context, readerID, peerID string) (int64, error) {
	args := m.Called(ctx, readerID, peerID)
	var n int64
	if val := args.Get(0); val != nil {
		n = val.(int64)
	}
	return n, args.Error(1)
}

type RoomMessageRepositoryMock struct {
	mock.Mock
}

func (m *RoomMessageRepositoryMock) List(ctx context.Context, limit int) ([]models.Message, error) {
	args := m.Called(ctx, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *RoomMessageRepositoryMock) Create(ctx context.Context, authorID, body, attachmentURL string) (models.Message, error) {
	args := m.Called(ctx, authorID, body, attachmentURL)
	return message(args.Get(0)), args.Error(1)
}

func (m *RoomMessageRepositoryMock) Get(ctx context.Context, id string) (models.Message, error) {
	args := m.Called(ctx, id)
	return message(args.Get(0)), args.Error(1)
}

func (m *RoomMessageRepositoryMock) Delete(ctx context.Context, id, actorID string) error {
	args := m.Called(ctx, id, actorID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	args := m.Called(ctx, role)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func messages(val any) []models.Message {
	if val == nil {
		return nil
	}
	return val.([]models.Message)
}

func message(val any) models.Message {
	if val == nil {
		return models.Message{}
	}
	return val.(models.Message)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.RoomMessageRepository = (*RoomMessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

var _ middleware.TokenValidator = (*TokenValidatorMock)(nil)
