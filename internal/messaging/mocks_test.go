package messaging_test

import (
	"anonchat/backend/internal/models"
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetPublicProfile(ctx context.Context, id string) (*models.PublicProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PublicProfile), args.Error(1)
}

func (m *MockStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStore) UpsertChat(ctx context.Context, x, y, lastMessage string, at time.Time) (*models.Chat, error) {
	args := m.Called(ctx, x, y, lastMessage, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStore) MarkRead(ctx context.Context, readerID, otherID string) (int64, error) {
	args := m.Called(ctx, readerID, otherID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) LatestMessageBetween(ctx context.Context, x, y string) (*models.Message, error) {
	args := m.Called(ctx, x, y)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) MessagePairs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) EnqueueReconcile(ctx context.Context, pairKey string) error {
	args := m.Called(ctx, pairKey)
	return args.Error(0)
}

func (m *MockStore) PopReconcile(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type delivery struct {
	UserID string
	Event  models.ServerEvent
}

// recorder is a Deliverer that keeps every event it was asked to push.
type recorder struct {
	mu  sync.Mutex
	got []delivery
}

func (r *recorder) SendToUser(userID string, ev models.ServerEvent) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{UserID: userID, Event: ev})
	return 1, 0
}

func (r *recorder) events() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func (r *recorder) typesFor(userID string) []string {
	var out []string
	for _, d := range r.events() {
		if d.UserID == userID {
			out = append(out, d.Event.Type)
		}
	}
	return out
}

// notifierFunc adapts a function to alert.Notifier.
type notifierFunc func(ctx context.Context, text string) error

func (f notifierFunc) Notify(ctx context.Context, text string) error { return f(ctx, text) }
