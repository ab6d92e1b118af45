package chathub_test

import (
	"anonchat/backend/internal/models"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	sessionID string
	userID    string
	username  string
	send      chan models.ServerEvent

	mu     sync.Mutex
	closed bool
}

func newMockClient(userID string) *MockClient {
	return newMockClientWithBuffer(userID, 10)
}

func newMockClientWithBuffer(userID string, buffer int) *MockClient {
	return &MockClient{
		sessionID: uuid.NewString(),
		userID:    userID,
		username:  "name-" + userID,
		send:      make(chan models.ServerEvent, buffer),
	}
}

func (c *MockClient) GetSessionID() string { return c.sessionID }
func (c *MockClient) GetUserID() string    { return c.userID }
func (c *MockClient) GetUsername() string  { return c.username }

func (c *MockClient) Send(ev models.ServerEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// drain returns the types of everything queued so far.
func (c *MockClient) drain() []string {
	var out []string
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}

type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	args := m.Called(ctx, userID, online, at)
	return args.Error(0)
}
