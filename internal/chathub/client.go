package chathub

import "anonchat/backend/internal/models"

// Client is one live, authenticated connection. The registry and the
// messaging engine address clients only through this interface, so the
// transport behind it can change.
type Client interface {
	// GetSessionID returns the identifier of this connection, unique per process.
	GetSessionID() string
	// GetUserID returns the identity the connection was authenticated as.
	GetUserID() string
	GetUsername() string

	// Send queues ev for delivery without blocking. It returns false when the
	// client is closed or its buffer is full; the event is then dropped.
	Send(ev models.ServerEvent) bool

	// Close tears the connection down. Safe to call more than once.
	Close()
}
