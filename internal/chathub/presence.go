package chathub

import (
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
}

const presenceStripes = 64

// PresenceTracker turns registry transitions into persisted presence and
// user_online / user_offline broadcasts.
//
// It does not trust the caller's view of "first" or "last" session. Each call
// compares the registry's current state with what was last published for the
// user and publishes only the difference, under a per-user lock. Interleaved
// connects and disconnects of one user therefore always converge on the
// registry's final state, and a user with two sessions closing one never goes
// offline.
type PresenceTracker struct {
	registry *Registry
	store    PresenceStore
	log      *slog.Logger
	now      func() time.Time

	stripes [presenceStripes]sync.Mutex

	mu     sync.Mutex
	online map[string]struct{} // users last published as online
}

func NewPresenceTracker(registry *Registry, store PresenceStore, logger *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		store:    store,
		log:      logger,
		now:      time.Now,
		online:   make(map[string]struct{}),
	}
}

// OnConnect must be called after the session was registered.
func (p *PresenceTracker) OnConnect(ctx context.Context, userID, username string) bool {
	return p.sync(ctx, userID, username)
}

// OnDisconnect must be called after the session was unregistered.
func (p *PresenceTracker) OnDisconnect(ctx context.Context, userID, username string) bool {
	return p.sync(ctx, userID, username)
}

func (p *PresenceTracker) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &p.stripes[h.Sum32()%presenceStripes]
}

func (p *PresenceTracker) sync(ctx context.Context, userID, username string) bool {
	lock := p.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	want := p.registry.IsOnline(userID)

	p.mu.Lock()
	_, have := p.online[userID]
	p.mu.Unlock()
	if want == have {
		return false
	}

	// The store write is best effort: live state wins, and the next
	// transition rewrites the row anyway.
	if err := p.store.SetPresence(ctx, userID, want, p.now().UTC()); err != nil {
		p.log.Error("presence - sync - persist failed", "user_id", userID, "online", want, "err", err)
	}

	p.mu.Lock()
	if want {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
	p.mu.Unlock()

	state := "offline"
	if want {
		state = "online"
	}
	metrics.PresenceTransitionsTotal.WithLabelValues(state).Inc()

	delivered, _ := p.registry.Broadcast(models.NewPresenceEvent(userID, username, want), userID)
	p.log.Info("presence - sync - user "+state, "user_id", userID, "notified", delivered)
	return true
}
