package chathub

import (
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"log/slog"
	"sync"
)

// Registry is the process-wide index of live sessions by user and by room.
// All methods are safe for concurrent use; none of them do I/O while holding
// the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Client            // sessionID -> client
	users    map[string]map[string]Client // userID -> sessionID -> client
	rooms    map[string]map[string]Client // room -> sessionID -> client
	joined   map[string]map[string]struct{}

	log *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]Client),
		users:    make(map[string]map[string]Client),
		rooms:    make(map[string]map[string]Client),
		joined:   make(map[string]map[string]struct{}),
		log:      logger,
	}
}

// Register adds c and reports whether it is the user's only session now.
func (r *Registry) Register(c Client) (sessionID string, first bool) {
	sessionID = c.GetSessionID()
	userID := c.GetUserID()

	r.mu.Lock()
	r.sessions[sessionID] = c
	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]Client)
		r.users[userID] = set
	}
	set[sessionID] = c
	first = len(set) == 1
	r.mu.Unlock()

	metrics.LiveSessions.Inc()
	r.log.Debug("registry - register - session added", "user_id", userID, "session_id", sessionID, "first", first)
	return sessionID, first
}

// Unregister removes the session and every room membership it held. last is
// true when the user has no sessions left. Unknown sessions are ignored.
func (r *Registry) Unregister(sessionID string) (userID string, last bool) {
	r.mu.Lock()
	c, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.sessions, sessionID)

	userID = c.GetUserID()
	if set, ok := r.users[userID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.users, userID)
			last = true
		}
	}

	for room := range r.joined[sessionID] {
		r.leaveLocked(sessionID, room)
	}
	delete(r.joined, sessionID)
	r.mu.Unlock()

	metrics.LiveSessions.Dec()
	r.log.Debug("registry - unregister - session removed", "user_id", userID, "session_id", sessionID, "last", last)
	return userID, last
}

// SessionsFor returns a snapshot; it may be empty.
func (r *Registry) SessionsFor(userID string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	out := make([]Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// All returns a snapshot of every live session.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.sessions))
	for _, c := range r.sessions {
		out = append(out, c)
	}
	return out
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	return out
}

// JoinRoom subscribes a registered session to room. It returns false if the
// session is unknown.
func (r *Registry) JoinRoom(sessionID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Client)
		r.rooms[room] = members
	}
	members[sessionID] = c

	rooms, ok := r.joined[sessionID]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[sessionID] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

func (r *Registry) LeaveRoom(sessionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(sessionID, room)
	if rooms, ok := r.joined[sessionID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, sessionID)
		}
	}
}

// leaveLocked drops the membership and removes the room once it is empty.
func (r *Registry) leaveLocked(sessionID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) RoomMembers(room string) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// SendToUser pushes ev to every live session of userID. A full or closed
// session does not stop delivery to the others.
func (r *Registry) SendToUser(userID string, ev models.ServerEvent) (delivered, dropped int) {
	return deliver(r.SessionsFor(userID), ev)
}

// Broadcast pushes ev to every live session except those of exceptUserID.
func (r *Registry) Broadcast(ev models.ServerEvent, exceptUserID string) (delivered, dropped int) {
	r.mu.RLock()
	targets := make([]Client, 0, len(r.sessions))
	for _, c := range r.sessions {
		if c.GetUserID() != exceptUserID {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	return deliver(targets, ev)
}

func deliver(targets []Client, ev models.ServerEvent) (delivered, dropped int) {
	for _, c := range targets {
		if c.Send(ev) {
			delivered++
		} else {
			dropped++
		}
	}
	if delivered > 0 {
		metrics.FanoutDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	}
	if dropped > 0 {
		metrics.FanoutDeliveriesTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
	return delivered, dropped
}
