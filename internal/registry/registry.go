// Package registry tracks live WebSocket sessions per user.
package registry

import (
	"errors"
	"sync"
	"time"
)

// ErrTooManySessions is returned when a user is at their concurrent
// session limit.
var ErrTooManySessions = errors.New("too many sessions")

// Sink delivers outbound frames to one connection. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(v any) error
	Close() error
}

// Session is one live connection belonging to a user. A user may hold
// several sessions at once, one per device or tab.
type Session struct {
	ID        string
	UserID    string
	Username  string
	CreatedAt time.Time
	Sink      Sink
}

// Registry is the in-memory index of live sessions, keyed by user.
type Registry struct {
	mu         sync.RWMutex
	byUser     map[string]map[string]*Session // user ID -> session ID -> session
	maxPerUser int
}

// New creates a Registry. maxPerUser caps concurrent sessions per user;
// zero or negative means no cap.
func New(maxPerUser int) *Registry {
	return &Registry{
		byUser:     make(map[string]map[string]*Session),
		maxPerUser: maxPerUser,
	}
}

// Register adds a session. Returns ErrTooManySessions when the user is at
// the cap; the existing sessions are left untouched.
func (r *Registry) Register(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.byUser[sess.UserID]
	if r.maxPerUser > 0 && len(sessions) >= r.maxPerUser {
		return ErrTooManySessions
	}
	if sessions == nil {
		sessions = make(map[string]*Session)
		r.byUser[sess.UserID] = sessions
	}
	sessions[sess.ID] = sess
	return nil
}

// Unregister removes a session. Removing a session that is already gone
// is a no-op.
func (r *Registry) Unregister(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.byUser[userID]
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.byUser, userID)
	}
}

// LiveSessions returns a snapshot of the user's sessions. The slice is
// safe to iterate without holding any lock; sends happen outside it.
func (r *Registry) LiveSessions(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[userID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess)
	}
	return out
}

// Online reports whether the user has at least one live session.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// CountSessions returns how many live sessions the user has.
func (r *Registry) CountSessions(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// OnlineUsers returns the set of user IDs with at least one live session.
func (r *Registry) OnlineUsers() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make(map[string]bool, len(r.byUser))
	for userID := range r.byUser {
		online[userID] = true
	}
	return online
}

// TotalSessions returns the number of live sessions across all users.
func (r *Registry) TotalSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, sessions := range r.byUser {
		total += len(sessions)
	}
	return total
}
