package memory

import (
	"sync"
	"time"

	"live-quiz-service/internal/app"
)

// SessionRegistry is the in-memory implementation of app.SessionRegistry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*app.Session)}
}

func (r *SessionRegistry) Put(pin string, session *app.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.sessions[pin]; taken {
		return false
	}
	r.sessions[pin] = session
	return true
}

func (r *SessionRegistry) Get(pin string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[pin]
	return session, ok
}

func (r *SessionRegistry) Remove(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, pin)
}

func (r *SessionRegistry) Sweep(now time.Time, idleTTL, finishedTTL time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for pin, session := range r.sessions {
		if session.Reapable(now, idleTTL, finishedTTL) {
			delete(r.sessions, pin)
			removed++
		}
	}
	return removed
}
