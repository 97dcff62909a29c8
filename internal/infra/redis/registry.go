package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
)

// SessionRegistry is a Redis-aware implementation of app.SessionRegistry.
// Notes:
//   - Sessions themselves stay in a local in-memory map; the aggregate holds
//     timers and live connection state that cannot move across processes.
//   - Redis reserves the PIN (SetNX with TTL), so two instances can never hand
//     out the same PIN while both sessions are live.
type SessionRegistry struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (r *SessionRegistry) Put(pin string, session *app.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.sessions[pin]; taken {
		return false
	}
	ok, err := r.client.SetNX(context.Background(), r.key(pin), "1", r.ttl).Result()
	if err != nil {
		// Redis down: fall back to local uniqueness rather than refusing games.
		ok = true
	}
	if !ok {
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
	r.removeLocked(pin)
}

func (r *SessionRegistry) Sweep(now time.Time, idleTTL, finishedTTL time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for pin, session := range r.sessions {
		if session.Reapable(now, idleTTL, finishedTTL) {
			r.removeLocked(pin)
			removed++
		}
	}
	return removed
}

func (r *SessionRegistry) removeLocked(pin string) {
	delete(r.sessions, pin)
	_ = r.client.Del(context.Background(), r.key(pin)).Err()
}

func (r *SessionRegistry) key(pin string) string {
	return "session:pin:" + pin
}
