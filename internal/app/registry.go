package app

import "time"

// SessionRegistry owns the PIN to Session mapping, the only process-wide
// mutable state. Put must refuse a PIN that is already held by a live session
// so that PIN generation can retry on collision.
type SessionRegistry interface {
	Put(pin string, session *Session) bool
	Get(pin string) (*Session, bool)
	Remove(pin string)
	// Sweep removes reapable sessions and returns how many were dropped.
	Sweep(now time.Time, idleTTL, finishedTTL time.Duration) int
}
