package app

import (
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Session is the in-memory aggregate for one live game, keyed by PIN. All
// mutation goes through GameService, which holds the session lock across each
// operation; timer callbacks re-validate state under the same lock before
// acting.
type Session struct {
	mu sync.Mutex

	pin        string
	quizID     string
	hostConnID string
	hostUserID string

	status           domain.SessionStatus
	autoAdvance      bool
	acceptingAnswers bool

	players []*domain.Player
	byConn  map[string]*domain.Player

	questions    []domain.Question
	currentIndex int

	// answered guards at-most-once scoring per player per question; reset on
	// every question presentation.
	answered map[string]struct{}

	timer      *timerController
	lastActive time.Time
	now        func() time.Time
}

// NewSession is exported for infrastructure layers and their tests that need
// to seed a registry without going through the orchestrator.
func NewSession(pin string) *Session {
	return newSession(pin, "", "", "", realScheduler, time.Now)
}

func newSession(pin, quizID, hostConnID, hostUserID string, schedule Scheduler, now func() time.Time) *Session {
	return &Session{
		pin:          pin,
		quizID:       quizID,
		hostConnID:   hostConnID,
		hostUserID:   hostUserID,
		status:       domain.StatusWaiting,
		byConn:       make(map[string]*domain.Player),
		answered:     make(map[string]struct{}),
		currentIndex: -1,
		timer:        newTimerController(schedule),
		lastActive:   now(),
		now:          now,
	}
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

func (s *Session) playerViewsLocked() []domain.PlayerView {
	views := make([]domain.PlayerView, 0, len(s.players))
	for _, p := range s.players {
		views = append(views, domain.PlayerView{Name: p.Name, Score: p.Score})
	}
	return views
}

// PIN returns the session identifier players join with.
func (s *Session) PIN() string {
	return s.pin
}

// Status reports the current lifecycle state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentIndex reports the 0-based question cursor, -1 before start.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// AcceptingAnswers reports whether the question window is open.
func (s *Session) AcceptingAnswers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptingAnswers
}

// AutoAdvance reports whether the host enabled automatic advancing.
func (s *Session) AutoAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoAdvance
}

// PlayerScore returns the score of the player behind a connection id.
func (s *Session) PlayerScore(connID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byConn[connID]
	if !ok {
		return 0, false
	}
	return p.Score, true
}

// Players returns the join-ordered player list.
func (s *Session) Players() []domain.PlayerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerViewsLocked()
}

// Reapable reports whether the cleanup sweep may remove this session: finished
// games past their grace window, or any session idle beyond the TTL.
func (s *Session) Reapable(now time.Time, idleTTL, finishedTTL time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	age := now.Sub(s.lastActive)
	if s.status == domain.StatusFinished {
		return age >= finishedTTL
	}
	return age >= idleTTL
}
