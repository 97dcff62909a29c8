package app

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// Fixed pacing rules, matching the product behavior: a flat award per correct
// answer, one extra second on top of each question's time limit, and a five
// second review window before an automatic advance.
const (
	pointsPerCorrect = 100
	timerGrace       = time.Second
	reviewGrace      = 5 * time.Second

	pinAttempts = 100
)

// QuizStore loads quiz content and appends game history (Postgres, cached via
// Redis, or in-memory for tests and demos).
type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
	AppendHistory(ctx context.Context, rec domain.HistoryRecord) error
}

// Broadcaster abstracts the realtime transport: room-scoped publish keyed by
// session PIN, and direct sends keyed by connection id.
type Broadcaster interface {
	Publish(room, event string, payload any)
	Send(connectionID, event string, payload any)
}

// GameService orchestrates live quiz sessions: admission, pacing, answer
// judging, scoring, and the final leaderboard.
type GameService struct {
	registry SessionRegistry
	quizzes  QuizStore
	bus      Broadcaster
	schedule Scheduler
	now      func() time.Time
}

func NewGameService(registry SessionRegistry, quizzes QuizStore, bus Broadcaster) *GameService {
	return NewGameServiceWithScheduler(registry, quizzes, bus, realScheduler, time.Now)
}

// NewGameServiceWithScheduler is test-only for deterministic timers and timestamps.
func NewGameServiceWithScheduler(registry SessionRegistry, quizzes QuizStore, bus Broadcaster, schedule Scheduler, now func() time.Time) *GameService {
	return &GameService{
		registry: registry,
		quizzes:  quizzes,
		bus:      bus,
		schedule: schedule,
		now:      now,
	}
}

// CreateSession registers a new waiting session under a fresh 4-digit PIN and
// notifies the host connection. The PIN space is small, so generation retries
// until the registry accepts an unused one.
func (g *GameService) CreateSession(ctx context.Context, quizID, hostConnID, hostUserID string) (string, error) {
	for i := 0; i < pinAttempts; i++ {
		pin := fmt.Sprintf("%d", 1000+rand.Intn(9000))
		session := newSession(pin, quizID, hostConnID, hostUserID, g.schedule, g.now)
		if !g.registry.Put(pin, session) {
			continue
		}
		g.bus.Send(hostConnID, domain.EvtSessionCreated, map[string]string{"pin": pin})
		return pin, nil
	}
	return "", domain.ErrNoFreePIN
}

// ToggleAutoAdvance flips host-controlled automatic advancing. Host-only.
func (g *GameService) ToggleAutoAdvance(pin, connID string, enabled bool) error {
	s, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if connID != s.hostConnID {
		return domain.ErrNotHost
	}
	s.autoAdvance = enabled
	s.touchLocked()
	return nil
}

// Join admits a player into a waiting or active session. Rejections are
// reported to the joining connection as well as returned.
func (g *GameService) Join(pin, connID, nickname, externalUserID string) error {
	s, ok := g.registry.Get(pin)
	if !ok {
		g.bus.Send(connID, domain.EvtJoinRejected, map[string]string{"reason": "unknown PIN"})
		return domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.StatusFinished {
		g.bus.Send(connID, domain.EvtJoinRejected, map[string]string{"reason": "game is over"})
		return domain.ErrSessionFinished
	}

	if p, rejoined := s.byConn[connID]; rejoined {
		p.Name = nickname
	} else {
		p := &domain.Player{ConnectionID: connID, Name: nickname, ExternalUserID: externalUserID}
		s.players = append(s.players, p)
		s.byConn[connID] = p
	}
	s.touchLocked()

	g.bus.Send(connID, domain.EvtJoinAccepted, struct{}{})
	g.bus.Publish(s.pin, domain.EvtPlayerListUpdated, s.playerViewsLocked())
	return nil
}

// Start loads the question snapshot and moves the session from waiting to
// active. Host-only. A quiz without questions refuses the transition and the
// session stays in waiting.
func (g *GameService) Start(ctx context.Context, pin, connID string) error {
	s, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}

	s.mu.Lock()
	if connID != s.hostConnID {
		s.mu.Unlock()
		return domain.ErrNotHost
	}
	if s.status != domain.StatusWaiting {
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	quizID := s.quizID
	s.mu.Unlock()

	// Load outside the lock; question fetch may hit the backing store.
	questions, err := g.quizzes.GetQuestions(ctx, quizID)
	if err != nil {
		return fmt.Errorf("load questions for quiz %s: %w", quizID, err)
	}
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	s.questions = questions
	s.currentIndex = 0
	s.status = domain.StatusActive
	g.presentLocked(s)
	return nil
}

// SubmitAnswer judges one submission for the current question. Late, stray,
// and duplicate submissions are rejected with sentinel errors the transport
// discards silently; only an exact unordered match of the correct index set
// scores, exactly once per player per question.
func (g *GameService) SubmitAnswer(pin, connID string, answerIndices []int) error {
	s, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive || !s.acceptingAnswers {
		return domain.ErrAnswerClosed
	}
	p, ok := s.byConn[connID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if _, dup := s.answered[connID]; dup {
		return domain.ErrAlreadyAnswered
	}
	s.answered[connID] = struct{}{}
	s.touchLocked()

	if sameIndexSet(answerIndices, s.questions[s.currentIndex].CorrectIndices) {
		p.Score += pointsPerCorrect
		g.bus.Send(connID, domain.EvtAnswerAccepted, struct{}{})
	}
	return nil
}

// Advance moves to the next question or finishes the game. Host-only. Any
// pending deadline is cancelled first so a stale expiry cannot fire against
// the new question.
func (g *GameService) Advance(pin, connID string) error {
	s, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if connID != s.hostConnID {
		return domain.ErrNotHost
	}
	if s.status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}
	g.advanceLocked(s)
	return nil
}

// presentLocked opens the question window for the question at currentIndex,
// broadcasts it to the room and to the host, and arms the deadline.
func (g *GameService) presentLocked(s *Session) {
	s.acceptingAnswers = true
	s.answered = make(map[string]struct{})
	s.touchLocked()

	q := s.questions[s.currentIndex]
	view := domain.QuestionView{
		Text:      q.Text,
		Options:   q.Options,
		ImageURL:  q.ImageURL,
		Current:   s.currentIndex + 1,
		Total:     len(s.questions),
		TimeLimit: q.TimeLimitSeconds,
	}
	g.bus.Publish(s.pin, domain.EvtQuestionPresented, view)
	g.bus.Send(s.hostConnID, domain.EvtQuestionPresented, view)

	pin, index := s.pin, s.currentIndex
	deadline := time.Duration(q.TimeLimitSeconds)*time.Second + timerGrace
	s.timer.arm(deadline, func() { g.finishQuestion(pin, index) })
}

// finishQuestion closes the question window when the deadline fires. The
// session may have advanced or been removed since the timer was armed, so the
// callback re-validates everything before acting.
func (g *GameService) finishQuestion(pin string, index int) {
	s, ok := g.registry.Get(pin)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive || s.currentIndex != index || !s.acceptingAnswers {
		return
	}
	s.acceptingAnswers = false
	s.touchLocked()
	g.bus.Publish(s.pin, domain.EvtTimeUp, struct{}{})

	if s.autoAdvance {
		s.timer.arm(reviewGrace, func() { g.autoAdvance(pin, index) })
	}
}

// autoAdvance runs after the review grace; a manual advance in the meantime
// makes it a no-op.
func (g *GameService) autoAdvance(pin string, index int) {
	s, ok := g.registry.Get(pin)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive || s.currentIndex != index {
		return
	}
	g.advanceLocked(s)
}

func (g *GameService) advanceLocked(s *Session) {
	s.timer.disarm()
	s.acceptingAnswers = false
	s.currentIndex++
	s.touchLocked()
	if s.currentIndex < len(s.questions) {
		g.presentLocked(s)
		return
	}
	g.finishLocked(s)
}

// finishLocked enters the terminal state, broadcasts the final leaderboard,
// and kicks off best-effort history persistence.
func (g *GameService) finishLocked(s *Session) {
	s.status = domain.StatusFinished
	s.timer.disarm()

	leaderboard := buildLeaderboard(s.players)
	g.bus.Publish(s.pin, domain.EvtGameOver, leaderboard)
	g.bus.Send(s.hostConnID, domain.EvtGameOver, leaderboard)

	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	go g.persistHistory(s.quizID, s.hostUserID, players)
}

// sameIndexSet compares two option index sets ignoring order. Exact match is
// required; no partial credit.
func sameIndexSet(submitted, correct []int) bool {
	if len(submitted) != len(correct) {
		return false
	}
	a := append([]int(nil), submitted...)
	b := append([]int(nil), correct...)
	sort.Ints(a)
	sort.Ints(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
