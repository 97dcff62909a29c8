package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestCreateSessionGeneratesUniquePINs(t *testing.T) {
	g, bus, _, _ := newTestGame(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		pin, err := g.CreateSession(context.Background(), "quiz-1", "host-conn", "")
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		if len(pin) != 4 {
			t.Fatalf("expected 4-digit PIN, got %q", pin)
		}
		if seen[pin] {
			t.Fatalf("PIN %s issued twice", pin)
		}
		seen[pin] = true
	}
	if got := len(bus.sends(domain.EvtSessionCreated)); got != 50 {
		t.Fatalf("expected 50 sessionCreated events, got %d", got)
	}
}

func TestCreateSessionRetriesOnCollision(t *testing.T) {
	registry := &collidingRegistry{SessionRegistry: memory.NewSessionRegistry(), rejections: 3}
	store := newTestStore()
	bus := &fakeBus{}
	sched := &manualScheduler{}
	g := app.NewGameServiceWithScheduler(registry, store, bus, sched.schedule, time.Now)

	pin, err := g.CreateSession(context.Background(), "quiz-1", "host-conn", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if pin == "" {
		t.Fatalf("expected a PIN despite collisions")
	}
	if registry.attempts != 4 {
		t.Fatalf("expected 4 Put attempts, got %d", registry.attempts)
	}
}

func TestStartRefusedWithoutQuestions(t *testing.T) {
	g, _, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-empty", "host-conn")
	err := g.Start(context.Background(), pin, "host-conn")
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}

	s, _ := reg.Get(pin)
	if s.Status() != domain.StatusWaiting {
		t.Fatalf("expected session to stay waiting, got %s", s.Status())
	}
}

func TestStartPresentsFirstQuestion(t *testing.T) {
	g, bus, sched, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	if err := g.Start(context.Background(), pin, "host-conn"); err != nil {
		t.Fatalf("start: %v", err)
	}

	s, _ := reg.Get(pin)
	if s.Status() != domain.StatusActive || s.CurrentIndex() != 0 || !s.AcceptingAnswers() {
		t.Fatalf("unexpected state after start: status=%s index=%d accepting=%v",
			s.Status(), s.CurrentIndex(), s.AcceptingAnswers())
	}

	published := bus.publishes(domain.EvtQuestionPresented)
	if len(published) != 1 || published[0].room != pin {
		t.Fatalf("expected one room broadcast of the question, got %+v", published)
	}
	view := published[0].payload.(domain.QuestionView)
	if view.Current != 1 || view.Total != 2 || view.TimeLimit != 10 {
		t.Fatalf("unexpected question view: %+v", view)
	}
	direct := bus.sends(domain.EvtQuestionPresented)
	if len(direct) != 1 || direct[0].conn != "host-conn" {
		t.Fatalf("expected host copy of the question, got %+v", direct)
	}

	timer := sched.lastTimer(t)
	if timer.d != 11*time.Second {
		t.Fatalf("expected 11s deadline (10s limit + 1s grace), got %v", timer.d)
	}
}

func TestStartByNonHostRejected(t *testing.T) {
	g, _, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	if err := g.Start(context.Background(), pin, "imposter"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	s, _ := reg.Get(pin)
	if s.Status() != domain.StatusWaiting {
		t.Fatalf("expected waiting, got %s", s.Status())
	}
}

func TestAnswerScoringIsOrderIndependent(t *testing.T) {
	g, bus, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-multi", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	// Correct set is {0, 2}; submit reversed.
	if err := g.SubmitAnswer(pin, "p1", []int{2, 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s, _ := reg.Get(pin)
	if score, _ := s.PlayerScore("p1"); score != 100 {
		t.Fatalf("expected 100 points, got %d", score)
	}
	acks := bus.sends(domain.EvtAnswerAccepted)
	if len(acks) != 1 || acks[0].conn != "p1" {
		t.Fatalf("expected answerAccepted for p1, got %+v", acks)
	}
}

func TestWrongAnswerScoresNothing(t *testing.T) {
	g, bus, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	if err := g.SubmitAnswer(pin, "p1", []int{0}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s, _ := reg.Get(pin)
	if score, _ := s.PlayerScore("p1"); score != 0 {
		t.Fatalf("expected 0 points for wrong answer, got %d", score)
	}
	if acks := bus.sends(domain.EvtAnswerAccepted); len(acks) != 0 {
		t.Fatalf("expected silence on wrong answer, got %+v", acks)
	}
}

func TestDuplicateSubmissionDoesNotDoubleScore(t *testing.T) {
	g, _, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	if err := g.SubmitAnswer(pin, "p1", []int{1}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := g.SubmitAnswer(pin, "p1", []int{1}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	s, _ := reg.Get(pin)
	if score, _ := s.PlayerScore("p1"); score != 100 {
		t.Fatalf("expected exactly 100 points, got %d", score)
	}
}

func TestLateSubmissionHasNoEffect(t *testing.T) {
	g, bus, sched, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	sched.lastTimer(t).fire()

	s, _ := reg.Get(pin)
	if s.AcceptingAnswers() {
		t.Fatalf("expected answer window closed after deadline")
	}
	if ups := bus.publishes(domain.EvtTimeUp); len(ups) != 1 {
		t.Fatalf("expected one timeUp broadcast, got %d", len(ups))
	}

	if err := g.SubmitAnswer(pin, "p1", []int{1}); !errors.Is(err, domain.ErrAnswerClosed) {
		t.Fatalf("expected ErrAnswerClosed, got %v", err)
	}
	if score, _ := s.PlayerScore("p1"); score != 0 {
		t.Fatalf("late submission changed score to %d", score)
	}
}

func TestSubmissionFromUnknownConnectionIgnored(t *testing.T) {
	g, _, _, _ := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	if err := g.SubmitAnswer(pin, "stranger", []int{1}); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestManualAdvanceCancelsPendingTimer(t *testing.T) {
	g, _, sched, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	first := sched.lastTimer(t)
	if err := g.Advance(pin, "host-conn"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !first.isCancelled() {
		t.Fatalf("expected first question deadline cancelled by manual advance")
	}

	s, _ := reg.Get(pin)
	if s.CurrentIndex() != 1 || !s.AcceptingAnswers() {
		t.Fatalf("expected question 2 live, got index=%d accepting=%v", s.CurrentIndex(), s.AcceptingAnswers())
	}

	// A zombie callback from the old deadline must not close the new window.
	first.fire()
	if s.CurrentIndex() != 1 || !s.AcceptingAnswers() {
		t.Fatalf("stale deadline affected question 2: index=%d accepting=%v", s.CurrentIndex(), s.AcceptingAnswers())
	}
}

func TestAdvanceByNonHostRejected(t *testing.T) {
	g, _, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	if err := g.Advance(pin, "p1"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	s, _ := reg.Get(pin)
	if s.CurrentIndex() != 0 {
		t.Fatalf("non-host advance moved the cursor to %d", s.CurrentIndex())
	}
}

func TestAutoAdvanceAfterReviewGrace(t *testing.T) {
	g, bus, sched, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	if err := g.ToggleAutoAdvance(pin, "host-conn", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	startSession(t, g, pin)

	sched.lastTimer(t).fire() // question deadline

	review := sched.lastTimer(t)
	if review.d != 5*time.Second {
		t.Fatalf("expected 5s review grace, got %v", review.d)
	}
	review.fire()

	s, _ := reg.Get(pin)
	if s.CurrentIndex() != 1 || !s.AcceptingAnswers() {
		t.Fatalf("expected auto-advance to question 2, got index=%d accepting=%v", s.CurrentIndex(), s.AcceptingAnswers())
	}
	if got := len(bus.publishes(domain.EvtQuestionPresented)); got != 2 {
		t.Fatalf("expected 2 question broadcasts, got %d", got)
	}
}

func TestManualAdvanceSupersedesAutoAdvance(t *testing.T) {
	g, _, sched, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	if err := g.ToggleAutoAdvance(pin, "host-conn", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	startSession(t, g, pin)

	sched.lastTimer(t).fire() // deadline; schedules the 5s auto-advance
	review := sched.lastTimer(t)

	if err := g.Advance(pin, "host-conn"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	s, _ := reg.Get(pin)
	if s.CurrentIndex() != 1 {
		t.Fatalf("expected index 1, got %d", s.CurrentIndex())
	}

	// The superseded auto-advance must not skip question 2.
	review.fire()
	if s.CurrentIndex() != 1 {
		t.Fatalf("stale auto-advance moved cursor to %d", s.CurrentIndex())
	}
}

func TestToggleAutoAdvanceByNonHostRejected(t *testing.T) {
	g, _, _, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")

	if err := g.ToggleAutoAdvance(pin, "p1", true); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	s, _ := reg.Get(pin)
	if s.AutoAdvance() {
		t.Fatalf("non-host toggled auto-advance")
	}
}

func TestJoinUnknownPINRejected(t *testing.T) {
	g, bus, _, _ := newTestGame(t)

	if err := g.Join("0000", "p1", "Alice", ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	rejects := bus.sends(domain.EvtJoinRejected)
	if len(rejects) != 1 || rejects[0].conn != "p1" {
		t.Fatalf("expected joinRejected sent to p1, got %+v", rejects)
	}
}

func TestJoinFinishedSessionRejected(t *testing.T) {
	g, _, _, _ := newTestGame(t)

	pin := createSession(t, g, "quiz-single", "host-conn")
	startSession(t, g, pin)
	if err := g.Advance(pin, "host-conn"); err != nil {
		t.Fatalf("advance past last question: %v", err)
	}

	if err := g.Join(pin, "p1", "Latecomer", ""); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}

func TestLeaderboardStableTieBreakAndHistory(t *testing.T) {
	g, bus, _, store := newTestGameWithStore(t)

	pin := createSession(t, g, "quiz-3q", "host-conn")
	if err := g.Join(pin, "a", "A", "user-a"); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if err := g.Join(pin, "b", "B", ""); err != nil {
		t.Fatalf("join B: %v", err)
	}
	if err := g.Join(pin, "c", "C", "user-c"); err != nil {
		t.Fatalf("join C: %v", err)
	}
	startSession(t, g, pin)

	// Question 1: everyone scores. Questions 2 and 3: only B.
	for _, conn := range []string{"a", "b", "c"} {
		if err := g.SubmitAnswer(pin, conn, []int{0}); err != nil {
			t.Fatalf("submit q1 %s: %v", conn, err)
		}
	}
	advance(t, g, pin)
	if err := g.SubmitAnswer(pin, "b", []int{0}); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	advance(t, g, pin)
	if err := g.SubmitAnswer(pin, "b", []int{0}); err != nil {
		t.Fatalf("submit q3: %v", err)
	}
	advance(t, g, pin)

	over := bus.publishes(domain.EvtGameOver)
	if len(over) != 1 {
		t.Fatalf("expected one gameOver broadcast, got %d", len(over))
	}
	lb := over[0].payload.([]domain.LeaderboardEntry)
	want := []domain.LeaderboardEntry{{Name: "B", Score: 300}, {Name: "A", Score: 100}, {Name: "C", Score: 100}}
	if len(lb) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), lb)
	}
	for i := range want {
		if lb[i] != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], lb[i])
		}
	}

	// History is appended asynchronously after the broadcast: A, C, and the host.
	records := waitForHistory(t, store, 3)
	byUser := make(map[string]domain.HistoryRecord)
	for _, rec := range records {
		byUser[rec.UserID] = rec
		if rec.QuizTitle != "Trivia Night" {
			t.Fatalf("expected resolved quiz title, got %q", rec.QuizTitle)
		}
	}
	if rec := byUser["user-a"]; rec.Role != domain.RolePlayer || rec.Score != 100 {
		t.Fatalf("unexpected record for user-a: %+v", rec)
	}
	if rec := byUser["user-c"]; rec.Role != domain.RolePlayer || rec.Score != 100 {
		t.Fatalf("unexpected record for user-c: %+v", rec)
	}
	if rec := byUser["host-1"]; rec.Role != domain.RoleHost || rec.Score != 0 {
		t.Fatalf("unexpected record for host: %+v", rec)
	}
}

func TestEndToEndScenario(t *testing.T) {
	g, bus, sched, reg := newTestGame(t)

	pin := createSession(t, g, "quiz-1", "host-conn")
	joinPlayer(t, g, pin, "p1", "Alice")
	startSession(t, g, pin)

	view := bus.publishes(domain.EvtQuestionPresented)[0].payload.(domain.QuestionView)
	if view.Current != 1 || view.Total != 2 {
		t.Fatalf("question 1: expected current=1 total=2, got %+v", view)
	}

	if err := g.SubmitAnswer(pin, "p1", []int{1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s, _ := reg.Get(pin)
	if score, _ := s.PlayerScore("p1"); score != 100 {
		t.Fatalf("expected 100 after question 1, got %d", score)
	}

	sched.lastTimer(t).fire()
	advance(t, g, pin)

	views := bus.publishes(domain.EvtQuestionPresented)
	view = views[len(views)-1].payload.(domain.QuestionView)
	if view.Current != 2 || view.Total != 2 || view.TimeLimit != 15 {
		t.Fatalf("question 2: expected current=2 total=2 timeLimit=15, got %+v", view)
	}

	sched.lastTimer(t).fire()
	advance(t, g, pin)

	if s.Status() != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", s.Status())
	}
	over := bus.publishes(domain.EvtGameOver)
	lb := over[len(over)-1].payload.([]domain.LeaderboardEntry)
	if len(lb) != 1 || lb[0].Name != "Alice" || lb[0].Score != 100 {
		t.Fatalf("unexpected final leaderboard: %+v", lb)
	}
}

// --- helpers ---

func newTestGame(t *testing.T) (*app.GameService, *fakeBus, *manualScheduler, *memory.SessionRegistry) {
	t.Helper()
	registry := memory.NewSessionRegistry()
	bus := &fakeBus{}
	sched := &manualScheduler{}
	g := app.NewGameServiceWithScheduler(registry, newTestStore(), bus, sched.schedule, time.Now)
	return g, bus, sched, registry
}

func newTestGameWithStore(t *testing.T) (*app.GameService, *fakeBus, *manualScheduler, *memory.StaticQuizStore) {
	t.Helper()
	registry := memory.NewSessionRegistry()
	bus := &fakeBus{}
	sched := &manualScheduler{}
	store := newTestStore()
	g := app.NewGameServiceWithScheduler(registry, store, bus, sched.schedule, time.Now)
	return g, bus, sched, store
}

func newTestStore() *memory.StaticQuizStore {
	store := memory.NewStaticQuizStore()
	store.AddQuiz(domain.Quiz{ID: "quiz-1", Title: "Trivia Night"}, []domain.Question{
		{Text: "Q1", Options: []string{"a", "b", "c"}, CorrectIndices: []int{1}, TimeLimitSeconds: 10},
		{Text: "Q2", Options: []string{"a", "b", "c", "d"}, CorrectIndices: []int{0, 2}, TimeLimitSeconds: 15},
	})
	store.AddQuiz(domain.Quiz{ID: "quiz-multi", Title: "Multi"}, []domain.Question{
		{Text: "Pick two", Options: []string{"a", "b", "c"}, CorrectIndices: []int{0, 2}, TimeLimitSeconds: 10},
	})
	store.AddQuiz(domain.Quiz{ID: "quiz-single", Title: "Single"}, []domain.Question{
		{Text: "Only one", Options: []string{"a", "b"}, CorrectIndices: []int{0}, TimeLimitSeconds: 5},
	})
	store.AddQuiz(domain.Quiz{ID: "quiz-3q", Title: "Trivia Night"}, []domain.Question{
		{Text: "Q1", Options: []string{"a", "b"}, CorrectIndices: []int{0}, TimeLimitSeconds: 5},
		{Text: "Q2", Options: []string{"a", "b"}, CorrectIndices: []int{0}, TimeLimitSeconds: 5},
		{Text: "Q3", Options: []string{"a", "b"}, CorrectIndices: []int{0}, TimeLimitSeconds: 5},
	})
	store.AddQuiz(domain.Quiz{ID: "quiz-empty", Title: "Empty"}, nil)
	return store
}

func createSession(t *testing.T, g *app.GameService, quizID, hostConn string) string {
	t.Helper()
	pin, err := g.CreateSession(context.Background(), quizID, hostConn, "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return pin
}

func joinPlayer(t *testing.T, g *app.GameService, pin, connID, name string) {
	t.Helper()
	if err := g.Join(pin, connID, name, ""); err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
}

func startSession(t *testing.T, g *app.GameService, pin string) {
	t.Helper()
	if err := g.Start(context.Background(), pin, "host-conn"); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func advance(t *testing.T, g *app.GameService, pin string) {
	t.Helper()
	if err := g.Advance(pin, "host-conn"); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func waitForHistory(t *testing.T, store *memory.StaticQuizStore, n int) []domain.HistoryRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if records := store.History(); len(records) >= n {
			return records
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d history records, got %d", n, len(store.History()))
	return nil
}

type recordedEvent struct {
	room    string
	conn    string
	event   string
	payload any
}

type fakeBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBus) Publish(room, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{room: room, event: event, payload: payload})
}

func (b *fakeBus) Send(connID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{conn: connID, event: event, payload: payload})
}

func (b *fakeBus) publishes(event string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.event == event && e.room != "" {
			out = append(out, e)
		}
	}
	return out
}

func (b *fakeBus) sends(event string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.event == event && e.conn != "" {
			out = append(out, e)
		}
	}
	return out
}

type manualTimer struct {
	mu        sync.Mutex
	d         time.Duration
	fn        func()
	cancelled bool
}

func (m *manualTimer) fire() {
	m.fn()
}

func (m *manualTimer) isCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// manualScheduler records armed timers so tests decide when deadlines fire.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) func() {
	timer := &manualTimer{d: d, fn: fn}
	m.mu.Lock()
	m.timers = append(m.timers, timer)
	m.mu.Unlock()
	return func() {
		timer.mu.Lock()
		timer.cancelled = true
		timer.mu.Unlock()
	}
}

func (m *manualScheduler) lastTimer(t *testing.T) *manualTimer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		t.Fatalf("no timer armed")
	}
	return m.timers[len(m.timers)-1]
}

// collidingRegistry rejects the first few Put calls to simulate PIN collisions.
type collidingRegistry struct {
	*memory.SessionRegistry
	rejections int
	attempts   int
}

func (r *collidingRegistry) Put(pin string, session *app.Session) bool {
	r.attempts++
	if r.attempts <= r.rejections {
		return false
	}
	return r.SessionRegistry.Put(pin, session)
}
