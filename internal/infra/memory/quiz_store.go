package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// StaticQuizStore serves quizzes from an in-memory map and records history
// appends. Useful for tests and for running the server without Postgres.
type StaticQuizStore struct {
	mu        sync.RWMutex
	quizzes   map[string]domain.Quiz
	questions map[string][]domain.Question
	history   []domain.HistoryRecord
}

func NewStaticQuizStore() *StaticQuizStore {
	return &StaticQuizStore{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string][]domain.Question),
	}
}

// AddQuiz registers a quiz and its ordered question list.
func (s *StaticQuizStore) AddQuiz(quiz domain.Quiz, questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	s.questions[quiz.ID] = questions
}

func (s *StaticQuizStore) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *StaticQuizStore) GetQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[quizID]
	if !ok {
		return nil, domain.ErrQuizNotFound
	}
	return questions, nil
}

func (s *StaticQuizStore) AppendHistory(_ context.Context, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

// History returns a copy of the appended records, for assertions.
func (s *StaticQuizStore) History() []domain.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.HistoryRecord(nil), s.history...)
}

// CachedQuizStore caches quiz metadata and question lists with TTL to avoid
// repeated hits on the backing store. History appends pass straight through.
type CachedQuizStore struct {
	inner app.QuizStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu        sync.RWMutex
	quizzes   map[string]cachedQuiz
	questions map[string]cachedQuestions
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedQuizStore(inner app.QuizStore, ttl time.Duration) *CachedQuizStore {
	return &CachedQuizStore{
		inner:     inner,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes:   make(map[string]cachedQuiz),
		questions: make(map[string]cachedQuestions),
	}
}

func (c *CachedQuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.quizzes[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.quiz, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("quiz:"+quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.quizzes[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.quiz, nil
		}
		c.mu.RUnlock()

		quiz, err := c.inner.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		c.quizzes[quizID] = cachedQuiz{quiz: quiz, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *CachedQuizStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.questions[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("questions:"+quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.questions[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.inner.GetQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.questions[quizID] = cachedQuestions{questions: questions, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *CachedQuizStore) AppendHistory(ctx context.Context, rec domain.HistoryRecord) error {
	return c.inner.AppendHistory(ctx, rec)
}

func (c *CachedQuizStore) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
