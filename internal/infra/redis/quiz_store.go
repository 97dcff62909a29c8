package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// QuizStore caches quiz metadata and question snapshots in Redis and falls
// back to the inner store on cache miss.
// Keys:
//
//	SET quiz:{quizID}:meta      {json Quiz}
//	SET quiz:{quizID}:questions {json []Question}
//
// History appends bypass the cache and go straight to the inner store.
type QuizStore struct {
	client *redis.Client
	inner  app.QuizStore
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizStore(client *redis.Client, inner app.QuizStore, ttl time.Duration) *QuizStore {
	return &QuizStore{
		client: client,
		inner:  inner,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := s.metaKey(quizID)
	if raw, err := s.client.Get(ctx, key).Bytes(); err == nil {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
	}

	result, err, _ := s.sf.Do("meta:"+quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := s.client.Get(ctx, key).Bytes(); err == nil {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, err := s.inner.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if raw, err := json.Marshal(quiz); err == nil {
			_ = s.client.Set(ctx, key, raw, s.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (s *QuizStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	key := s.questionsKey(quizID)
	if raw, err := s.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil {
			return questions, nil
		}
	}

	result, err, _ := s.sf.Do("questions:"+quizID, func() (interface{}, error) {
		if raw, err := s.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(raw, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := s.inner.GetQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(questions); err == nil {
			_ = s.client.Set(ctx, key, raw, s.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *QuizStore) AppendHistory(ctx context.Context, rec domain.HistoryRecord) error {
	return s.inner.AppendHistory(ctx, rec)
}

func (s *QuizStore) metaKey(quizID string) string {
	return "quiz:" + quizID + ":meta"
}

func (s *QuizStore) questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (s *QuizStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
