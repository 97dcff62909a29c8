package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuizStore loads quiz content from Postgres and appends game history.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var title string
	err := s.pool.QueryRow(ctx, `SELECT title FROM quizzes WHERE id=$1`, quizID).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	return domain.Quiz{ID: quizID, Title: title}, nil
}

func (s *QuizStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT text, options, correct_indices, COALESCE(image_url, ''), time_limit
		FROM questions
		WHERE quiz_id=$1
		ORDER BY position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions for quiz %s: %w", quizID, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q          domain.Question
			rawOptions []byte
			rawIndices []byte
		)
		if err := rows.Scan(&q.Text, &rawOptions, &rawIndices, &q.ImageURL, &q.TimeLimitSeconds); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		if err := json.Unmarshal(rawIndices, &q.CorrectIndices); err != nil {
			return nil, fmt.Errorf("unmarshal correct indices: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}

func (s *QuizStore) AppendHistory(ctx context.Context, rec domain.HistoryRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO history (user_id, quiz_title, role, score, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.UserID, rec.QuizTitle, rec.Role, rec.Score, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
