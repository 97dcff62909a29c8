package app

import (
	"context"
	"log"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

const historyTimeout = 10 * time.Second

// buildLeaderboard ranks players by descending score. The sort is stable so
// players with equal scores keep their join order.
func buildLeaderboard(players []*domain.Player) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// persistHistory appends one history row per identified player and one for
// the host. It runs after the game-over broadcast and is best-effort: every
// failure is logged and swallowed so persistence can never affect the
// player-facing outcome.
func (g *GameService) persistHistory(quizID, hostUserID string, players []domain.Player) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	title := "Quiz"
	if quiz, err := g.quizzes.GetQuiz(ctx, quizID); err == nil && quiz.Title != "" {
		title = quiz.Title
	} else if err != nil {
		log.Printf("history: resolve title for quiz %s: %v", quizID, err)
	}

	now := g.now()
	for _, p := range players {
		if p.ExternalUserID == "" {
			continue
		}
		rec := domain.HistoryRecord{
			UserID:     p.ExternalUserID,
			QuizTitle:  title,
			Role:       domain.RolePlayer,
			Score:      p.Score,
			RecordedAt: now,
		}
		if err := g.quizzes.AppendHistory(ctx, rec); err != nil {
			log.Printf("history: append for player %s: %v", p.ExternalUserID, err)
		}
	}
	if hostUserID != "" {
		rec := domain.HistoryRecord{
			UserID:     hostUserID,
			QuizTitle:  title,
			Role:       domain.RoleHost,
			Score:      0,
			RecordedAt: now,
		}
		if err := g.quizzes.AppendHistory(ctx, rec); err != nil {
			log.Printf("history: append for host %s: %v", hostUserID, err)
		}
	}
}
