package domain

import "time"

// SessionStatus tracks a live game through its lifecycle.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// History roles recorded when a game ends.
const (
	RolePlayer = "player"
	RoleHost   = "host"
)

// Quiz is the metadata of an externally-stored quiz definition.
type Quiz struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Question is an immutable snapshot of one quiz question, taken once at game
// start. CorrectIndices refer to positions in Options and are compared as an
// unordered set.
type Question struct {
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectIndices   []int    `json:"correctIndices"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	TimeLimitSeconds int      `json:"timeLimit"`
}

// Player is one participant in a session. The connection id belongs to the
// transport layer; the session only holds a reference to it.
type Player struct {
	ConnectionID   string `json:"-"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	ExternalUserID string `json:"-"`
}

// PlayerView is the wire shape used for player list updates.
type PlayerView struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// QuestionView is the wire shape of a presented question. Current is 1-based.
// Correct indices are never included.
type QuestionView struct {
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	ImageURL  string   `json:"image,omitempty"`
	Current   int      `json:"current"`
	Total     int      `json:"total"`
	TimeLimit int      `json:"timeLimit"`
}

// LeaderboardEntry is one row of the final ranking.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// HistoryRecord is the single durable write the orchestrator makes, one row
// per identified participant when a game finishes.
type HistoryRecord struct {
	UserID     string
	QuizTitle  string
	Role       string
	Score      int
	RecordedAt time.Time
}
