package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session is registered under a PIN.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz metadata could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions is returned when a start is refused because the quiz has no questions.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrNotHost rejects host-only actions issued by other connections.
	ErrNotHost = errors.New("connection is not the session host")
	// ErrAlreadyStarted rejects a second start on a running or finished session.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionNotActive rejects advances outside the active state.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionFinished rejects joins to a finished session.
	ErrSessionFinished = errors.New("session is finished")
	// ErrAnswerClosed marks a submission outside the question window; callers discard it.
	ErrAnswerClosed = errors.New("not accepting answers")
	// ErrPlayerNotFound marks a submission from a connection that never joined.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrAlreadyAnswered marks a duplicate submission for the current question.
	ErrAlreadyAnswered = errors.New("player already answered this question")
	// ErrNoFreePIN is returned when PIN generation keeps colliding with live sessions.
	ErrNoFreePIN = errors.New("no free session PIN available")
)
