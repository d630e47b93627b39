package engine

import "errors"

// Caller-visible errors. External-service failures (judgment, narrative) are
// never surfaced; they are absorbed with deterministic fallbacks.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session is not in progress")
	ErrQuestionNotFound = errors.New("question not found")
	ErrNoAnswersYet     = errors.New("session has no answers")
	ErrNoQuestions      = errors.New("no questions available")
)
