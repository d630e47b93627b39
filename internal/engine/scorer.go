package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/brightpath/assess/internal/model"
)

// ScoreResult is the outcome of scoring one answer. IsCorrect and Score are
// nil when the question requires external judgment.
type ScoreResult struct {
	IsCorrect *bool
	Score     *float64
	Feedback  *string
}

func scored(correct bool, score float64) ScoreResult {
	return ScoreResult{IsCorrect: &correct, Score: &score}
}

// deferred signals that judgment must be delegated to the external evaluator.
func deferred() ScoreResult {
	return ScoreResult{}
}

// Score evaluates one answer against one question using the strategy for the
// question's type. Open-ended questions return a deferral; everything else is
// scored deterministically. An empty answer is always incorrect with score 0,
// regardless of type.
func Score(q model.Question, payload model.AnswerPayload) ScoreResult {
	if payload.Kind == model.PayloadEmpty {
		return scored(false, 0)
	}

	switch q.Type {
	case model.TypeMultipleChoice:
		return scoreMultipleChoice(q, payload)
	case model.TypeFillIn:
		return scoreFillIn(q, payload)
	default:
		return deferred()
	}
}

func scoreMultipleChoice(q model.Question, payload model.AnswerPayload) ScoreResult {
	selected := payload.Selected
	if selected == "" {
		selected = payload.Text
	}
	if strings.EqualFold(strings.TrimSpace(selected), strings.TrimSpace(q.AnswerKey)) {
		return scored(true, 1)
	}
	return scored(false, 0)
}

func scoreFillIn(q model.Question, payload model.AnswerPayload) ScoreResult {
	given := normalizeText(payload.Text)
	for _, alt := range strings.Split(q.AnswerKey, "|") {
		if given == normalizeText(alt) {
			return scored(true, 1)
		}
	}
	return scored(false, 0)
}

// normalizeText lower-cases and collapses all interior whitespace runs.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// FallbackScore grades an open-ended answer by length when the judgment
// service is unavailable. It exists so a session can always complete even
// when the evaluator is degraded.
func FallbackScore(text string) ScoreResult {
	switch n := utf8.RuneCountInString(strings.TrimSpace(text)); {
	case n == 0:
		return scored(false, 0)
	case n < 10:
		return scored(false, 0.2)
	case n < 50:
		return scored(true, 0.5)
	default:
		return scored(true, 0.6)
	}
}
