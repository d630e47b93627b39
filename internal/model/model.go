package model

import (
	"encoding/json"
	"strings"
	"time"
)

// QuestionType determines how an answer to the question is scored.
type QuestionType string

const (
	// TypeMultipleChoice questions are scored by exact option-key match.
	TypeMultipleChoice QuestionType = "multiple_choice"
	// TypeFillIn questions are scored by normalized text match against the key.
	TypeFillIn QuestionType = "fill_in"
	// TypeOpenEnded questions are scored by the external judgment service.
	TypeOpenEnded QuestionType = "open_ended"
)

// SessionStatus represents the lifecycle state of an assessment session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// AssessmentType determines how many questions a session may serve.
type AssessmentType string

const (
	// AssessmentQuick is a short 8-question check.
	AssessmentQuick AssessmentType = "quick"
	// AssessmentDiagnostic is a 15-question placement run.
	AssessmentDiagnostic AssessmentType = "diagnostic"
	// AssessmentStandard is a full adaptive session, capped at 25 questions.
	AssessmentStandard AssessmentType = "standard"
)

// MaxQuestions returns the question cap for the assessment type.
// Unknown types fall back to the standard cap.
func (t AssessmentType) MaxQuestions() int {
	switch t {
	case AssessmentQuick:
		return 8
	case AssessmentDiagnostic:
		return 15
	default:
		return 25
	}
}

// Valid reports whether the assessment type is one of the known types.
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentQuick, AssessmentDiagnostic, AssessmentStandard:
		return true
	}
	return false
}

// Option is a single multiple-choice option with bilingual text.
type Option struct {
	Key    string `json:"key"`
	Text   string `json:"text"`
	TextRu string `json:"text_ru,omitempty"`
}

// Question represents one item from the question bank. The engine only
// reads questions; authoring and tagging live outside it.
type Question struct {
	ID         int64        `json:"id"`
	Subject    string       `json:"subject"`
	GradeLevel int          `json:"grade_level"`
	Topic      string       `json:"topic"`
	Subtopic   string       `json:"subtopic,omitempty"`
	Difficulty float64      `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Text       string       `json:"text"`
	TextRu     string       `json:"text_ru,omitempty"`
	Options    []Option     `json:"options,omitempty"`
	// AnswerKey is the correct option key for multiple choice, or a
	// pipe-separated list of acceptable answers for fill-in.
	AnswerKey string   `json:"answer_key,omitempty"`
	Rubric    string   `json:"rubric,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Session represents one adaptive assessment run.
type Session struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	GradeLevel     int            `json:"grade_level"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Status         SessionStatus  `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// Answer is one scored response in a session's append-only log. The ordered
// answer log is the sole source of truth for adaptive state: nothing the
// engine decides may depend on state that cannot be rebuilt from it.
type Answer struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	QuestionID int64  `json:"question_id"`
	// Ordinal is the 1-based position of this answer within the session.
	Ordinal   int    `json:"ordinal"`
	RawAnswer string `json:"raw_answer"`
	// IsCorrect and Score are nil while judgment is pending for an
	// open-ended answer.
	IsCorrect *bool    `json:"is_correct"`
	Score     *float64 `json:"score"`
	// Difficulty is the difficulty of the question at the time it was asked.
	Difficulty       float64   `json:"difficulty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	JudgeFeedback    *string   `json:"judge_feedback,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Report is the persisted two-phase session report.
type Report struct {
	SessionID string       `json:"session_id"`
	Stats     SessionStats `json:"stats"`
	// Narrative is nil until phase 2 completes or falls back.
	Narrative  *string   `json:"narrative"`
	ShareToken string    `json:"share_token"`
	CreatedAt  time.Time `json:"created_at"`
}

// TopicStat holds per-topic accuracy for the report.
type TopicStat struct {
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// SessionStats is the deterministic phase-1 report content.
type SessionStats struct {
	TotalQuestions  int                  `json:"total_questions"`
	ScoredQuestions int                  `json:"scored_questions"`
	CorrectAnswers  int                  `json:"correct_answers"`
	Accuracy        float64              `json:"accuracy"`
	Ability         float64              `json:"ability"`
	AbilityBand     string               `json:"ability_band"`
	DisplayScore    int                  `json:"display_score"`
	GradeEquivalent int                  `json:"grade_equivalent"`
	Percentile      int                  `json:"percentile"`
	Topics          map[string]TopicStat `json:"topics"`
	WeakTopics      []string             `json:"weak_topics,omitempty"`
	StrongTopics    []string             `json:"strong_topics,omitempty"`
	TotalSeconds    int                  `json:"total_seconds"`
	AvgSeconds      float64              `json:"avg_seconds"`
}

// PayloadKind tags the shape of a parsed answer payload.
type PayloadKind int

const (
	// PayloadSelected is a multiple-choice option selection.
	PayloadSelected PayloadKind = iota
	// PayloadFreeText is free text for fill-in and open-ended questions.
	PayloadFreeText
	// PayloadEmpty is a missing or blank answer.
	PayloadEmpty
)

// AnswerPayload is the normalized form of a raw answer submission. Raw
// answers arrive either as a bare string or as a JSON object carrying a
// "selected" or "text" field; the shape is resolved once on ingress.
type AnswerPayload struct {
	Kind     PayloadKind
	Selected string
	Text     string
}

// ParseAnswerPayload normalizes a raw answer submission.
func ParseAnswerPayload(raw string) AnswerPayload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AnswerPayload{Kind: PayloadEmpty}
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Selected string `json:"selected"`
			Text     string `json:"text"`
		}
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			if s := strings.TrimSpace(obj.Selected); s != "" {
				return AnswerPayload{Kind: PayloadSelected, Selected: s, Text: s}
			}
			if s := strings.TrimSpace(obj.Text); s != "" {
				return AnswerPayload{Kind: PayloadFreeText, Text: s}
			}
			return AnswerPayload{Kind: PayloadEmpty}
		}
	}

	// A bare string can be either a selection key or free text; the scorer
	// decides which reading applies based on the question type.
	return AnswerPayload{Kind: PayloadFreeText, Selected: trimmed, Text: trimmed}
}

// QuestionImport is the JSON shape for loading questions from files.
type QuestionImport struct {
	Subject    string       `json:"subject"`
	GradeLevel int          `json:"grade_level"`
	Topic      string       `json:"topic"`
	Subtopic   string       `json:"subtopic"`
	Difficulty float64      `json:"difficulty"`
	Type       QuestionType `json:"type"`
	Text       string       `json:"text"`
	TextRu     string       `json:"text_ru"`
	Options    []Option     `json:"options"`
	AnswerKey  string       `json:"answer_key"`
	Rubric     string       `json:"rubric"`
	Tags       []string     `json:"tags"`
}
