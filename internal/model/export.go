package model

import "time"

// ReportExport is the top-level JSON structure for report export.
type ReportExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionResult `json:"sessions"`
}

// SessionResult pairs a completed session with its report and answer log.
type SessionResult struct {
	Session Session      `json:"session"`
	Report  Report       `json:"report"`
	Answers []AnswerLine `json:"answers"`
}

// AnswerLine is one answer in an exported session.
type AnswerLine struct {
	Ordinal       int      `json:"ordinal"`
	QuestionID    int64    `json:"question_id"`
	Topic         string   `json:"topic"`
	Difficulty    float64  `json:"difficulty"`
	IsCorrect     *bool    `json:"is_correct"`
	Score         *float64 `json:"score"`
	TimeSpent     int      `json:"time_spent_seconds"`
	JudgeFeedback *string  `json:"judge_feedback,omitempty"`
}
