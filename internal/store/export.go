package store

import (
	"fmt"
	"time"

	"github.com/brightpath/assess/internal/model"
)

// ExportReports builds export-ready results for all completed sessions that
// have a report.
func (s *Store) ExportReports() (*model.ReportExport, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	export := &model.ReportExport{ExportedAt: time.Now()}
	for _, sess := range sessions {
		if sess.Status != model.StatusCompleted {
			continue
		}
		rep, err := s.GetReport(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("get report for %s: %w", sess.ID, err)
		}
		if rep == nil {
			continue
		}

		answers, err := s.ListAnswers(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers for %s: %w", sess.ID, err)
		}
		topics, err := s.AnswerTopics(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("answer topics for %s: %w", sess.ID, err)
		}

		var lines []model.AnswerLine
		for _, a := range answers {
			lines = append(lines, model.AnswerLine{
				Ordinal:       a.Ordinal,
				QuestionID:    a.QuestionID,
				Topic:         topics[a.QuestionID],
				Difficulty:    a.Difficulty,
				IsCorrect:     a.IsCorrect,
				Score:         a.Score,
				TimeSpent:     a.TimeSpentSeconds,
				JudgeFeedback: a.JudgeFeedback,
			})
		}

		export.Sessions = append(export.Sessions, model.SessionResult{
			Session: sess,
			Report:  *rep,
			Answers: lines,
		})
	}

	return export, nil
}
