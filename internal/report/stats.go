package report

import (
	"sort"

	"github.com/brightpath/assess/internal/model"
)

const (
	weakThreshold   = 0.5
	strongThreshold = 0.75
	// minTopicAttempts guards the weak/strong labels against one-off topics.
	minTopicAttempts = 2
)

// band maps an ability estimate to its display attributes. The five fixed
// bands split [0, 1] into 0.2-wide ranges; grade equivalents are offsets
// from the session's enrolled grade.
type band struct {
	msgID       string
	gradeOffset int
	percentile  int
}

var bands = []band{
	{"band.below_grade", -1, 15},
	{"band.approaching_grade", 0, 35},
	{"band.at_grade", 0, 55},
	{"band.above_grade", 1, 80},
	{"band.advanced", 2, 95},
}

func bandFor(ability float64) band {
	idx := int(ability / 0.2)
	if idx >= len(bands) {
		idx = len(bands) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return bands[idx]
}

// DisplayScore maps an ability estimate to the 0-100 scale shown to users.
func DisplayScore(ability float64) int {
	return int(ability * 100)
}

// BuildStats computes the deterministic phase-1 statistics for a completed
// session. topics maps each answered question ID to its topic. Only answers
// with known correctness count toward accuracy; answers awaiting judgment
// are still included in the question total and time figures.
func BuildStats(sess model.Session, answers []model.Answer, topics map[int64]string, ability float64) model.SessionStats {
	stats := model.SessionStats{
		TotalQuestions: len(answers),
		Topics:         make(map[string]model.TopicStat),
	}

	for _, a := range answers {
		stats.TotalSeconds += a.TimeSpentSeconds
		if a.IsCorrect == nil {
			continue
		}
		stats.ScoredQuestions++
		correct := *a.IsCorrect
		if correct {
			stats.CorrectAnswers++
		}

		topic := topics[a.QuestionID]
		if topic == "" {
			continue
		}
		ts := stats.Topics[topic]
		ts.Attempted++
		if correct {
			ts.Correct++
		}
		stats.Topics[topic] = ts
	}

	if stats.ScoredQuestions > 0 {
		stats.Accuracy = float64(stats.CorrectAnswers) / float64(stats.ScoredQuestions)
	}
	if stats.TotalQuestions > 0 {
		stats.AvgSeconds = float64(stats.TotalSeconds) / float64(stats.TotalQuestions)
	}

	for topic, ts := range stats.Topics {
		ts.Accuracy = float64(ts.Correct) / float64(ts.Attempted)
		stats.Topics[topic] = ts

		if ts.Attempted < minTopicAttempts {
			continue
		}
		switch {
		case ts.Accuracy < weakThreshold:
			stats.WeakTopics = append(stats.WeakTopics, topic)
		case ts.Accuracy >= strongThreshold:
			stats.StrongTopics = append(stats.StrongTopics, topic)
		}
	}
	sort.Strings(stats.WeakTopics)
	sort.Strings(stats.StrongTopics)

	b := bandFor(ability)
	stats.Ability = ability
	stats.AbilityBand = b.msgID
	stats.DisplayScore = DisplayScore(ability)
	stats.GradeEquivalent = sess.GradeLevel + b.gradeOffset
	stats.Percentile = b.percentile

	return stats
}
