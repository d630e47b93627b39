package report

import (
	"math"
	"reflect"
	"testing"

	"github.com/brightpath/assess/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func scoredAnswer(qid int64, correct bool, seconds int) model.Answer {
	return model.Answer{QuestionID: qid, IsCorrect: boolPtr(correct), TimeSpentSeconds: seconds}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		ability float64
		msgID   string
	}{
		{0.0, "band.below_grade"},
		{0.19, "band.below_grade"},
		{0.2, "band.approaching_grade"},
		{0.45, "band.at_grade"},
		{0.65, "band.above_grade"},
		{0.85, "band.advanced"},
		{1.0, "band.advanced"},
	}
	for _, tt := range tests {
		if got := bandFor(tt.ability).msgID; got != tt.msgID {
			t.Errorf("bandFor(%v) = %q, want %q", tt.ability, got, tt.msgID)
		}
	}
}

func TestDisplayScore(t *testing.T) {
	if got := DisplayScore(0.458); got != 45 {
		t.Errorf("DisplayScore(0.458) = %d, want 45", got)
	}
	if got := DisplayScore(1.0); got != 100 {
		t.Errorf("DisplayScore(1.0) = %d, want 100", got)
	}
}

func TestBuildStatsBasics(t *testing.T) {
	sess := model.Session{GradeLevel: 4}
	answers := []model.Answer{
		scoredAnswer(1, true, 10),
		scoredAnswer(2, false, 20),
		scoredAnswer(3, true, 30),
	}
	topics := map[int64]string{1: "fractions", 2: "fractions", 3: "geometry"}

	stats := BuildStats(sess, answers, topics, 0.65)

	if stats.TotalQuestions != 3 || stats.ScoredQuestions != 3 || stats.CorrectAnswers != 2 {
		t.Errorf("counts = %d/%d/%d", stats.TotalQuestions, stats.ScoredQuestions, stats.CorrectAnswers)
	}
	if math.Abs(stats.Accuracy-2.0/3.0) > 1e-9 {
		t.Errorf("Accuracy = %v", stats.Accuracy)
	}
	if stats.TotalSeconds != 60 || stats.AvgSeconds != 20 {
		t.Errorf("time = %d / %v", stats.TotalSeconds, stats.AvgSeconds)
	}
	if stats.AbilityBand != "band.above_grade" || stats.GradeEquivalent != 5 || stats.Percentile != 80 {
		t.Errorf("band fields = %q/%d/%d", stats.AbilityBand, stats.GradeEquivalent, stats.Percentile)
	}
	if stats.DisplayScore != 65 {
		t.Errorf("DisplayScore = %d", stats.DisplayScore)
	}
}

func TestBuildStatsExcludesPendingFromAccuracy(t *testing.T) {
	answers := []model.Answer{
		scoredAnswer(1, true, 10),
		{QuestionID: 2, TimeSpentSeconds: 40},
	}
	stats := BuildStats(model.Session{GradeLevel: 3}, answers, nil, 0.5)

	if stats.TotalQuestions != 2 || stats.ScoredQuestions != 1 {
		t.Errorf("counts = %d/%d, want 2/1", stats.TotalQuestions, stats.ScoredQuestions)
	}
	if stats.Accuracy != 1.0 {
		t.Errorf("Accuracy = %v, want 1.0", stats.Accuracy)
	}
	// Pending answers still count toward time.
	if stats.TotalSeconds != 50 || stats.AvgSeconds != 25 {
		t.Errorf("time = %d / %v", stats.TotalSeconds, stats.AvgSeconds)
	}
}

func TestBuildStatsWeakAndStrongTopics(t *testing.T) {
	answers := []model.Answer{
		scoredAnswer(1, false, 0),
		scoredAnswer(2, false, 0),
		scoredAnswer(3, true, 0),
		scoredAnswer(4, true, 0),
		scoredAnswer(5, false, 0), // single attempt, below threshold for labels
	}
	topics := map[int64]string{
		1: "fractions", 2: "fractions",
		3: "geometry", 4: "geometry",
		5: "measurement",
	}
	stats := BuildStats(model.Session{GradeLevel: 4}, answers, topics, 0.5)

	if !reflect.DeepEqual(stats.WeakTopics, []string{"fractions"}) {
		t.Errorf("WeakTopics = %v", stats.WeakTopics)
	}
	if !reflect.DeepEqual(stats.StrongTopics, []string{"geometry"}) {
		t.Errorf("StrongTopics = %v", stats.StrongTopics)
	}
	if ts := stats.Topics["measurement"]; ts.Attempted != 1 || ts.Accuracy != 0 {
		t.Errorf("measurement stat = %+v", ts)
	}
}

func TestBuildStatsEmpty(t *testing.T) {
	stats := BuildStats(model.Session{GradeLevel: 2}, nil, nil, 0.5)
	if stats.TotalQuestions != 0 || stats.Accuracy != 0 || stats.AvgSeconds != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AbilityBand != "band.at_grade" {
		t.Errorf("AbilityBand = %q", stats.AbilityBand)
	}
}
