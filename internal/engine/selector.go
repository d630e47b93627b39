package engine

import (
	"math"
	"sort"

	"github.com/brightpath/assess/internal/model"
)

const (
	// difficultyWindow is the tolerance band around the target difficulty.
	difficultyWindow = 0.2
	// widenedPoolSize is how many nearest candidates to keep when nothing
	// falls inside the window.
	widenedPoolSize = 5
)

// SelectQuestion picks the next question from the candidate pool, or nil if
// the pool is exhausted (which ends the session). Selection order: drop
// already-answered questions, keep candidates within the difficulty window
// (widening to the nearest few when the window is empty), prefer
// under-covered topics, then take the candidate closest to the target.
// Remaining ties keep pool order.
func SelectQuestion(candidates []model.Question, target float64, exclude map[int64]bool, topicCounts map[string]int) *model.Question {
	pool := make([]model.Question, 0, len(candidates))
	for _, q := range candidates {
		if !exclude[q.ID] {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	inWindow := make([]model.Question, 0, len(pool))
	for _, q := range pool {
		if math.Abs(q.Difficulty-target) <= difficultyWindow {
			inWindow = append(inWindow, q)
		}
	}
	if len(inWindow) == 0 {
		inWindow = nearest(pool, target, widenedPoolSize)
	}

	if len(topicCounts) > 0 {
		if balanced := underCoveredTopics(inWindow, topicCounts); len(balanced) > 0 {
			inWindow = balanced
		}
	}

	best := inWindow[0]
	bestDist := math.Abs(best.Difficulty - target)
	for _, q := range inWindow[1:] {
		if d := math.Abs(q.Difficulty - target); d < bestDist {
			best, bestDist = q, d
		}
	}
	return &best
}

// nearest returns up to n candidates with the smallest absolute distance to
// the target, preserving pool order among equals.
func nearest(pool []model.Question, target float64, n int) []model.Question {
	sorted := make([]model.Question, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Difficulty-target) < math.Abs(sorted[j].Difficulty-target)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// underCoveredTopics keeps candidates whose topic is at the minimum observed
// coverage count, so several equally eligible topics get sampled evenly.
func underCoveredTopics(pool []model.Question, topicCounts map[string]int) []model.Question {
	minCount := math.MaxInt
	for _, q := range pool {
		if c := topicCounts[q.Topic]; c < minCount {
			minCount = c
		}
	}
	var kept []model.Question
	for _, q := range pool {
		if topicCounts[q.Topic] <= minCount {
			kept = append(kept, q)
		}
	}
	return kept
}
