package engine

const (
	// startDifficulty is the neutral prior for the first question.
	startDifficulty = 0.5

	baseStep   = 0.15
	streakStep = 0.25
)

// NextDifficulty computes the next target difficulty after an answer.
// consecutiveCorrect and consecutiveWrong are the streak counters including
// the answer being applied; a same-direction streak of 2 or more widens the
// step to accelerate convergence. The result is clamped to [0, 1].
//
// Answers with pending judgment are treated as correct here. That keeps the
// session moving while true scoring happens out of band; it is a known
// approximation, not a claim about the answer.
func NextDifficulty(current float64, correct bool, consecutiveCorrect, consecutiveWrong int) float64 {
	step := baseStep
	if (correct && consecutiveCorrect >= 2) || (!correct && consecutiveWrong >= 2) {
		step = streakStep
	}
	if !correct {
		step = -step
	}
	return clamp01(current + step)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
