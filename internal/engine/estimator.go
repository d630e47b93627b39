package engine

const (
	abilityWindow = 5
	// wrongPenalty reflects that an incorrect answer at a given difficulty
	// implies true ability somewhat below that difficulty.
	wrongPenalty = 0.15
)

// EstimateAbility derives a single ability scalar in [0, 1] from the
// difficulty/correctness history. Only the last five answers are considered,
// weighted linearly so the most recent answer counts the most. A correct
// answer contributes the difficulty it was answered at; an incorrect answer
// contributes that difficulty minus a fixed penalty, floored at 0. With no
// history the estimate defaults to the neutral 0.5.
func EstimateAbility(difficulties []float64, correctness []bool) float64 {
	n := len(difficulties)
	if n == 0 || n != len(correctness) {
		return startDifficulty
	}

	start := n - abilityWindow
	if start < 0 {
		start = 0
	}

	var sum, weights float64
	for i, j := start, 1; i < n; i, j = i+1, j+1 {
		contribution := difficulties[i]
		if !correctness[i] {
			contribution -= wrongPenalty
			if contribution < 0 {
				contribution = 0
			}
		}
		sum += contribution * float64(j)
		weights += float64(j)
	}
	return sum / weights
}
