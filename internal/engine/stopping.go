package engine

import "math"

const (
	// stopFloor is the minimum number of answers before an early stop.
	stopFloor = 15
	// stopCeiling is the unconditional stop point.
	stopCeiling = 25
	// convergenceWindow and convergenceStdev define the settled-trajectory
	// early stop between floor and ceiling.
	convergenceWindow = 5
	convergenceStdev  = 0.05
)

// ShouldStop decides whether the adaptive session should terminate based on
// the answer count and the recent target-difficulty trajectory. Between the
// floor and the ceiling, a near-flat trajectory means the process has settled
// near the examinee's ability and further questions add little information.
func ShouldStop(totalAnswered int, recentTargets []float64) bool {
	if totalAnswered >= stopCeiling {
		return true
	}
	if totalAnswered < stopFloor {
		return false
	}
	if len(recentTargets) < convergenceWindow {
		return false
	}
	window := recentTargets[len(recentTargets)-convergenceWindow:]
	return sampleStdev(window) < convergenceStdev
}

func sampleStdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
