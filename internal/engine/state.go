package engine

import "github.com/brightpath/assess/internal/model"

// CATState is the engine's working state for one session. It is derived,
// never persisted: Replay rebuilds it from the answer log on every call, so
// the controller survives restarts and runs safely across instances.
type CATState struct {
	CurrentDifficulty   float64
	ConsecutiveCorrect  int
	ConsecutiveWrong    int
	AnsweredQuestionIDs map[int64]bool
	DifficultyHistory   []float64
	CorrectnessHistory  []bool
	// TargetHistory records each adapter output, in order. The stopping
	// rule's convergence check reads the tail of this list.
	TargetHistory []float64
	QuestionCount int
}

// Replay folds a session's answer log, in ordinal order, into the CAT state
// the controller uses to pick the next question. It is a pure function of
// the log: replaying the same answers always reproduces the same state.
func Replay(answers []model.Answer) CATState {
	st := CATState{
		CurrentDifficulty:   startDifficulty,
		AnsweredQuestionIDs: make(map[int64]bool, len(answers)),
	}
	for _, a := range answers {
		// Pending judgment counts as correct for difficulty progression.
		correct := a.IsCorrect == nil || *a.IsCorrect

		if correct {
			st.ConsecutiveCorrect++
			st.ConsecutiveWrong = 0
		} else {
			st.ConsecutiveWrong++
			st.ConsecutiveCorrect = 0
		}

		st.AnsweredQuestionIDs[a.QuestionID] = true
		st.DifficultyHistory = append(st.DifficultyHistory, a.Difficulty)
		st.CorrectnessHistory = append(st.CorrectnessHistory, correct)
		st.QuestionCount++

		st.CurrentDifficulty = NextDifficulty(a.Difficulty, correct, st.ConsecutiveCorrect, st.ConsecutiveWrong)
		st.TargetHistory = append(st.TargetHistory, st.CurrentDifficulty)
	}
	return st
}
