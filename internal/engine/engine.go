package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightpath/assess/internal/llm"
	"github.com/brightpath/assess/internal/model"
	"github.com/brightpath/assess/internal/report"
	"github.com/brightpath/assess/internal/store"
)

// Judge evaluates an open-ended answer against a question and its rubric.
// Implementations are expected to respect the context deadline.
type Judge interface {
	Evaluate(ctx context.Context, q model.Question, studentText string) (*llm.Judgment, error)
}

// Engine is the session controller for adaptive assessments. All
// collaborators are injected at construction; the engine itself holds no
// session state between calls.
type Engine struct {
	store   *store.Store
	judge   Judge
	reports *report.Pipeline

	judgeTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the session controller. judge may be nil, in which case
// open-ended answers stay unscored until out-of-band evaluation.
func New(s *store.Store, judge Judge, reports *report.Pipeline, judgeTimeout time.Duration) *Engine {
	if judgeTimeout <= 0 {
		judgeTimeout = 20 * time.Second
	}
	return &Engine{
		store:        s,
		judge:        judge,
		reports:      reports,
		judgeTimeout: judgeTimeout,
		locks:        make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing submissions for one session.
// Ordinals are derived from the count of prior answers, so concurrent
// double-submission must not interleave.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// StartResult is returned by Start.
type StartResult struct {
	Session        model.Session  `json:"session"`
	FirstQuestion  model.Question `json:"first_question"`
	TotalQuestions int            `json:"total_questions"`
}

// Start creates a session and selects the first question at the neutral
// difficulty prior.
func (e *Engine) Start(ctx context.Context, typ model.AssessmentType, subject string, grade int) (*StartResult, error) {
	if !typ.Valid() {
		typ = model.AssessmentStandard
	}

	sess := model.Session{
		ID:             uuid.NewString(),
		Subject:        subject,
		GradeLevel:     grade,
		AssessmentType: typ,
		Status:         model.StatusInProgress,
		StartedAt:      time.Now(),
	}

	first, err := e.pickNext(sess, startDifficulty, nil, nil)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, ErrNoQuestions
	}

	if err := e.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("session started",
		"session_id", sess.ID,
		"type", typ,
		"subject", subject,
		"grade", grade,
		"first_question", first.ID,
	)

	return &StartResult{
		Session:        sess,
		FirstQuestion:  *first,
		TotalQuestions: typ.MaxQuestions(),
	}, nil
}

// Progress reports how far along a session is.
type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// SubmitResult is returned by SubmitAnswer. IsCorrect and Score are nil when
// judgment on an open-ended answer is still pending.
type SubmitResult struct {
	IsCorrect    *bool           `json:"is_correct"`
	Score        *float64        `json:"score"`
	Feedback     *string         `json:"feedback,omitempty"`
	NextQuestion *model.Question `json:"next_question"`
	Progress     Progress        `json:"progress"`
	IsLast       bool            `json:"is_last"`
}

// SubmitAnswer scores one answer, appends it to the session's log, rebuilds
// the adaptive state from the full log, and either serves the next question
// or declares the session finished. State is never cached across calls: the
// persisted answer log alone determines every decision, so a controller on
// any instance resumes a session identically.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID string, questionID int64, rawAnswer string, timeSpentSeconds int) (*SubmitResult, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusInProgress {
		return nil, ErrSessionNotActive
	}

	q, err := e.store.GetQuestion(questionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	payload := model.ParseAnswerPayload(rawAnswer)
	result := Score(q, payload)
	if result.IsCorrect == nil {
		result = e.judgeAnswer(ctx, q, payload)
	}

	answer := model.Answer{
		SessionID:        sessionID,
		QuestionID:       questionID,
		RawAnswer:        rawAnswer,
		IsCorrect:        result.IsCorrect,
		Score:            result.Score,
		Difficulty:       q.Difficulty,
		TimeSpentSeconds: timeSpentSeconds,
		JudgeFeedback:    result.Feedback,
	}
	if _, err := e.store.AppendAnswer(answer); err != nil {
		return nil, fmt.Errorf("append answer: %w", err)
	}

	answers, err := e.store.ListAnswers(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	st := Replay(answers)

	res := &SubmitResult{
		IsCorrect: result.IsCorrect,
		Score:     result.Score,
		Feedback:  result.Feedback,
		Progress: Progress{
			Answered: st.QuestionCount,
			Total:    sess.AssessmentType.MaxQuestions(),
		},
	}

	if e.isDone(sess, st) {
		res.IsLast = true
		return res, nil
	}

	topicCounts, err := e.store.TopicCounts(sessionID)
	if err != nil {
		return nil, fmt.Errorf("topic counts: %w", err)
	}
	next, err := e.pickNext(sess, st.CurrentDifficulty, st.AnsweredQuestionIDs, topicCounts)
	if err != nil {
		return nil, err
	}
	if next == nil {
		// Candidate pool exhausted: the session ends regardless of the
		// stopping rule's floor.
		res.IsLast = true
		return res, nil
	}

	res.NextQuestion = next
	return res, nil
}

// isDone reports whether the session has reached its end: the assessment
// type's question cap, or the adaptive stopping rule.
func (e *Engine) isDone(sess model.Session, st CATState) bool {
	if st.QuestionCount >= sess.AssessmentType.MaxQuestions() {
		return true
	}
	return ShouldStop(st.QuestionCount, st.TargetHistory)
}

// judgeAnswer delegates an open-ended answer to the judgment service within
// a bounded timeout. Any failure is absorbed by the length heuristic so the
// session always progresses; with no judge configured at all, the answer
// stays unscored for out-of-band evaluation.
func (e *Engine) judgeAnswer(ctx context.Context, q model.Question, payload model.AnswerPayload) ScoreResult {
	if e.judge == nil {
		return deferred()
	}

	jctx, cancel := context.WithTimeout(ctx, e.judgeTimeout)
	defer cancel()

	jr, err := e.judge.Evaluate(jctx, q, payload.Text)
	if err != nil {
		slog.Warn("judgment unavailable, using length fallback",
			"question_id", q.ID, "error", err)
		return FallbackScore(payload.Text)
	}

	res := scored(jr.IsCorrect, clamp01(jr.Score))
	feedback := jr.FeedbackPrimary
	if jr.FeedbackSecondary != "" {
		feedback += "\n" + jr.FeedbackSecondary
	}
	if feedback != "" {
		res.Feedback = &feedback
	}
	return res
}

// pickNext runs the item selector over a ladder of progressively broader
// candidate pools: the session's subject and grade, then adjacent grades,
// then the whole bank.
func (e *Engine) pickNext(sess model.Session, target float64, exclude map[int64]bool, topicCounts map[string]int) (*model.Question, error) {
	pools := []func() ([]model.Question, error){
		func() ([]model.Question, error) {
			return e.store.Candidates(sess.Subject, []int{sess.GradeLevel})
		},
		func() ([]model.Question, error) {
			return e.store.Candidates(sess.Subject, []int{sess.GradeLevel - 1, sess.GradeLevel + 1})
		},
		e.store.AllQuestions,
	}

	for _, fetch := range pools {
		candidates, err := fetch()
		if err != nil {
			return nil, fmt.Errorf("fetch candidates: %w", err)
		}
		if q := SelectQuestion(candidates, target, exclude, topicCounts); q != nil {
			return q, nil
		}
	}
	return nil, nil
}

// CompleteResult is returned by Complete.
type CompleteResult struct {
	Session model.Session `json:"session"`
	Report  model.Report  `json:"report"`
}

// Complete finalizes a session: it computes the deterministic statistics,
// stores the report with a share token, marks the session completed, and
// schedules the narrative enrichment in the background. Completing an
// already-completed session returns the stored report. The call never waits
// on the narrative service.
func (e *Engine) Complete(ctx context.Context, sessionID string) (*CompleteResult, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Status == model.StatusCompleted {
		rep, err := e.store.GetReport(sessionID)
		if err != nil {
			return nil, fmt.Errorf("get report: %w", err)
		}
		if rep == nil {
			return nil, ErrNoAnswersYet
		}
		return &CompleteResult{Session: sess, Report: *rep}, nil
	}

	answers, err := e.store.ListAnswers(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	if len(answers) == 0 {
		return nil, ErrNoAnswersYet
	}

	topics, err := e.store.AnswerTopics(sessionID)
	if err != nil {
		return nil, fmt.Errorf("answer topics: %w", err)
	}

	st := Replay(answers)
	stats := report.BuildStats(sess, answers, topics,
		EstimateAbility(st.DifficultyHistory, st.CorrectnessHistory))

	rep, err := e.store.SaveReport(sessionID, stats)
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	now := time.Now()
	if err := e.store.CompleteSession(sessionID, now); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	sess.Status = model.StatusCompleted
	sess.CompletedAt = &now

	slog.Info("session completed",
		"session_id", sessionID,
		"questions", stats.TotalQuestions,
		"accuracy", stats.Accuracy,
		"ability", stats.Ability,
	)

	// Phase 2 runs detached: its failures never reach this caller.
	if e.reports != nil {
		e.reports.EnrichAsync(sessionID, stats)
	}

	return &CompleteResult{Session: sess, Report: *rep}, nil
}

func (e *Engine) getSession(sessionID string) (model.Session, error) {
	sess, err := e.store.GetSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}
