package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/brightpath/assess/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, subject string, grade int, topic string, difficulty float64) int64 {
	t.Helper()
	id, err := s.InsertQuestion(model.Question{
		Subject:    subject,
		GradeLevel: grade,
		Topic:      topic,
		Difficulty: difficulty,
		Type:       model.TypeMultipleChoice,
		Text:       "question about " + topic,
		Options:    []model.Option{{Key: "a", Text: "first"}, {Key: "b", Text: "second"}},
		AnswerKey:  "a",
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func createTestSession(t *testing.T, s *Store, id string) model.Session {
	t.Helper()
	sess := model.Session{
		ID:             id,
		Subject:        "math",
		GradeLevel:     4,
		AssessmentType: model.AssessmentStandard,
		Status:         model.StatusInProgress,
		StartedAt:      time.Now().Truncate(time.Second),
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("createTestSession: %v", err)
	}
	return sess
}

func TestQuestionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("empty bank count = %d", count)
	}

	in := model.Question{
		Subject:    "math",
		GradeLevel: 4,
		Topic:      "fractions",
		Subtopic:   "equivalent fractions",
		Difficulty: 0.45,
		Type:       model.TypeMultipleChoice,
		Text:       "Which fraction equals 1/2?",
		TextRu:     "Какая дробь равна 1/2?",
		Options:    []model.Option{{Key: "a", Text: "2/4", TextRu: "2/4"}, {Key: "b", Text: "2/3"}},
		AnswerKey:  "a",
		Tags:       []string{"core", "visual"},
	}
	id, err := s.InsertQuestion(in)
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}

	got, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	in.ID = id
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, in)
	}
}

func TestCandidatesFilters(t *testing.T) {
	s := newTestStore(t)
	insertTestQuestion(t, s, "math", 3, "addition", 0.3)
	insertTestQuestion(t, s, "math", 4, "fractions", 0.5)
	insertTestQuestion(t, s, "math", 5, "decimals", 0.6)
	insertTestQuestion(t, s, "science", 4, "plants", 0.5)

	got, err := s.Candidates("math", []int{3, 4})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, q := range got {
		if q.Subject != "math" || q.GradeLevel > 4 {
			t.Errorf("unexpected candidate %+v", q)
		}
	}

	got, err = s.Candidates("math", nil)
	if err != nil {
		t.Fatalf("Candidates(nil grades): %v", err)
	}
	if got != nil {
		t.Errorf("no grades should mean no candidates, got %v", got)
	}

	all, err := s.AllQuestions()
	if err != nil {
		t.Fatalf("AllQuestions: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("AllQuestions len = %d, want 4", len(all))
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	sess := createTestSession(t, s, "sess-1")

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.StatusInProgress || got.CompletedAt != nil {
		t.Errorf("fresh session = %+v", got)
	}

	done := time.Now().Truncate(time.Second)
	if err := s.CompleteSession(sess.ID, done); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	got, err = s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession after complete: %v", err)
	}
	if got.Status != model.StatusCompleted || got.CompletedAt == nil {
		t.Errorf("completed session = %+v", got)
	}

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("ListSessions len = %d", len(sessions))
	}
}

func TestAppendAnswerAssignsOrdinals(t *testing.T) {
	s := newTestStore(t)
	sess := createTestSession(t, s, "sess-1")
	qid := insertTestQuestion(t, s, "math", 4, "fractions", 0.5)

	correct := true
	score := 1.0
	for i := 1; i <= 3; i++ {
		a, err := s.AppendAnswer(model.Answer{
			SessionID:        sess.ID,
			QuestionID:       qid,
			RawAnswer:        "a",
			IsCorrect:        &correct,
			Score:            &score,
			Difficulty:       0.5,
			TimeSpentSeconds: 10,
		})
		if err != nil {
			t.Fatalf("AppendAnswer %d: %v", i, err)
		}
		if a.Ordinal != i {
			t.Errorf("ordinal = %d, want %d", a.Ordinal, i)
		}
	}

	// Ordinals are scoped per session.
	other := createTestSession(t, s, "sess-2")
	a, err := s.AppendAnswer(model.Answer{SessionID: other.ID, QuestionID: qid, Difficulty: 0.5})
	if err != nil {
		t.Fatalf("AppendAnswer other session: %v", err)
	}
	if a.Ordinal != 1 {
		t.Errorf("other session ordinal = %d, want 1", a.Ordinal)
	}
}

func TestListAnswersNullableFields(t *testing.T) {
	s := newTestStore(t)
	sess := createTestSession(t, s, "sess-1")
	qid := insertTestQuestion(t, s, "math", 4, "fractions", 0.5)

	correct := false
	score := 0.2
	feedback := "try simplifying first"
	if _, err := s.AppendAnswer(model.Answer{
		SessionID: sess.ID, QuestionID: qid, RawAnswer: "b",
		IsCorrect: &correct, Score: &score, Difficulty: 0.5, JudgeFeedback: &feedback,
	}); err != nil {
		t.Fatalf("AppendAnswer scored: %v", err)
	}
	// Pending judgment: correctness, score, and feedback all NULL.
	if _, err := s.AppendAnswer(model.Answer{
		SessionID: sess.ID, QuestionID: qid, RawAnswer: "a long explanation", Difficulty: 0.5,
	}); err != nil {
		t.Fatalf("AppendAnswer pending: %v", err)
	}

	answers, err := s.ListAnswers(sess.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("len = %d, want 2", len(answers))
	}

	scored := answers[0]
	if scored.IsCorrect == nil || *scored.IsCorrect || scored.Score == nil || *scored.Score != 0.2 {
		t.Errorf("scored answer = %+v", scored)
	}
	if scored.JudgeFeedback == nil || *scored.JudgeFeedback != feedback {
		t.Errorf("feedback = %v", scored.JudgeFeedback)
	}

	pending := answers[1]
	if pending.IsCorrect != nil || pending.Score != nil || pending.JudgeFeedback != nil {
		t.Errorf("pending answer should have nil fields: %+v", pending)
	}
}

func TestTopicCountsAndAnswerTopics(t *testing.T) {
	s := newTestStore(t)
	sess := createTestSession(t, s, "sess-1")
	q1 := insertTestQuestion(t, s, "math", 4, "fractions", 0.4)
	q2 := insertTestQuestion(t, s, "math", 4, "fractions", 0.6)
	q3 := insertTestQuestion(t, s, "math", 4, "geometry", 0.5)

	for _, qid := range []int64{q1, q2, q3} {
		if _, err := s.AppendAnswer(model.Answer{SessionID: sess.ID, QuestionID: qid, Difficulty: 0.5}); err != nil {
			t.Fatalf("AppendAnswer: %v", err)
		}
	}

	counts, err := s.TopicCounts(sess.ID)
	if err != nil {
		t.Fatalf("TopicCounts: %v", err)
	}
	want := map[string]int{"fractions": 2, "geometry": 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("TopicCounts = %v, want %v", counts, want)
	}

	topics, err := s.AnswerTopics(sess.ID)
	if err != nil {
		t.Fatalf("AnswerTopics: %v", err)
	}
	if topics[q1] != "fractions" || topics[q3] != "geometry" {
		t.Errorf("AnswerTopics = %v", topics)
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	createTestSession(t, s, "sess-1")

	if rep, err := s.GetReport("sess-1"); err != nil || rep != nil {
		t.Fatalf("missing report = (%v, %v), want (nil, nil)", rep, err)
	}

	stats := model.SessionStats{TotalQuestions: 5, CorrectAnswers: 3, Accuracy: 0.6, Ability: 0.55}
	saved, err := s.SaveReport("sess-1", stats)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if saved.ShareToken == "" {
		t.Fatal("expected a share token")
	}

	got, err := s.GetReport("sess-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Stats.TotalQuestions != 5 || got.Stats.Ability != 0.55 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.Narrative != nil {
		t.Error("narrative should start NULL")
	}

	if err := s.SetReportNarrative("sess-1", "well done"); err != nil {
		t.Fatalf("SetReportNarrative: %v", err)
	}
	got, _ = s.GetReport("sess-1")
	if got.Narrative == nil || *got.Narrative != "well done" {
		t.Errorf("narrative = %v", got.Narrative)
	}

	byToken, err := s.GetReportByShareToken(saved.ShareToken)
	if err != nil {
		t.Fatalf("GetReportByShareToken: %v", err)
	}
	if byToken == nil || byToken.SessionID != "sess-1" {
		t.Errorf("byToken = %+v", byToken)
	}

	if rep, err := s.GetReportByShareToken("bogus"); err != nil || rep != nil {
		t.Errorf("unknown token = (%v, %v), want (nil, nil)", rep, err)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	if err != nil || v != "" {
		t.Fatalf("missing key = (%q, %v)", v, err)
	}

	if err := s.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("SetMetadata upsert: %v", err)
	}
	if v, _ := s.GetMetadata("k"); v != "v2" {
		t.Errorf("GetMetadata = %q, want v2", v)
	}

	if err := s.SetImportedFileHash("questions/math.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if h, _ := s.GetImportedFileHash("questions/math.json"); h != "abc123" {
		t.Errorf("hash = %q", h)
	}
}

func TestExportReportsOnlyCompletedWithReport(t *testing.T) {
	s := newTestStore(t)
	qid := insertTestQuestion(t, s, "math", 4, "fractions", 0.5)

	// Completed with a report: exported.
	done := createTestSession(t, s, "sess-done")
	correct := true
	if _, err := s.AppendAnswer(model.Answer{SessionID: done.ID, QuestionID: qid, IsCorrect: &correct, Difficulty: 0.5, TimeSpentSeconds: 12}); err != nil {
		t.Fatalf("AppendAnswer: %v", err)
	}
	if _, err := s.SaveReport(done.ID, model.SessionStats{TotalQuestions: 1}); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := s.CompleteSession(done.ID, time.Now()); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	// In progress: skipped.
	createTestSession(t, s, "sess-open")
	// Completed but never reported: skipped.
	orphan := createTestSession(t, s, "sess-orphan")
	if err := s.CompleteSession(orphan.ID, time.Now()); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}

	export, err := s.ExportReports()
	if err != nil {
		t.Fatalf("ExportReports: %v", err)
	}
	if len(export.Sessions) != 1 {
		t.Fatalf("exported %d sessions, want 1", len(export.Sessions))
	}
	res := export.Sessions[0]
	if res.Session.ID != "sess-done" || len(res.Answers) != 1 {
		t.Errorf("result = %+v", res)
	}
	line := res.Answers[0]
	if line.Ordinal != 1 || line.Topic != "fractions" || line.IsCorrect == nil || !*line.IsCorrect {
		t.Errorf("answer line = %+v", line)
	}
}
