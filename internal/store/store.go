package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brightpath/assess/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL,
		grade_level INTEGER NOT NULL,
		topic TEXT NOT NULL,
		subtopic TEXT NOT NULL DEFAULT '',
		difficulty REAL NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		text_ru TEXT NOT NULL DEFAULT '',
		options TEXT NOT NULL DEFAULT '[]',
		answer_key TEXT NOT NULL DEFAULT '',
		rubric TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		grade_level INTEGER NOT NULL,
		assessment_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		raw_answer TEXT NOT NULL DEFAULT '',
		is_correct INTEGER,
		score REAL,
		difficulty REAL NOT NULL,
		time_spent_seconds INTEGER NOT NULL DEFAULT 0,
		judge_feedback TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, ordinal),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		session_id TEXT PRIMARY KEY,
		stats TEXT NOT NULL,
		narrative TEXT,
		share_token TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS bank_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, subject, grade_level, topic, subtopic, difficulty, type, text, text_ru, options, answer_key, rubric, tags`

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return 0, fmt.Errorf("marshal options: %w", err)
	}
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (subject, grade_level, topic, subtopic, difficulty, type, text, text_ru, options, answer_key, rubric, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Subject, q.GradeLevel, q.Topic, q.Subtopic, q.Difficulty, q.Type,
		q.Text, q.TextRu, string(options), q.AnswerKey, q.Rubric, string(tags),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var options, tags string
	err := row.Scan(&q.ID, &q.Subject, &q.GradeLevel, &q.Topic, &q.Subtopic,
		&q.Difficulty, &q.Type, &q.Text, &q.TextRu, &options, &q.AnswerKey, &q.Rubric, &tags)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("unmarshal options for question %d: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &q.Tags); err != nil {
		return q, fmt.Errorf("unmarshal tags for question %d: %w", q.ID, err)
	}
	return q, nil
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

// Candidates returns the question pool for a subject and set of grade levels.
func (s *Store) Candidates(subject string, grades []int) ([]model.Question, error) {
	if len(grades) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(grades)), ",")
	args := []any{subject}
	for _, g := range grades {
		args = append(args, g)
	}
	return s.queryQuestions(
		`SELECT `+questionColumns+` FROM questions WHERE subject = ? AND grade_level IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
}

// AllQuestions returns the full question bank.
func (s *Store) AllQuestions() ([]model.Question, error) {
	return s.queryQuestions(`SELECT ` + questionColumns + ` FROM questions ORDER BY id`)
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// CreateSession persists a new session.
func (s *Store) CreateSession(sess model.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, subject, grade_level, assessment_type, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Subject, sess.GradeLevel, sess.AssessmentType, sess.Status, sess.StartedAt,
	)
	return err
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, subject, grade_level, assessment_type, status, started_at, completed_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Subject, &sess.GradeLevel, &sess.AssessmentType, &sess.Status, &sess.StartedAt, &sess.CompletedAt)
	return sess, err
}

// CompleteSession marks a session completed. The transition is terminal.
func (s *Store) CompleteSession(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, completed_at = ? WHERE id = ?`,
		model.StatusCompleted, at, id,
	)
	return err
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, subject, grade_level, assessment_type, status, started_at, completed_at FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.Subject, &sess.GradeLevel, &sess.AssessmentType, &sess.Status, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AppendAnswer appends an answer to a session's log, assigning the next
// ordinal inside a transaction so concurrent writers cannot produce
// duplicate ordinals.
func (s *Store) AppendAnswer(a model.Answer) (model.Answer, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	var prior int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM answers WHERE session_id = ?`, a.SessionID,
	).Scan(&prior); err != nil {
		return a, err
	}
	a.Ordinal = prior + 1
	a.CreatedAt = time.Now()

	res, err := tx.Exec(
		`INSERT INTO answers (session_id, question_id, ordinal, raw_answer, is_correct, score, difficulty, time_spent_seconds, judge_feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.QuestionID, a.Ordinal, a.RawAnswer, a.IsCorrect, a.Score,
		a.Difficulty, a.TimeSpentSeconds, a.JudgeFeedback, a.CreatedAt,
	)
	if err != nil {
		return a, err
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return a, err
	}
	return a, tx.Commit()
}

// ListAnswers returns a session's answers in ordinal order.
func (s *Store) ListAnswers(sessionID string) ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, ordinal, raw_answer, is_correct, score, difficulty, time_spent_seconds, judge_feedback, created_at
		 FROM answers WHERE session_id = ? ORDER BY ordinal`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		var correct sql.NullBool
		var score sql.NullFloat64
		var feedback sql.NullString
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Ordinal, &a.RawAnswer,
			&correct, &score, &a.Difficulty, &a.TimeSpentSeconds, &feedback, &a.CreatedAt); err != nil {
			return nil, err
		}
		if correct.Valid {
			a.IsCorrect = &correct.Bool
		}
		if score.Valid {
			a.Score = &score.Float64
		}
		if feedback.Valid {
			a.JudgeFeedback = &feedback.String
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// TopicCounts returns how many answers a session has per question topic.
func (s *Store) TopicCounts(sessionID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT q.topic, COUNT(*) FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.session_id = ? GROUP BY q.topic`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var topic string
		var n int
		if err := rows.Scan(&topic, &n); err != nil {
			return nil, err
		}
		counts[topic] = n
	}
	return counts, rows.Err()
}

// AnswerTopics maps each question answered in a session to its topic.
func (s *Store) AnswerTopics(sessionID string) (map[int64]string, error) {
	rows, err := s.db.Query(
		`SELECT a.question_id, q.topic FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.session_id = ?`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	topics := make(map[int64]string)
	for rows.Next() {
		var id int64
		var topic string
		if err := rows.Scan(&id, &topic); err != nil {
			return nil, err
		}
		topics[id] = topic
	}
	return topics, rows.Err()
}
