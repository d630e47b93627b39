package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightpath/assess/internal/model"
)

// SaveReport persists the phase-1 statistics for a session and mints the
// share token under which the report can be retrieved externally.
func (s *Store) SaveReport(sessionID string, stats model.SessionStats) (*model.Report, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate share token: %w", err)
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO reports (session_id, stats, narrative, share_token, created_at) VALUES (?, ?, NULL, ?, ?)`,
		sessionID, string(data), token, now,
	)
	if err != nil {
		return nil, err
	}
	return &model.Report{
		SessionID:  sessionID,
		Stats:      stats,
		ShareToken: token,
		CreatedAt:  now,
	}, nil
}

// SetReportNarrative merges the phase-2 narrative into a stored report.
func (s *Store) SetReportNarrative(sessionID, narrative string) error {
	_, err := s.db.Exec(
		`UPDATE reports SET narrative = ? WHERE session_id = ?`,
		narrative, sessionID,
	)
	return err
}

// GetReport returns the report for a session, or nil if none exists.
func (s *Store) GetReport(sessionID string) (*model.Report, error) {
	return s.getReport(`SELECT session_id, stats, narrative, share_token, created_at FROM reports WHERE session_id = ?`, sessionID)
}

// GetReportByShareToken returns the report identified by a share token, or
// nil if the token is unknown.
func (s *Store) GetReportByShareToken(token string) (*model.Report, error) {
	return s.getReport(`SELECT session_id, stats, narrative, share_token, created_at FROM reports WHERE share_token = ?`, token)
}

func (s *Store) getReport(query string, arg any) (*model.Report, error) {
	var r model.Report
	var stats string
	var narrative sql.NullString
	err := s.db.QueryRow(query, arg).Scan(&r.SessionID, &stats, &narrative, &r.ShareToken, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats for session %s: %w", r.SessionID, err)
	}
	if narrative.Valid {
		r.Narrative = &narrative.String
	}
	return &r, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
