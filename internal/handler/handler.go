package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brightpath/assess/internal/engine"
	"github.com/brightpath/assess/internal/i18n"
	"github.com/brightpath/assess/internal/model"
	"github.com/brightpath/assess/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine *engine.Engine
	store  *store.Store
}

// New creates a new Handler.
func New(e *engine.Engine, s *store.Store) *Handler {
	return &Handler{engine: e, store: s}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/assessments", h.handleStart)
	r.Post("/api/assessments/{sessionID}/answers", h.handleSubmitAnswer)
	r.Post("/api/assessments/{sessionID}/complete", h.handleComplete)
	r.Get("/api/assessments/{sessionID}/report", h.handleReport)
	r.Get("/api/reports/{shareToken}", h.handleSharedReport)
	r.Get("/healthz", h.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps engine errors onto HTTP statuses. The caller-visible
// taxonomy is reported as-is; anything else is an internal error.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, engine.ErrQuestionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrSessionNotActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrNoAnswersYet),
		errors.Is(err, engine.ErrNoQuestions):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type startRequest struct {
	AssessmentType model.AssessmentType `json:"assessment_type"`
	Subject        string               `json:"subject"`
	GradeLevel     int                  `json:"grade_level"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Subject == "" || req.GradeLevel < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "subject and grade_level are required"})
		return
	}
	if req.AssessmentType != "" && !req.AssessmentType.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown assessment_type"})
		return
	}
	if req.AssessmentType == "" {
		req.AssessmentType = model.AssessmentStandard
	}

	res, err := h.engine.Start(r.Context(), req.AssessmentType, req.Subject, req.GradeLevel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type submitRequest struct {
	QuestionID       int64           `json:"question_id"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds int             `json:"time_spent_seconds"`
}

// rawAnswer flattens the submitted answer to the opaque string the engine
// records: a JSON string becomes its value, anything else is kept verbatim.
func (r submitRequest) rawAnswer() string {
	var s string
	if err := json.Unmarshal(r.Answer, &s); err == nil {
		return s
	}
	return string(r.Answer)
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.QuestionID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question_id is required"})
		return
	}

	res, err := h.engine.SubmitAnswer(r.Context(), sessionID, req.QuestionID, req.rawAnswer(), req.TimeSpentSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	res, err := h.engine.Complete(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	res.Report.Stats.AbilityBand = i18n.T(r.Context(), res.Report.Stats.AbilityBand)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	rep, err := h.store.GetReport(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "report not found"})
		return
	}
	rep.Stats.AbilityBand = i18n.T(r.Context(), rep.Stats.AbilityBand)
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleSharedReport(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "shareToken")

	rep, err := h.store.GetReportByShareToken(token)
	if err != nil {
		writeError(w, err)
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "report not found"})
		return
	}
	rep.Stats.AbilityBand = i18n.T(r.Context(), rep.Stats.AbilityBand)
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
