package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/session"
	"github.com/MrWong99/intervoxa/internal/store"
)

// apiError is the JSON body of non-2xx REST responses.
type apiError struct {
	Error string `json:"error"`
}

// handleWS upgrades the connection and runs one interview session on it. The
// interview is named by the interview_id query parameter; protocol-level
// failures after the upgrade (unknown interview, invalid state) are reported
// as error frames by the session itself.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	interviewID := r.URL.Query().Get("interview_id")
	if interviewID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "interview_id query parameter is required"})
		return
	}

	ctx, err := a.sessions.acquire(r.Context(), interviewID)
	if err != nil {
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
		return
	}
	defer a.sessions.release(interviewID)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "interview_id", interviewID, "err", err)
		return
	}

	slog.Info("session connected", "interview_id", interviewID, "active", a.sessions.count())

	sess := session.NewSession(conn, a.orch, interviewID)
	if err := sess.Run(ctx); err != nil {
		slog.Warn("session ended with error", "interview_id", interviewID, "err", err)
		return
	}
	slog.Info("session closed", "interview_id", interviewID)
}

// handleSummary serves the completion summary of a finished interview.
//
//	200 — interview is COMPLETE; body is the summary JSON.
//	400 — interview exists but is not COMPLETE; body names the current status.
//	404 — interview unknown, or COMPLETE without a stored summary.
func (a *App) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	iv, err := a.store.Interviews().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, apiError{Error: fmt.Sprintf("interview %s not found", id)})
		return
	}
	if err != nil {
		slog.Error("load interview for summary", "interview_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}

	if iv.Status != interview.StatusComplete {
		writeJSON(w, http.StatusBadRequest, apiError{
			Error: fmt.Sprintf("interview is %s; summary is only available once COMPLETE", iv.Status),
		})
		return
	}

	summary := iv.Summary()
	if summary == nil {
		slog.Error("COMPLETE interview has no stored summary", "interview_id", id)
		writeJSON(w, http.StatusNotFound, apiError{Error: "no summary stored for this interview"})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// createInterviewRequest is the body of the development-mode bootstrap
// endpoint. It replaces the upstream planning phase for local testing.
type createInterviewRequest struct {
	CandidateID  string `json:"candidate_id"`
	CVAnalysisID string `json:"cv_analysis_id"`
	Questions    []struct {
		ID          string   `json:"id"`
		Prompt      string   `json:"prompt"`
		IdealAnswer string   `json:"ideal_answer"`
		Difficulty  string   `json:"difficulty"`
		Skills      []string `json:"skills"`
		Rationale   string   `json:"rationale"`
	} `json:"questions"`
}

// handleCreateInterview creates an IDLE interview from a posted question
// plan. Registered only when mock adapters are enabled; production plans
// arrive through storage from the planning phase.
func (a *App) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.CandidateID == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "candidate_id is required"})
		return
	}
	if len(req.Questions) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "at least one question is required"})
		return
	}

	iv := interview.New(uuid.NewString(), req.CandidateID)
	for i, q := range req.Questions {
		id := q.ID
		if id == "" {
			id = uuid.NewString()
		}
		if q.Prompt == "" {
			writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("question %d has no prompt", i)})
			return
		}
		if err := a.store.Questions().Put(r.Context(), &interview.Question{
			ID:          id,
			Prompt:      q.Prompt,
			IdealAnswer: q.IdealAnswer,
			Difficulty:  q.Difficulty,
			Skills:      q.Skills,
			Rationale:   q.Rationale,
		}); err != nil {
			slog.Error("store question", "question_id", id, "err", err)
			writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
			return
		}
		iv.QuestionIDs = append(iv.QuestionIDs, id)
	}

	cvID := req.CVAnalysisID
	if cvID == "" {
		cvID = "dev-" + uuid.NewString()
	}
	if err := iv.MarkReady(cvID); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}
	if err := a.store.Interviews().Create(r.Context(), iv); err != nil {
		slog.Error("create interview", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}

	slog.Info("interview created",
		"interview_id", iv.ID, "candidate_id", iv.CandidateID, "questions", len(iv.QuestionIDs))

	writeJSON(w, http.StatusCreated, map[string]any{
		"interview_id": iv.ID,
		"status":       iv.Status,
		"questions":    len(iv.QuestionIDs),
	})
}

// writeJSON encodes v with the given status. Encoding failures are logged;
// the status line has already been sent at that point.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response body", "err", err)
	}
}
