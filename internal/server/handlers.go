package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oratiohq/oratio/internal/capture"
	"github.com/oratiohq/oratio/internal/history"
	"github.com/oratiohq/oratio/internal/interview"
	"github.com/oratiohq/oratio/internal/trial"
)

// startRequest is the body of POST /api/sessions/{id}/start.
type startRequest struct {
	UserID         string `json:"user_id,omitempty"`
	JobTitle       string `json:"job_title"`
	JobDescription string `json:"job_description,omitempty"`
	ResumeText     string `json:"resume_text"`
}

// answerRequest is the body of POST /api/sessions/{id}/answer.
type answerRequest struct {
	Text string `json:"text"`
}

// sessionResponse is the JSON view of a session returned by the state
// endpoints.
type sessionResponse struct {
	ID         string                    `json:"id"`
	Stage      interview.Stage           `json:"stage"`
	Transcript []interview.Turn          `json:"transcript"`
	Report     *interview.FeedbackReport `json:"report,omitempty"`
	Error      string                    `json:"error,omitempty"`
	CanCapture bool                      `json:"can_capture"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func sessionView(s *interview.Session) sessionResponse {
	resp := sessionResponse{
		ID:         s.ID,
		Stage:      s.Stage(),
		Transcript: s.Transcript(),
		Report:     s.Report(),
		CanCapture: s.CanCapture(),
	}
	if err := s.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, history.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, trial.ErrUsed):
		status = http.StatusForbidden
	case errors.Is(err, interview.ErrWrongStage),
		errors.Is(err, interview.ErrAIPending),
		errors.Is(err, interview.ErrNothingToEvaluate),
		errors.Is(err, capture.ErrActive):
		status = http.StatusConflict
	case errors.Is(err, capture.ErrUnsupported):
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (srv *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := srv.manager.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (srv *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (srv *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	id := r.PathValue("id")
	err := srv.manager.Start(id, interview.Params{
		UserID:         req.UserID,
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
		ResumeText:     req.ResumeText,
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, trial.ErrUsed) ||
			errors.Is(err, interview.ErrWrongStage) || errors.Is(err, interview.ErrAIPending) {
			writeError(w, err)
		} else {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return
	}

	s, err := srv.manager.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionView(s))
}

func (srv *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.SubmitAnswer(req.Text); err != nil {
		if errors.Is(err, interview.ErrWrongStage) || errors.Is(err, interview.ErrAIPending) {
			writeError(w, err)
		} else {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusAccepted, sessionView(s))
}

func (srv *Server) handleBeginAnswer(w http.ResponseWriter, r *http.Request) {
	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.BeginAnswer(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionView(s))
}

func (srv *Server) handleAbandonAnswer(w http.ResponseWriter, r *http.Request) {
	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.AbandonAnswer()
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (srv *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.End(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionView(s))
}

func (srv *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.RetryTurn(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionView(s))
}

func (srv *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s, err := srv.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.Restart()
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (srv *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := srv.manager.Close(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if srv.archive == nil {
		writeJSON(w, http.StatusOK, []history.Record{})
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id query parameter is required"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := srv.archive.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (srv *Server) handleGetHistoryRecord(w http.ResponseWriter, r *http.Request) {
	if srv.archive == nil {
		writeError(w, history.ErrNotFound)
		return
	}
	rec, err := srv.archive.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
