package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/repcam/internal/archive"
	"github.com/claude/repcam/internal/detector"
	"github.com/claude/repcam/internal/engine"
	"github.com/claude/repcam/internal/exercise"
	"github.com/claude/repcam/internal/pose"
)

const (
	// maxImageBody bounds analyze requests, which carry base64 images.
	maxImageBody = 8 << 20
	// maxFrameBody bounds keypoint and session requests.
	maxFrameBody = 64 << 10
)

type createSessionRequest struct {
	SessionID   string                `json:"session_id"`
	Exercise    exercise.Type         `json:"exercise"`
	Calibration *exercise.Calibration `json:"calibration"`
}

// frameRequest is the body of a frame submission. When Exercise is set the
// session is created on first use; otherwise it must already exist.
type frameRequest struct {
	Exercise    exercise.Type         `json:"exercise"`
	Calibration *exercise.Calibration `json:"calibration"`
	Keypoints   []pose.Keypoint       `json:"keypoints"`
	TimestampMS int64                 `json:"timestamp_ms"`
}

type analyzeRequest struct {
	Exercise    exercise.Type         `json:"exercise"`
	Calibration *exercise.Calibration `json:"calibration"`
	TimestampMS int64                 `json:"timestamp_ms"`
	detector.Request
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.engine.Len(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, exercise.Catalog())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.engine.Sessions()
	if sessions == nil {
		sessions = []engine.Summary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	summary, err := s.engine.CreateSession(req.SessionID, req.Exercise, req.Calibration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("session created",
		"session_id", summary.SessionID,
		"exercise", summary.Exercise,
		"user", userInfoFromContext(r).Login,
	)
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.engine.GetSession(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	final, ok := s.engine.EndSession(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	s.finish(r.Context(), final)
	s.log.Info("session ended",
		"session_id", final.SessionID,
		"reps", final.RepCount,
		"partial_reps", final.PartialRepCount,
	)
	writeJSON(w, http.StatusOK, final)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	s.runFrame(w, chi.URLParam(r, "id"), req)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pose detector not configured"})
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImageBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := req.Request.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	kps, err := s.detector.Detect(r.Context(), req.Request)
	if err != nil {
		s.log.Warn("pose detection failed", "session_id", chi.URLParam(r, "id"), "error", err)
		s.writeError(w, err)
		return
	}

	s.runFrame(w, chi.URLParam(r, "id"), frameRequest{
		Exercise:    req.Exercise,
		Calibration: req.Calibration,
		Keypoints:   kps,
		TimestampMS: req.TimestampMS,
	})
}

func (s *Server) runFrame(w http.ResponseWriter, id string, req frameRequest) {
	var at time.Time
	if req.TimestampMS > 0 {
		at = time.UnixMilli(req.TimestampMS)
	}

	var (
		res engine.FrameResult
		err error
	)
	if req.Exercise != "" {
		res, err = s.engine.ProcessFrame(id, req.Exercise, req.Calibration, req.Keypoints, at)
	} else {
		res, err = s.engine.SubmitFrame(id, req.Keypoints, at)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.events.publish(id, sseEvent{Event: "frame", Data: mustJSON(res)})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ex := r.URL.Query().Get("exercise")
	if ex != "" {
		if _, err := exercise.Lookup(exercise.Type(ex)); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	limit := archive.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	recs, err := s.archive.Recent(r.Context(), ex, limit)
	if err != nil {
		s.log.Error("archive query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// writeError maps engine and detector failures to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrStoreFull), errors.Is(err, detector.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
