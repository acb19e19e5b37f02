package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/session"
)

type promptRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newHandler exposes the session runtime as a small JSON API.
func newHandler(rt *session.Runtime, logger logging.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /send-prompt", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodePrompt(w, r)
		if !ok {
			return
		}
		if err := rt.SubmitUserMessage(r.Context(), req.SessionID, req.Prompt); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"session_id": req.SessionID, "status": "queued"})
	})

	mux.HandleFunc("POST /process-message", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodePrompt(w, r)
		if !ok {
			return
		}
		interactions, err := rt.ProcessMessage(r.Context(), req.SessionID, req.Prompt)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrMessageTooLong):
				writeError(w, http.StatusBadRequest, err)
			case errors.Is(err, session.ErrSessionEnded):
				writeError(w, http.StatusConflict, err)
			default:
				// Fatal turn errors still produced an interaction; surface
				// both so the caller sees the recorded trace.
				logger.Error("process-message failed", "session_id", req.SessionID, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":        err.Error(),
					"interactions": interactions,
				})
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"interactions": interactions})
	})

	mux.HandleFunc("GET /get-chat-history", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
			return
		}
		interactions, err := rt.History(r.Context(), sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "interactions": interactions})
	})

	mux.HandleFunc("POST /end-chat", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			var req promptRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				sessionID = req.SessionID
			}
		}
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
			return
		}
		if err := rt.End(r.Context(), sessionID); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "ended"})
	})

	return mux
}

func decodePrompt(w http.ResponseWriter, r *http.Request) (promptRequest, bool) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return req, false
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
