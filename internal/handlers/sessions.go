package handlers

import (
	"net/http"

	"github.com/gluk-w/shellbridge/internal/bridge"
	"github.com/gluk-w/shellbridge/internal/registry"
	"github.com/go-chi/chi/v5"
)

// ListSessions returns the live bridge sessions, optionally filtered by
// ?instanceId=.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	if Sessions == nil {
		writeJSON(w, http.StatusOK, []registry.Snapshot{})
		return
	}
	if id := r.URL.Query().Get("instanceId"); id != "" {
		writeJSON(w, http.StatusOK, Sessions.ForInstance(id))
		return
	}
	writeJSON(w, http.StatusOK, Sessions.List())
}

// CloseSession ends one live session. The client sees a "Session closed"
// exit message.
func CloseSession(w http.ResponseWriter, r *http.Request) {
	if Sessions == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	connID := chi.URLParam(r, "connId")
	s, ok := Sessions.Get(connID)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.Close(bridge.MsgSessionClosed)
	w.WriteHeader(http.StatusNoContent)
}
