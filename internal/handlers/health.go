package handlers

import (
	"net/http"

	"github.com/gluk-w/shellbridge/internal/database"
	"github.com/gluk-w/shellbridge/internal/orchestrator"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.Ping() == nil {
		dbStatus = "connected"
	}

	orchBackend := "none"
	if orch := orchestrator.Get(); orch != nil {
		orchBackend = orch.BackendName()
	}

	sessions := 0
	if Sessions != nil {
		sessions = Sessions.Count()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               "ok",
		"database":             dbStatus,
		"orchestrator_backend": orchBackend,
		"sessions":             sessions,
	})
}
