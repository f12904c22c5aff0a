package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gluk-w/shellbridge/internal/logging"
)

const defaultLogLines = 200

func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			lines = min(n, 10000)
		}
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeLogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": logging.Join(content)})
}

func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeLogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeLogError(w http.ResponseWriter, err error) {
	if errors.Is(err, logging.ErrDisabled) {
		writeError(w, http.StatusNotFound, "File logging is disabled")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
