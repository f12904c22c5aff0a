package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/gluk-w/shellbridge/internal/bridge"
	"github.com/gluk-w/shellbridge/internal/shell"
)

// terminalReadLimit caps a single client frame.
const terminalReadLimit = 1024 * 1024

// TerminalWS bridges a browser terminal to an instance shell.
//
// Query parameters:
//   - instanceId: the instance to open a shell on. When missing the client
//     gets an error message and the socket closes.
//   - cols, rows: (optional) initial terminal geometry, 1..500.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	if Bridge == nil {
		http.Error(w, "Terminal bridge not initialized", http.StatusServiceUnavailable)
		return
	}

	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[bridge] failed to accept terminal websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()
	clientConn.SetReadLimit(terminalReadLimit)

	q := r.URL.Query()
	opts := bridge.Options{
		Cols:       parseDimension(q.Get("cols"), shell.MaxCols),
		Rows:       parseDimension(q.Get("rows"), shell.MaxRows),
		RemoteAddr: r.RemoteAddr,
	}

	Bridge.Serve(r.Context(), clientConn, q.Get("instanceId"), opts)
}

// parseDimension returns v clamped to 1..limit, or 0 when v is unusable.
func parseDimension(v string, limit int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0
	}
	return min(n, limit)
}
