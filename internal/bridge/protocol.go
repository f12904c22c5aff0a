package bridge

import (
	"unicode/utf8"

	"github.com/coder/websocket"
)

// Client → bridge message types.
const (
	TypeInput  = "input"
	TypeResize = "resize"
)

// Bridge → client message types.
const (
	TypeConnected = "connected"
	TypeOutput    = "output"
	TypeError     = "error"
	TypeExit      = "exit"
)

// User-facing message texts.
const (
	MsgConnected       = "SSH connection established"
	MsgShellClosed     = "Shell closed"
	MsgSessionClosed   = "Session closed"
	MsgMissingInstance = "Missing instanceId parameter"
)

// WebSocket close codes sent with an error message. A session that ends
// with an exit message closes with websocket.StatusNormalClosure.
const (
	CloseMissingInstance websocket.StatusCode = 4400
	CloseNotFound        websocket.StatusCode = 4004
	CloseNotRunning      websocket.StatusCode = 4409
	CloseShellFailure    websocket.StatusCode = 4500
	CloseResolverFailure websocket.StatusCode = 4502
)

// ClientMessage is a frame sent by the browser terminal.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// ServerMessage is a frame sent to the browser terminal.
type ServerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`
}

func exitMessage(msg string) *ServerMessage {
	return &ServerMessage{Type: TypeExit, Message: msg}
}

func errorMessage(msg string) *ServerMessage {
	return &ServerMessage{Type: TypeError, Message: msg}
}

// completeUTF8 returns the length of the longest prefix of p that does not
// end inside a multi-byte UTF-8 sequence. At most utf8.UTFMax-1 trailing
// bytes are held back. Invalid bytes are not held back.
func completeUTF8(p []byte) int {
	n := len(p)
	for i := 1; i < utf8.UTFMax && i <= n; i++ {
		b := p[n-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if b < utf8.RuneSelf || utf8.FullRune(p[n-i:]) {
			return n
		}
		return n - i
	}
	return n
}
