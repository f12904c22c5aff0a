package bridge

import (
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/gluk-w/shellbridge/internal/resolver"
	"github.com/gluk-w/shellbridge/internal/shell"
)

var errMissingInstanceID = errors.New("missing instance id")

// ProtocolError is a client frame the bridge could not interpret. It is
// logged and the frame is dropped; the session carries on.
type ProtocolError struct {
	Frame []byte
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// describeFailure maps a session failure to the close code and the text
// shown to the user.
func describeFailure(err error) (websocket.StatusCode, string) {
	var resErr *resolver.Error
	var shellErr *shell.Error

	switch {
	case errors.Is(err, errMissingInstanceID):
		return CloseMissingInstance, MsgMissingInstance
	case errors.As(err, &resErr):
		if resErr.Kind == resolver.NotFound {
			return CloseNotFound, resErr.Error()
		}
		return CloseNotRunning, resErr.Error()
	case errors.As(err, &shellErr):
		switch shellErr.Stage {
		case shell.StagePty, shell.StageShell:
			return CloseShellFailure, "Shell error: " + shellErr.Err.Error()
		default:
			return CloseShellFailure, "SSH error: " + shellErr.Err.Error()
		}
	default:
		return CloseResolverFailure, err.Error()
	}
}
