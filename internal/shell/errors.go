package shell

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by Write, Resize and Read once the stream has ended
// or has been closed.
var ErrClosed = errors.New("shell session closed")

// Stage identifies where a shell failed.
type Stage string

const (
	StageDial      Stage = "dial"
	StageHandshake Stage = "handshake"
	StagePty       Stage = "pty"
	StageShell     Stage = "shell"
	// StageSession covers failures after the shell was running.
	StageSession Stage = "session"
)

// Error is a transport, authentication or negotiation failure. The cause is
// preserved for diagnostics.
type Error struct {
	Stage Stage
	Addr  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Stage, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Negotiating reports whether the failure happened before the shell started.
func (e *Error) Negotiating() bool {
	return e.Stage != StageSession
}

// withContext attaches the context error when the context ended the operation.
func withContext(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
