package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"
)

// Session is a running interactive shell. It implements Stream.
type Session struct {
	client *Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	out    *io.PipeReader

	writeMu   sync.Mutex // serialises stdin writes
	closed    atomic.Bool
	closeOnce sync.Once

	done    chan struct{}
	waitErr error // set before done is closed
}

func newSession(c *Client, sess *ssh.Session, stdin io.WriteCloser, out *io.PipeReader) *Session {
	return &Session{
		client: c,
		sess:   sess,
		stdin:  stdin,
		out:    out,
		done:   make(chan struct{}),
	}
}

// Open dials host and starts a shell in one call, sharing one ready timeout.
func Open(ctx context.Context, host string, cfg Config) (*Session, error) {
	c, err := Dial(ctx, host, cfg)
	if err != nil {
		return nil, err
	}
	return c.Shell(ctx, cfg.withDefaults().Pty)
}

func (s *Session) wait(pw *io.PipeWriter) {
	err := s.sess.Wait()
	s.waitErr = err
	pw.Close()
	close(s.done)

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		log.Printf("[shell] shell on %s exited", s.client.addr)
	case errors.As(err, &exitErr):
		log.Printf("[shell] shell on %s exited with status %d", s.client.addr, exitErr.ExitStatus())
	case !s.closed.Load():
		log.Printf("[shell] shell on %s ended: %v", s.client.addr, err)
	}
}

// Read returns remote output. It returns io.EOF when the shell has ended and
// all output has been consumed.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.out.Read(p)
	if errors.Is(err, io.ErrClosedPipe) {
		err = ErrClosed
	}
	return n, err
}

// Write sends p to the remote shell's input.
func (s *Session) Write(p []byte) (int, error) {
	if s.ended() {
		return 0, ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.stdin.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return n, nil
}

// Resize changes the remote PTY geometry.
func (s *Session) Resize(cols, rows int) error {
	if s.ended() {
		return ErrClosed
	}
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", cols, rows)
	}
	if err := s.sess.WindowChange(min(rows, MaxRows), min(cols, MaxCols)); err != nil {
		return fmt.Errorf("window change: %w", err)
	}
	return nil
}

// Wait blocks until the shell ends. A remote exit, with any status, yields
// nil. A shell that ended without an exit status yields a StageSession
// *Error, or ErrClosed when it was ended by Close.
func (s *Session) Wait() error {
	<-s.done
	err := s.waitErr
	var exitErr *ssh.ExitError
	switch {
	case err == nil, errors.As(err, &exitErr):
		return nil
	case s.closed.Load():
		return ErrClosed
	default:
		return &Error{Stage: StageSession, Addr: s.client.addr, Err: err}
	}
}

func (s *Session) ended() bool {
	if s.closed.Load() {
		return true
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close terminates the shell and the underlying transport. It is safe to
// call more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.out.Close()
		s.sess.Close()
		s.client.Close()
	})
	return nil
}
