// Package bridge joins a browser terminal WebSocket to an interactive shell
// on a cloud instance.
//
// For every connection the bridge resolves the instance address, dials the
// host, negotiates a PTY shell and then relays bytes in both directions
// until either side goes away. Each session walks a forward-only state
// machine:
//
//	ResolvingAddress → Connecting → ShellNegotiating → Active → Closing → Closed
//
// with Failed reachable from any non-terminal state. The client receives at
// most one terminal message ("error" or "exit") and none at all when it
// closed the connection itself.
//
// Two connections naming the same instance get two independent shells.
package bridge

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gluk-w/shellbridge/internal/logutil"
	"github.com/gluk-w/shellbridge/internal/registry"
	"github.com/gluk-w/shellbridge/internal/resolver"
	"github.com/gluk-w/shellbridge/internal/shell"
	"github.com/google/uuid"
)

// DefaultWriteTimeout bounds a single frame write to the client.
const DefaultWriteTimeout = 10 * time.Second

// Config wires a Bridge to its collaborators.
type Config struct {
	Resolver resolver.Resolver
	Dialer   shell.Dialer
	// Registry, when set, tracks live sessions.
	Registry *registry.Registry
	// Pty is the default terminal geometry for new shells.
	Pty          shell.PtyRequest
	WriteTimeout time.Duration
}

// Options carry per-connection settings.
type Options struct {
	// Cols and Rows override the default geometry when positive.
	Cols, Rows int
	RemoteAddr string
}

type Bridge struct {
	cfg Config
}

func New(cfg Config) (*Bridge, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("bridge: resolver is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("bridge: dialer is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Bridge{cfg: cfg}, nil
}

// Serve runs one session over conn and blocks until it is torn down. conn
// must already be accepted; Serve owns it from here on. The returned error
// is the failure reported to the client, or nil when the session ended
// normally.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn, instanceID string, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		connID:       uuid.NewString(),
		instanceID:   instanceID,
		remoteAddr:   opts.RemoteAddr,
		createdAt:    time.Now(),
		conn:         conn,
		writeTimeout: b.cfg.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
		state:        ResolvingAddress,
		done:         make(chan struct{}),
	}
	defer cancel()

	log.Printf("[bridge] session %s: connection for instance %s from %s",
		s.connID, logutil.SanitizeForLog(instanceID), logutil.SanitizeForLog(opts.RemoteAddr))

	if b.cfg.Registry != nil {
		if err := b.cfg.Registry.Register(s); err != nil {
			conn.Close(websocket.StatusInternalError, "session registration failed")
			return err
		}
		defer b.cfg.Registry.Unregister(s)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readClient()
	}()

	b.run(s, opts)

	<-s.done
	wg.Wait()
	log.Printf("[bridge] session %s: ended in state %s", s.connID, s.State())
	return s.Err()
}

func (b *Bridge) run(s *Session, opts Options) {
	if s.instanceID == "" {
		s.fail(errMissingInstanceID)
		return
	}

	res, err := b.cfg.Resolver.Resolve(s.ctx, s.instanceID)
	if err != nil {
		s.fail(err)
		return
	}
	s.mu.Lock()
	s.address = res.Address
	s.mu.Unlock()
	if !s.advance(Connecting) {
		return
	}

	transport, err := b.cfg.Dialer.Dial(s.ctx, res.Address)
	if err != nil {
		s.fail(err)
		return
	}
	if !s.holdTransport(transport) {
		transport.Close()
		return
	}
	if !s.advance(ShellNegotiating) {
		return
	}

	stream, err := transport.OpenShell(s.ctx, b.pty(opts))
	if err != nil {
		s.fail(err)
		return
	}
	if !s.activate(stream) {
		stream.Close()
		return
	}

	if err := s.send(&ServerMessage{Type: TypeConnected, Message: MsgConnected}); err != nil {
		log.Printf("[bridge] session %s: sending connected message: %v", s.connID, err)
	}
	s.pump(stream)
}

func (b *Bridge) pty(opts Options) shell.PtyRequest {
	pty := b.cfg.Pty
	if opts.Cols > 0 {
		pty.Cols = min(opts.Cols, shell.MaxCols)
	}
	if opts.Rows > 0 {
		pty.Rows = min(opts.Rows, shell.MaxRows)
	}
	return pty
}
