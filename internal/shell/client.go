package shell

import (
	"context"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// Stream is the duplex byte channel of a running shell.
type Stream interface {
	io.ReadWriteCloser
	Resize(cols, rows int) error
	// Wait blocks until the shell ends. It returns nil when the remote shell
	// exited on its own, whatever its exit status.
	Wait() error
}

// Transport is an authenticated connection able to start one shell.
type Transport interface {
	OpenShell(ctx context.Context, pty PtyRequest) (Stream, error)
	Close() error
}

// Dialer opens transports to resolved hosts.
type Dialer interface {
	Dial(ctx context.Context, host string) (Transport, error)
}

// SSHDialer dials real SSH servers with a fixed credential configuration.
type SSHDialer struct {
	cfg Config
}

// NewDialer validates cfg and returns a dialer using it for every session.
func NewDialer(cfg Config) (*SSHDialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SSHDialer{cfg: cfg.withDefaults()}, nil
}

// Pty returns the default PTY geometry configured for new shells.
func (d *SSHDialer) Pty() PtyRequest {
	return d.cfg.Pty
}

func (d *SSHDialer) Dial(ctx context.Context, host string) (Transport, error) {
	c, err := Dial(ctx, host, d.cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Client is an authenticated SSH transport to one host.
type Client struct {
	conn     *ssh.Client
	addr     string
	deadline time.Time

	// shellStarted is set once a shell owns this client.
	shellStarted  atomic.Bool
	stopKeepalive context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to host on the configured port and authenticates. The ready
// timeout starts here and also bounds the following Shell call.
func Dial(ctx context.Context, host string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	deadline := time.Now().Add(cfg.ReadyTimeout)

	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return nil, &Error{Stage: StageHandshake, Addr: addr, Err: err}
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Stage: StageDial, Addr: addr, Err: withContext(ctx, err)}
	}

	// The handshake has no context of its own: bound it with a deadline and
	// close the socket if ctx ends first.
	netConn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { netConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
	if err != nil {
		stop()
		netConn.Close()
		return nil, &Error{Stage: StageHandshake, Addr: addr, Err: withContext(ctx, err)}
	}
	if !stop() {
		sshConn.Close()
		return nil, &Error{Stage: StageHandshake, Addr: addr, Err: ctx.Err()}
	}
	netConn.SetDeadline(time.Time{})

	kaCtx, kaCancel := context.WithCancel(context.Background())
	c := &Client{
		conn:          ssh.NewClient(sshConn, chans, reqs),
		addr:          addr,
		deadline:      deadline,
		stopKeepalive: kaCancel,
	}
	go c.keepalive(kaCtx)

	log.Printf("[shell] connected to %s as %s", addr, cfg.Username)
	return c, nil
}

func (c *Client) OpenShell(ctx context.Context, pty PtyRequest) (Stream, error) {
	s, err := c.Shell(ctx, pty)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Shell requests a PTY and starts the login shell. On failure the client is
// closed. The returned Session owns the client.
func (c *Client) Shell(ctx context.Context, pty PtyRequest) (*Session, error) {
	if !c.shellStarted.CompareAndSwap(false, true) {
		return nil, &Error{Stage: StageShell, Addr: c.addr, Err: ErrClosed}
	}
	pty = pty.withDefaults()

	ctx, cancel := context.WithDeadline(ctx, c.deadline)
	defer cancel()

	type result struct {
		s   *Session
		err error
	}
	var stage atomic.Value
	stage.Store(StageShell)
	done := make(chan result, 1)
	go func() {
		s, err := c.startShell(pty, &stage)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.Close()
			return nil, r.err
		}
		return r.s, nil
	case <-ctx.Done():
		// Closing the transport unblocks startShell.
		c.Close()
		go func() {
			if r := <-done; r.s != nil {
				r.s.Close()
			}
		}()
		return nil, &Error{Stage: stage.Load().(Stage), Addr: c.addr, Err: ctx.Err()}
	}
}

func (c *Client) startShell(pty PtyRequest, stage *atomic.Value) (*Session, error) {
	sess, err := c.conn.NewSession()
	if err != nil {
		return nil, &Error{Stage: StageShell, Addr: c.addr, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	stage.Store(StagePty)
	if err := sess.RequestPty(pty.Term, pty.Rows, pty.Cols, modes); err != nil {
		sess.Close()
		return nil, &Error{Stage: StagePty, Addr: c.addr, Err: err}
	}

	stage.Store(StageShell)
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, &Error{Stage: StageShell, Addr: c.addr, Err: err}
	}

	// Stdout and stderr share one pipe; it is closed only after Wait so that
	// every byte has been read before EOF.
	pr, pw := io.Pipe()
	sess.Stdout = pw
	sess.Stderr = pw

	if err := sess.Shell(); err != nil {
		sess.Close()
		pw.Close()
		return nil, &Error{Stage: StageShell, Addr: c.addr, Err: err}
	}

	s := newSession(c, sess, stdin, pr)
	go s.wait(pw)
	log.Printf("[shell] shell started on %s (%s %dx%d)", c.addr, pty.Term, pty.Cols, pty.Rows)
	return s, nil
}

func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				log.Printf("[shell] keepalive to %s failed: %v, closing transport", c.addr, err)
				c.Close()
				return
			}
		}
	}
}

// Close tears down the transport. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.stopKeepalive()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
