package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gluk-w/shellbridge/internal/registry"
	"github.com/gluk-w/shellbridge/internal/resolver"
	"github.com/gluk-w/shellbridge/internal/shell"
)

const testAddr = "203.0.113.5"

// --- fakes ---

type resolverFunc func(ctx context.Context, instanceID string) (resolver.Result, error)

func (f resolverFunc) Resolve(ctx context.Context, instanceID string) (resolver.Result, error) {
	return f(ctx, instanceID)
}

func running(calls *atomic.Int32) resolverFunc {
	return func(context.Context, string) (resolver.Result, error) {
		if calls != nil {
			calls.Add(1)
		}
		return resolver.Result{Address: testAddr, State: resolver.StateRunning}, nil
	}
}

func failing(err error) resolverFunc {
	return func(context.Context, string) (resolver.Result, error) {
		return resolver.Result{}, err
	}
}

type fakeStream struct {
	out  *io.PipeReader
	outW *io.PipeWriter

	mu      sync.Mutex
	input   strings.Builder
	resizes [][2]int
	closed  bool

	exited    chan struct{}
	exitErr   error
	exitOnce  sync.Once
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	pr, pw := io.Pipe()
	return &fakeStream{out: pr, outW: pw, exited: make(chan struct{}), closedCh: make(chan struct{})}
}

func (f *fakeStream) Read(p []byte) (int, error) { return f.out.Read(p) }

func (f *fakeStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, shell.ErrClosed
	}
	f.input.Write(p)
	return len(p), nil
}

func (f *fakeStream) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return shell.ErrClosed
	}
	f.resizes = append(f.resizes, [2]int{cols, rows})
	return nil
}

func (f *fakeStream) Wait() error {
	select {
	case <-f.exited:
		return f.exitErr
	case <-f.closedCh:
		return shell.ErrClosed
	}
}

func (f *fakeStream) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.closedCh)
		f.out.Close()
	})
	return nil
}

// emit blocks until the bridge has read data.
func (f *fakeStream) emit(t *testing.T, data string) {
	t.Helper()
	if _, err := f.outW.Write([]byte(data)); err != nil {
		t.Fatalf("emit %q: %v", data, err)
	}
}

// exit ends the shell with err as the Wait result.
func (f *fakeStream) exit(err error) {
	f.exitOnce.Do(func() {
		f.exitErr = err
		close(f.exited)
		f.outW.Close()
	})
}

func (f *fakeStream) Input() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.String()
}

func (f *fakeStream) Resizes() [][2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]int(nil), f.resizes...)
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeTransport struct {
	stream   *fakeStream
	openErr  error
	openGate chan struct{}

	mu     sync.Mutex
	ptys   []shell.PtyRequest
	closed atomic.Bool
}

func (f *fakeTransport) OpenShell(ctx context.Context, pty shell.PtyRequest) (shell.Stream, error) {
	f.mu.Lock()
	f.ptys = append(f.ptys, pty)
	f.mu.Unlock()
	if f.openGate != nil {
		select {
		case <-f.openGate:
		case <-ctx.Done():
			return nil, &shell.Error{Stage: shell.StageShell, Err: ctx.Err()}
		}
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeTransport) Ptys() []shell.PtyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shell.PtyRequest(nil), f.ptys...)
}

type fakeDialer struct {
	err       error
	block     bool
	configure func(*fakeTransport)

	mu         sync.Mutex
	hosts      []string
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, host string) (shell.Transport, error) {
	d.mu.Lock()
	d.hosts = append(d.hosts, host)
	d.mu.Unlock()

	if d.block {
		<-ctx.Done()
		return nil, &shell.Error{Stage: shell.StageDial, Addr: host, Err: ctx.Err()}
	}
	if d.err != nil {
		return nil, d.err
	}
	tr := &fakeTransport{stream: newFakeStream()}
	if d.configure != nil {
		d.configure(tr)
	}
	d.mu.Lock()
	d.transports = append(d.transports, tr)
	d.mu.Unlock()
	return tr, nil
}

func (d *fakeDialer) Hosts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.hosts...)
}

func (d *fakeDialer) Transport(t *testing.T, i int) *fakeTransport {
	t.Helper()
	var tr *fakeTransport
	eventually(t, "transport "+strconv.Itoa(i), func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.transports) > i {
			tr = d.transports[i]
			return true
		}
		return false
	})
	return tr
}

// --- harness ---

type harness struct {
	t      *testing.T
	reg    *registry.Registry
	url    string
	served chan error
}

func newHarness(t *testing.T, res resolver.Resolver, dialer shell.Dialer) *harness {
	t.Helper()
	reg := registry.New()
	b, err := New(Config{
		Resolver:     res,
		Dialer:       dialer,
		Registry:     reg,
		Pty:          shell.PtyRequest{Term: "xterm-256color", Cols: 80, Rows: 30},
		WriteTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	h := &harness{t: t, reg: reg, served: make(chan error, 8)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		cols, _ := strconv.Atoi(q.Get("cols"))
		rows, _ := strconv.Atoi(q.Get("rows"))
		h.served <- b.Serve(context.Background(), conn, q.Get("instanceId"), Options{
			Cols:       cols,
			Rows:       rows,
			RemoteAddr: r.RemoteAddr,
		})
	}))
	t.Cleanup(srv.Close)
	h.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return h
}

func (h *harness) dial(query string) *client {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, h.url+"/"+query, nil)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	h.t.Cleanup(func() { conn.CloseNow() })
	return &client{t: h.t, conn: conn}
}

// serveResult waits for the next Serve call to return.
func (h *harness) serveResult() error {
	h.t.Helper()
	select {
	case err := <-h.served:
		return err
	case <-time.After(5 * time.Second):
		h.t.Fatal("Serve did not return")
		return nil
	}
}

// session returns the single live session.
func (h *harness) session() *Session {
	h.t.Helper()
	var s *Session
	eventually(h.t, "registered session", func() bool {
		list := h.reg.List()
		if len(list) != 1 {
			return false
		}
		got, ok := h.reg.Get(list[0].ConnID)
		if ok {
			s = got.(*Session)
		}
		return ok
	})
	return s
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (c *client) next() ServerMessage {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg ServerMessage
	if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
		c.t.Fatalf("reading message: %v", err)
	}
	return msg
}

func (c *client) expect(typ, text string) ServerMessage {
	c.t.Helper()
	msg := c.next()
	got := msg.Message
	if typ == TypeOutput {
		got = msg.Data
	}
	if msg.Type != typ || got != text {
		c.t.Fatalf("expected %s %q, got %+v", typ, text, msg)
	}
	return msg
}

// closeStatus reads until the server closes and returns the close code.
func (c *client) closeStatus() websocket.StatusCode {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return websocket.CloseStatus(err)
		}
		c.t.Errorf("unexpected frame after terminal message: %v %s", typ, data)
	}
}

func (c *client) send(msg ClientMessage) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

func (c *client) sendRaw(data string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(data)); err != nil {
		c.t.Fatalf("send raw: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- scenarios ---

func TestServe_MissingInstanceID(t *testing.T) {
	var calls atomic.Int32
	dialer := &fakeDialer{}
	h := newHarness(t, running(&calls), dialer)

	c := h.dial("")
	c.expect(TypeError, "Missing instanceId parameter")
	if code := c.closeStatus(); code != CloseMissingInstance {
		t.Errorf("close code = %d, want %d", code, CloseMissingInstance)
	}
	if err := h.serveResult(); !errors.Is(err, errMissingInstanceID) {
		t.Errorf("Serve() = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("resolver called %d times", calls.Load())
	}
	if len(dialer.Hosts()) != 0 {
		t.Error("dialer should not be called")
	}
}

func TestServe_ResolveFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantText string
		wantCode websocket.StatusCode
	}{
		{"not found", &resolver.Error{Kind: resolver.NotFound, InstanceID: "i-gone"}, "Instance not found", CloseNotFound},
		{"stopped", &resolver.Error{Kind: resolver.NotRunning, State: "stopped"}, "Instance is stopped, not running", CloseNotRunning},
		{"no address", &resolver.Error{Kind: resolver.AddressUnavailable}, "Instance has no public IP yet", CloseNotRunning},
		{"backend", errors.New("describe instance i-x: throttled"), "describe instance i-x: throttled", CloseResolverFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &fakeDialer{}
			h := newHarness(t, failing(tt.err), dialer)

			c := h.dial("?instanceId=i-x")
			c.expect(TypeError, tt.wantText)
			if code := c.closeStatus(); code != tt.wantCode {
				t.Errorf("close code = %d, want %d", code, tt.wantCode)
			}
			if err := h.serveResult(); err == nil {
				t.Error("Serve() should report the failure")
			}
			if len(dialer.Hosts()) != 0 {
				t.Error("dialer should not be called after a resolve failure")
			}
			if h.reg.Count() != 0 {
				t.Errorf("expected empty registry, got %d", h.reg.Count())
			}
		})
	}
}

func TestServe_DialFailure(t *testing.T) {
	dialer := &fakeDialer{err: &shell.Error{Stage: shell.StageDial, Addr: testAddr + ":22", Err: errors.New("connection refused")}}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeError, "SSH error: connection refused")
	if code := c.closeStatus(); code != CloseShellFailure {
		t.Errorf("close code = %d, want %d", code, CloseShellFailure)
	}
	h.serveResult()
	if hosts := dialer.Hosts(); len(hosts) != 1 || hosts[0] != testAddr {
		t.Errorf("expected one dial to %s, got %v", testAddr, hosts)
	}
}

func TestServe_ShellFailure(t *testing.T) {
	dialer := &fakeDialer{configure: func(tr *fakeTransport) {
		tr.openErr = &shell.Error{Stage: shell.StagePty, Err: errors.New("pty request rejected")}
	}}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeError, "Shell error: pty request rejected")
	if code := c.closeStatus(); code != CloseShellFailure {
		t.Errorf("close code = %d, want %d", code, CloseShellFailure)
	}
	h.serveResult()

	tr := dialer.Transport(t, 0)
	if !tr.closed.Load() {
		t.Error("transport should be released after shell failure")
	}
	if len(dialer.Hosts()) != 1 {
		t.Errorf("expected no retry, got %d dials", len(dialer.Hosts()))
	}
}

func TestServe_RelayAndGracefulExit(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	tr := dialer.Transport(t, 0)
	st := tr.stream
	s := h.session()
	if s.State() != Active {
		t.Fatalf("state = %s, want active", s.State())
	}

	c.send(ClientMessage{Type: TypeInput, Data: "ls -la\n"})
	eventually(t, "input relayed", func() bool { return st.Input() == "ls -la\n" })

	c.send(ClientMessage{Type: TypeResize, Cols: 120, Rows: 40})
	eventually(t, "resize relayed", func() bool {
		r := st.Resizes()
		return len(r) == 1 && r[0] == [2]int{120, 40}
	})

	// Chunks arrive one message each, in order.
	st.emit(t, "one")
	c.expect(TypeOutput, "one")
	st.emit(t, "two")
	c.expect(TypeOutput, "two")

	st.emit(t, "bye\r\n")
	c.expect(TypeOutput, "bye\r\n")
	st.exit(nil)
	c.expect(TypeExit, "Shell closed")
	if code := c.closeStatus(); code != websocket.StatusNormalClosure {
		t.Errorf("close code = %d, want normal closure", code)
	}

	if err := h.serveResult(); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	if s.State() != Closed {
		t.Errorf("final state = %s, want closed", s.State())
	}
	if !st.isClosed() || !tr.closed.Load() {
		t.Error("stream and transport should both be released")
	}
	if h.reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", h.reg.Count())
	}

	snap := s.Snapshot()
	if snap.BytesIn != int64(len("ls -la\n")) || snap.BytesOut != int64(len("onetwobye\r\n")) {
		t.Errorf("unexpected byte counters: in=%d out=%d", snap.BytesIn, snap.BytesOut)
	}
	if snap.ActiveSince == nil || snap.Address != testAddr {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestServe_OutputSplitAcrossUTF8Boundary(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	st := dialer.Transport(t, 0).stream

	st.emit(t, "caf\xc3")
	c.expect(TypeOutput, "caf")
	st.emit(t, "\xa9 \xe2\x82")
	c.expect(TypeOutput, "é ")
	st.emit(t, "\xac")
	c.expect(TypeOutput, "€")

	// A dangling lead byte is flushed when the shell ends.
	st.emit(t, "x\xe2")
	c.expect(TypeOutput, "x")
	st.exit(nil)
	msg := c.next()
	if msg.Type != TypeOutput || msg.Data != "�" {
		t.Errorf("expected flushed replacement char, got %+v", msg)
	}
	c.expect(TypeExit, "Shell closed")
}

func TestServe_PtyGeometry(t *testing.T) {
	tests := []struct {
		query          string
		wantCols, want int
	}{
		{"?instanceId=i-demo", 80, 30},
		{"?instanceId=i-demo&cols=120&rows=40", 120, 40},
		{"?instanceId=i-demo&cols=9999&rows=0", 500, 30},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			dialer := &fakeDialer{}
			h := newHarness(t, running(nil), dialer)
			c := h.dial(tt.query)
			c.expect(TypeConnected, "SSH connection established")

			ptys := dialer.Transport(t, 0).Ptys()
			want := shell.PtyRequest{Term: "xterm-256color", Cols: tt.wantCols, Rows: tt.want}
			if len(ptys) != 1 || ptys[0] != want {
				t.Errorf("pty = %+v, want %+v", ptys, want)
			}
		})
	}
}

func TestServe_MessagesBeforeActiveAreDropped(t *testing.T) {
	gate := make(chan struct{})
	dialer := &fakeDialer{configure: func(tr *fakeTransport) { tr.openGate = gate }}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	s := h.session()
	eventually(t, "shell negotiation", func() bool { return s.State() == ShellNegotiating })

	c.send(ClientMessage{Type: TypeInput, Data: "early"})
	c.send(ClientMessage{Type: TypeResize, Cols: 100, Rows: 50})
	time.Sleep(100 * time.Millisecond)
	close(gate)

	c.expect(TypeConnected, "SSH connection established")
	st := dialer.Transport(t, 0).stream
	c.send(ClientMessage{Type: TypeInput, Data: "late"})
	eventually(t, "late input", func() bool { return st.Input() != "" })
	if st.Input() != "late" {
		t.Errorf("input = %q, want only %q", st.Input(), "late")
	}
	if len(st.Resizes()) != 0 {
		t.Errorf("early resize should be ignored, got %v", st.Resizes())
	}
}

func TestServe_MalformedFramesAreIgnored(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	st := dialer.Transport(t, 0).stream

	c.sendRaw("{not json")
	c.sendRaw(`{"type":"explode"}`)
	c.send(ClientMessage{Type: TypeResize, Cols: -1, Rows: 10})
	c.send(ClientMessage{Type: TypeInput, Data: "ok"})

	eventually(t, "input after bad frames", func() bool { return st.Input() == "ok" })

	// Bad frames get no reply: the next message is the output that follows.
	st.emit(t, "ok\r\n")
	c.expect(TypeOutput, "ok\r\n")
	if s := h.session(); s.State() != Active {
		t.Errorf("state = %s, want active", s.State())
	}
	if len(st.Resizes()) != 0 {
		t.Errorf("invalid resize forwarded: %v", st.Resizes())
	}
}

func TestServe_ClientDisconnectTearsDownShell(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	tr := dialer.Transport(t, 0)
	s := h.session()

	c.conn.Close(websocket.StatusNormalClosure, "")

	if err := h.serveResult(); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	if !tr.stream.isClosed() || !tr.closed.Load() {
		t.Error("shell should be released once the client leaves")
	}
	if s.State() != Closed {
		t.Errorf("final state = %s, want closed", s.State())
	}
	if s.Err() != nil {
		t.Errorf("client close is not a failure: %v", s.Err())
	}
}

func TestServe_ClientDisconnectDuringNegotiation(t *testing.T) {
	dialer := &fakeDialer{block: true}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	s := h.session()
	eventually(t, "connecting", func() bool { return s.State() == Connecting })

	c.conn.CloseNow()

	if err := h.serveResult(); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	if s.State() != Closed {
		t.Errorf("final state = %s, want closed", s.State())
	}
}

func TestServe_MidSessionTransportError(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	st := dialer.Transport(t, 0).stream
	s := h.session()

	st.emit(t, "partial")
	c.expect(TypeOutput, "partial")
	st.exit(&shell.Error{Stage: shell.StageSession, Addr: testAddr + ":22", Err: errors.New("connection reset by peer")})

	c.expect(TypeError, "SSH error: connection reset by peer")
	if code := c.closeStatus(); code != CloseShellFailure {
		t.Errorf("close code = %d, want %d", code, CloseShellFailure)
	}
	if err := h.serveResult(); err == nil {
		t.Error("Serve() should report the transport error")
	}
	if s.State() != Failed {
		t.Errorf("final state = %s, want failed", s.State())
	}
	if s.Snapshot().LastError == "" {
		t.Error("snapshot should carry the last error")
	}
}

func TestSession_ExplicitClose(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	s := h.session()

	go s.Close("")
	c.expect(TypeExit, "Session closed")
	if code := c.closeStatus(); code != websocket.StatusNormalClosure {
		t.Errorf("close code = %d, want normal closure", code)
	}
	if err := h.serveResult(); err != nil {
		t.Errorf("Serve() = %v", err)
	}

	// A second close is a no-op.
	if err := s.Close("again"); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if !dialer.Transport(t, 0).stream.isClosed() {
		t.Error("stream should be closed")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	c := h.dial("?instanceId=i-demo")
	c.expect(TypeConnected, "SSH connection established")
	h.session()

	go h.reg.CloseAll("Server shutting down")
	c.expect(TypeExit, "Server shutting down")
	c.closeStatus()
	h.serveResult()
	if h.reg.Count() != 0 {
		t.Errorf("expected empty registry, got %d", h.reg.Count())
	}
}

func TestServe_SameInstanceGetsIndependentShells(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(t, running(nil), dialer)

	first := h.dial("?instanceId=i-demo")
	first.expect(TypeConnected, "SSH connection established")
	second := h.dial("?instanceId=i-demo")
	second.expect(TypeConnected, "SSH connection established")

	if got := len(h.reg.ForInstance("i-demo")); got != 2 {
		t.Fatalf("expected 2 sessions for i-demo, got %d", got)
	}
	a, b := dialer.Transport(t, 0).stream, dialer.Transport(t, 1).stream

	first.send(ClientMessage{Type: TypeInput, Data: "tab one"})
	second.send(ClientMessage{Type: TypeInput, Data: "tab two"})
	eventually(t, "both inputs", func() bool { return a.Input() != "" && b.Input() != "" })
	if a.Input() != "tab one" || b.Input() != "tab two" {
		t.Errorf("inputs crossed: a=%q b=%q", a.Input(), b.Input())
	}

	// Ending one tab leaves the other running.
	first.conn.Close(websocket.StatusNormalClosure, "")
	h.serveResult()
	if b.isClosed() {
		t.Error("second shell should survive the first tab closing")
	}
	b.emit(t, "still here")
	second.expect(TypeOutput, "still here")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Dialer: &fakeDialer{}}); err == nil {
		t.Error("expected error without resolver")
	}
	if _, err := New(Config{Resolver: running(nil)}); err == nil {
		t.Error("expected error without dialer")
	}
}
