package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gluk-w/shellbridge/internal/logutil"
	"github.com/gluk-w/shellbridge/internal/registry"
	"github.com/gluk-w/shellbridge/internal/shell"
)

const outputBufferSize = 32 * 1024

// Session bridges one client WebSocket to one remote shell. Sessions are
// created by Bridge.Serve; the exported methods are safe for concurrent use.
type Session struct {
	connID     string
	instanceID string
	remoteAddr string
	createdAt  time.Time

	conn         *websocket.Conn
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	address     string
	activeSince time.Time
	lastErr     error
	transport   shell.Transport
	stream      shell.Stream

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	// sendMu orders frames. Once finished is set no frame follows the
	// terminal message.
	sendMu   sync.Mutex
	finished bool

	teardownOnce sync.Once
	done         chan struct{}
}

func (s *Session) ConnID() string     { return s.connID }
func (s *Session) InstanceID() string { return s.instanceID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that ended the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Snapshot() registry.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := registry.Snapshot{
		ConnID:     s.connID,
		InstanceID: s.instanceID,
		State:      s.state.String(),
		Address:    s.address,
		RemoteAddr: s.remoteAddr,
		CreatedAt:  s.createdAt,
		BytesIn:    s.bytesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
	}
	if !s.activeSince.IsZero() {
		t := s.activeSince
		snap.ActiveSince = &t
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Close ends the session from the server side. The client receives an exit
// message carrying reason. Closing an already finished session is a no-op.
func (s *Session) Close(reason string) error {
	if reason == "" {
		reason = MsgSessionClosed
	}
	s.teardown(exitMessage(reason), websocket.StatusNormalClosure, nil, false)
	return nil
}

// advance moves the session to next. It fails once teardown has begun.
func (s *Session) advance(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(next)
}

func (s *Session) moveLocked(next State) bool {
	if !canMove(s.state, next) {
		return false
	}
	log.Printf("[bridge] session %s: %s -> %s", s.connID, s.state, next)
	s.state = next
	return true
}

// holdTransport records t unless the session is already shutting down.
func (s *Session) holdTransport(t shell.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= Closing {
		return false
	}
	s.transport = t
	return true
}

// activate records the shell stream and moves to Active.
func (s *Session) activate(st shell.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.moveLocked(Active) {
		return false
	}
	s.stream = st
	s.activeSince = time.Now()
	return true
}

// activeStream returns the shell stream, or nil before Active and after
// teardown has begun.
func (s *Session) activeStream() shell.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return nil
	}
	return s.stream
}

// send writes one frame unless the terminal message has already gone out.
func (s *Session) send(msg *ServerMessage) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finished {
		return shell.ErrClosed
	}
	return s.write(msg)
}

func (s *Session) write(msg *ServerMessage) error {
	// A cancelled context closes a coder/websocket connection, so frames are
	// written under their own deadline rather than the session context.
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}

// fail tears the session down with the user-facing form of err.
func (s *Session) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	code, text := describeFailure(err)
	log.Printf("[bridge] session %s for instance %s failed: %s", s.connID, logutil.SanitizeForLog(s.instanceID), logutil.SanitizeForLog(err.Error()))
	s.teardown(errorMessage(text), code, err, false)
}

// teardown releases both connections exactly once. msg, when non-nil, is the
// single terminal message. clientGone skips the message and the close
// handshake because the peer is no longer there.
func (s *Session) teardown(msg *ServerMessage, code websocket.StatusCode, cause error, clientGone bool) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		if cause != nil {
			s.lastErr = cause
			s.moveLocked(Failed)
		} else {
			s.moveLocked(Closing)
		}
		stream, transport := s.stream, s.transport
		s.stream, s.transport = nil, nil
		s.mu.Unlock()

		if stream != nil {
			stream.Close()
		}
		if transport != nil {
			transport.Close()
		}

		s.sendMu.Lock()
		s.finished = true
		if clientGone {
			s.conn.CloseNow()
		} else {
			reason := ""
			if msg != nil {
				if err := s.write(msg); err != nil {
					log.Printf("[bridge] session %s: sending %s message: %v", s.connID, msg.Type, err)
				}
				if msg.Type == TypeError {
					reason = logutil.Truncate(msg.Message, maxCloseReason)
				}
			}
			if err := s.conn.Close(code, reason); err != nil && !errors.Is(err, io.EOF) {
				log.Printf("[bridge] session %s: closing websocket: %v", s.connID, err)
			}
		}
		s.sendMu.Unlock()

		s.cancel()

		s.mu.Lock()
		if s.state == Closing {
			s.moveLocked(Closed)
		}
		s.mu.Unlock()
		close(s.done)
	})
}

// maxCloseReason keeps close reasons inside the 123 byte control frame limit.
const maxCloseReason = 120

// readClient relays client frames until the connection ends.
func (s *Session) readClient() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("[bridge] session %s: client gone: %v", s.connID, err)
			}
			s.teardown(nil, websocket.StatusNormalClosure, nil, true)
			return
		}
		if err := s.handleFrame(data); err != nil {
			log.Printf("[bridge] session %s: %s", s.connID, logutil.SanitizeForLog(err.Error()))
		}
	}
}

func (s *Session) handleFrame(data []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return &ProtocolError{Frame: data, Err: err}
	}

	switch msg.Type {
	case TypeInput:
		st := s.activeStream()
		if st == nil {
			return nil
		}
		if _, err := io.WriteString(st, msg.Data); err != nil {
			return err
		}
		s.bytesIn.Add(int64(len(msg.Data)))
		return nil
	case TypeResize:
		st := s.activeStream()
		if st == nil {
			return nil
		}
		if msg.Cols <= 0 || msg.Rows <= 0 {
			return &ProtocolError{Frame: data, Err: errors.New("resize needs positive cols and rows")}
		}
		return st.Resize(msg.Cols, msg.Rows)
	default:
		return &ProtocolError{Frame: data, Err: errors.New("unknown message type " + logutil.SanitizeForLog(msg.Type))}
	}
}

// sendOutput forwards one output chunk. A failed write means the client can
// no longer be reached.
func (s *Session) sendOutput(p []byte) bool {
	err := s.send(&ServerMessage{Type: TypeOutput, Data: string(p)})
	if err == nil {
		return true
	}
	if !errors.Is(err, shell.ErrClosed) {
		log.Printf("[bridge] session %s: writing output: %v", s.connID, err)
		s.teardown(nil, websocket.StatusNormalClosure, nil, true)
	}
	return false
}

// pump relays shell output to the client until the shell ends, then reports
// how it ended.
func (s *Session) pump(st shell.Stream) {
	buf := make([]byte, outputBufferSize)
	held := 0
	for {
		n, err := st.Read(buf[held:])
		if n > 0 {
			s.bytesOut.Add(int64(n))
			total := held + n
			emit := completeUTF8(buf[:total])
			if emit > 0 && !s.sendOutput(buf[:emit]) {
				return
			}
			held = copy(buf, buf[emit:total])
		}
		if err != nil {
			break
		}
	}
	if held > 0 && !s.sendOutput(buf[:held]) {
		return
	}

	select {
	case <-s.done:
		return
	default:
	}

	if err := st.Wait(); err != nil {
		if errors.Is(err, shell.ErrClosed) {
			return
		}
		s.fail(err)
		return
	}
	log.Printf("[bridge] session %s: shell exited", s.connID)
	s.teardown(exitMessage(MsgShellClosed), websocket.StatusNormalClosure, nil, false)
}
