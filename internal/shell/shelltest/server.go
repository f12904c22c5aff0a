// Package shelltest provides an in-process SSH server with PTY and shell
// support for tests of the shell and bridge packages.
//
// The fake shell records every input byte and window-change request. It
// understands two commands typed on its input:
//
//	exit\n   send exit-status Options.ExitStatus and close the channel
//	drop\n   close the whole connection without an exit status
package shelltest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// Options tweaks the fake server's behaviour.
type Options struct {
	// RejectPty makes the server refuse pty-req.
	RejectPty bool
	// Echo writes every input chunk back to the output.
	Echo bool
	// Banner is written once the shell starts.
	Banner string
	// ExitStatus is sent in response to "exit\n".
	ExitStatus uint32
}

// Size is a recorded window-change request.
type Size struct {
	Cols, Rows int
}

// Pty is a recorded pty-req.
type Pty struct {
	Term       string
	Cols, Rows int
}

// Server is a running fake SSH server.
type Server struct {
	Host string
	Port int
	// ClientKey is the PEM encoded private key the server accepts.
	ClientKey []byte
	// WrongKey is a valid PEM key the server rejects.
	WrongKey []byte

	opts     Options
	listener net.Listener

	mu       sync.Mutex
	input    bytes.Buffer
	resizes  []Size
	ptys     []Pty
	channels []ssh.Channel
	shells   int
	conns    []*ssh.ServerConn
	changed  chan struct{}
}

// Start launches a server on 127.0.0.1. It is stopped via t.Cleanup.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	hostKey := generateKey(t)
	hostSigner, err := ssh.ParsePrivateKey(hostKey)
	if err != nil {
		t.Fatalf("parse host key: %v", err)
	}
	clientKey := generateKey(t)
	clientSigner, err := ssh.ParsePrivateKey(clientKey)
	if err != nil {
		t.Fatalf("parse client key: %v", err)
	}
	authorized := clientSigner.PublicKey().Marshal()

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	s := &Server{
		Host:      host,
		Port:      port,
		ClientKey: clientKey,
		WrongKey:  generateKey(t),
		opts:      opts,
		listener:  listener,
		changed:   make(chan struct{}, 1),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handleConn(netConn, config)
		}
	}()

	t.Cleanup(func() {
		listener.Close()
		<-done
		s.mu.Lock()
		conns := s.conns
		s.mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return s
}

func generateKey(t testing.TB) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func (s *Server) handleConn(netConn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		netConn.Close()
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, sshConn)
	s.mu.Unlock()
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(sshConn, ch, requests)
	}
}

func (s *Server) handleSession(conn *ssh.ServerConn, ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	for req := range requests {
		switch req.Type {
		case "pty-req":
			var p struct {
				Term  string
				Cols  uint32
				Rows  uint32
				W     uint32
				H     uint32
				Modes string
			}
			if err := ssh.Unmarshal(req.Payload, &p); err == nil {
				s.record(func() { s.ptys = append(s.ptys, Pty{Term: p.Term, Cols: int(p.Cols), Rows: int(p.Rows)}) })
			}
			if req.WantReply {
				req.Reply(!s.opts.RejectPty, nil)
			}

		case "window-change":
			var w struct{ Cols, Rows, W, H uint32 }
			if err := ssh.Unmarshal(req.Payload, &w); err == nil {
				s.record(func() { s.resizes = append(s.resizes, Size{Cols: int(w.Cols), Rows: int(w.Rows)}) })
			}
			if req.WantReply {
				req.Reply(true, nil)
			}

		case "shell":
			if req.WantReply {
				req.Reply(true, nil)
			}
			s.record(func() {
				s.channels = append(s.channels, ch)
				s.shells++
			})
			if s.opts.Banner != "" {
				ch.Write([]byte(s.opts.Banner))
			}
			go s.readInput(conn, ch)

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) readInput(conn *ssh.ServerConn, ch ssh.Channel) {
	buf := make([]byte, 4096)
	var line strings.Builder
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.record(func() { s.input.Write(chunk) })
			if s.opts.Echo {
				ch.Write(chunk)
			}
			line.Write(chunk)
			switch {
			case strings.Contains(line.String(), "exit\n"):
				status := ssh.Marshal(struct{ Status uint32 }{s.opts.ExitStatus})
				ch.SendRequest("exit-status", false, status)
				ch.Close()
				return
			case strings.Contains(line.String(), "drop\n"):
				conn.Close()
				return
			}
			if i := strings.LastIndexByte(line.String(), '\n'); i >= 0 {
				rest := line.String()[i+1:]
				line.Reset()
				line.WriteString(rest)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) record(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Emit writes data as shell output on the most recent shell channel.
func (s *Server) Emit(data string) error {
	s.mu.Lock()
	if len(s.channels) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no shell running")
	}
	ch := s.channels[len(s.channels)-1]
	s.mu.Unlock()
	_, err := ch.Write([]byte(data))
	return err
}

// Input returns every byte received on shell input so far.
func (s *Server) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.String()
}

// Resizes returns the recorded window-change requests.
func (s *Server) Resizes() []Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Size(nil), s.resizes...)
}

// Ptys returns the recorded pty-req requests.
func (s *Server) Ptys() []Pty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pty(nil), s.ptys...)
}

// Shells returns how many shells have been started.
func (s *Server) Shells() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shells
}

// WaitFor polls cond until it holds or the timeout expires.
func (s *Server) WaitFor(t testing.TB, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-s.changed:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}
