package shell

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// DefaultPort is the standard SSH port.
	DefaultPort = 22

	// DefaultReadyTimeout bounds transport setup plus PTY negotiation.
	DefaultReadyTimeout = 30 * time.Second

	// DefaultTerm is the terminal type requested for the PTY.
	DefaultTerm = "xterm-256color"

	DefaultCols = 80
	DefaultRows = 30
)

// MaxCols and MaxRows cap the PTY geometry accepted from clients.
const (
	MaxCols = 500
	MaxRows = 500
)

// keepaliveInterval is how often an established transport is probed.
const keepaliveInterval = 30 * time.Second

// PtyRequest describes the pseudo-terminal requested for a shell.
type PtyRequest struct {
	Term string
	Cols int
	Rows int
}

func (p PtyRequest) withDefaults() PtyRequest {
	if p.Term == "" {
		p.Term = DefaultTerm
	}
	if p.Cols <= 0 {
		p.Cols = DefaultCols
	}
	if p.Rows <= 0 {
		p.Rows = DefaultRows
	}
	p.Cols = min(p.Cols, MaxCols)
	p.Rows = min(p.Rows, MaxRows)
	return p
}

// Config holds the process-wide SSH credentials and negotiation settings.
// The host is not part of Config: it comes from address resolution per session.
type Config struct {
	Port         int
	Username     string
	PrivateKey   []byte // PEM encoded
	ReadyTimeout time.Duration
	Pty          PtyRequest

	// HostKeyCallback verifies the remote host key. Nil accepts any key,
	// which is the expected setup for freshly launched instances.
	HostKeyCallback ssh.HostKeyCallback
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.HostKeyCallback == nil {
		c.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	c.Pty = c.Pty.withDefaults()
	return c
}

// Validate checks that the credentials are usable.
func (c Config) Validate() error {
	if c.Username == "" {
		return errors.New("ssh username is required")
	}
	if len(c.PrivateKey) == 0 {
		return errors.New("ssh private key is required")
	}
	if _, err := ssh.ParsePrivateKey(c.PrivateKey); err != nil {
		return fmt.Errorf("parse ssh private key: %w", err)
	}
	return nil
}

func (c Config) clientConfig() (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &ssh.ClientConfig{
		User:            c.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: c.HostKeyCallback,
		Timeout:         c.ReadyTimeout,
	}, nil
}
