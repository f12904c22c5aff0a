package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gluk-w/shellbridge/internal/shell"
	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":3000"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/shellbridge.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/shellbridge.log"`

	// EC2 instance lifecycle
	AWSRegion          string   `envconfig:"AWS_REGION" default:"us-east-2"`
	AMIID              string   `envconfig:"AMI_ID" default:""`
	InstanceType       string   `envconfig:"INSTANCE_TYPE" default:"c7i-flex.large"`
	SecurityGroupIDs   []string `envconfig:"SECURITY_GROUP_IDS" default:""`
	KeyName            string   `envconfig:"KEY_NAME" default:""`
	InstanceNamePrefix string   `envconfig:"INSTANCE_NAME_PREFIX" default:"gemini-session"`

	// SSH shell sessions
	SSHUsername     string `envconfig:"SSH_USERNAME" default:"ec2-user"`
	SSHKeyPath      string `envconfig:"SSH_KEY_PATH" default:"/app/data/ssh_key"`
	SSHPort         int    `envconfig:"SSH_PORT" default:"22"`
	SSHReadyTimeout string `envconfig:"SSH_READY_TIMEOUT" default:"30s"`
	TerminalType    string `envconfig:"TERMINAL_TYPE" default:"xterm-256color"`
	TerminalCols    int    `envconfig:"TERMINAL_COLS" default:"80"`
	TerminalRows    int    `envconfig:"TERMINAL_ROWS" default:"30"`

	InstanceSyncSchedule string `envconfig:"INSTANCE_SYNC_SCHEDULE" default:"@every 1m"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("SHELLBRIDGE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// ReadyTimeout parses SSHReadyTimeout, falling back to the shell default
// when the value is empty or malformed.
func (s Settings) ReadyTimeout() time.Duration {
	d, err := time.ParseDuration(s.SSHReadyTimeout)
	if err != nil || d <= 0 {
		return shell.DefaultReadyTimeout
	}
	return d
}

// ShellConfig builds the credential and PTY configuration handed to the
// bridge. The private key file is read once here.
func (s Settings) ShellConfig() (shell.Config, error) {
	keyPEM, err := os.ReadFile(s.SSHKeyPath)
	if err != nil {
		return shell.Config{}, fmt.Errorf("read ssh key %s: %w", s.SSHKeyPath, err)
	}

	cfg := shell.Config{
		Port:         s.SSHPort,
		Username:     s.SSHUsername,
		PrivateKey:   keyPEM,
		ReadyTimeout: s.ReadyTimeout(),
		Pty: shell.PtyRequest{
			Term: s.TerminalType,
			Cols: s.TerminalCols,
			Rows: s.TerminalRows,
		},
	}
	if err := cfg.Validate(); err != nil {
		return shell.Config{}, err
	}
	return cfg, nil
}
