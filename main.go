package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/gluk-w/shellbridge/internal/bridge"
	"github.com/gluk-w/shellbridge/internal/config"
	"github.com/gluk-w/shellbridge/internal/database"
	"github.com/gluk-w/shellbridge/internal/handlers"
	"github.com/gluk-w/shellbridge/internal/logging"
	"github.com/gluk-w/shellbridge/internal/orchestrator"
	"github.com/gluk-w/shellbridge/internal/registry"
	"github.com/gluk-w/shellbridge/internal/resolver"
	"github.com/gluk-w/shellbridge/internal/shell"
	"github.com/robfig/cron/v3"
)

// MsgServerShutdown is the exit message live sessions get on shutdown.
const MsgServerShutdown = "Server shutting down"

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--resolve":
			runResolveCommand()
			return
		}
	}

	config.Load()
	if err := logging.Init(config.Cfg.LogPath); err != nil {
		log.Printf("WARNING: %v", err)
	}
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: region=%s, instance_type=%s, ssh_user=%s, ssh_port=%d",
		config.Cfg.AWSRegion, config.Cfg.InstanceType, config.Cfg.SSHUsername, config.Cfg.SSHPort)

	ctx := context.Background()
	ec2Client, err := newEC2Client(ctx)
	if err != nil {
		log.Fatalf("AWS config: %v", err)
	}

	orch, err := orchestrator.NewEC2Orchestrator(ec2Client, orchestrator.LaunchConfig{
		AMIID:            config.Cfg.AMIID,
		InstanceType:     config.Cfg.InstanceType,
		SecurityGroupIDs: config.Cfg.SecurityGroupIDs,
		KeyName:          config.Cfg.KeyName,
		NamePrefix:       config.Cfg.InstanceNamePrefix,
	})
	if err != nil {
		log.Printf("WARNING: %v", err)
	} else if err := orchestrator.InitOrchestrator(orch); err != nil {
		log.Printf("WARNING: %v", err)
	}
	if config.Cfg.AMIID == "" {
		log.Printf("WARNING: SHELLBRIDGE_AMI_ID is not set; /api/spawn will fail")
	}

	// Shell credentials are read once and handed to the bridge explicitly.
	shellCfg, err := config.Cfg.ShellConfig()
	if err != nil {
		log.Fatalf("SSH config: %v", err)
	}
	dialer, err := shell.NewDialer(shellCfg)
	if err != nil {
		log.Fatalf("SSH dialer: %v", err)
	}

	res := resolver.New(ec2Client)
	sessions := registry.New()
	br, err := bridge.New(bridge.Config{
		Resolver: res,
		Dialer:   dialer,
		Registry: sessions,
		Pty:      dialer.Pty(),
	})
	if err != nil {
		log.Fatalf("Bridge init: %v", err)
	}
	handlers.Resolver = res
	handlers.Bridge = br
	handlers.Sessions = sessions
	log.Printf("Terminal bridge initialized (pty=%s %dx%d, ready_timeout=%s)",
		dialer.Pty().Term, dialer.Pty().Cols, dialer.Pty().Rows, config.Cfg.ReadyTimeout())

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(config.Cfg.InstanceSyncSchedule, func() {
		syncCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		syncInstances(syncCtx)
	}); err != nil {
		log.Printf("WARNING: instance sync disabled: %v", err)
	}
	scheduler.Start()

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: handlers.NewRouter(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	if n := sessions.CloseAll(MsgServerShutdown); n > 0 {
		log.Printf("Closed %d terminal sessions", n)
	}
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func newEC2Client(ctx context.Context) (*ec2.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(awsCfg), nil
}

// runResolveCommand prints the resolved address of one instance and exits.
func runResolveCommand() {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	instanceID := fs.String("instance-id", "", "Instance ID")
	fs.Parse(os.Args[2:])

	if *instanceID == "" {
		fmt.Fprintf(os.Stderr, "Usage: shellbridge --resolve --instance-id <id>\n")
		os.Exit(1)
	}

	config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := newEC2Client(ctx)
	if err != nil {
		log.Fatalf("AWS config: %v", err)
	}
	res, err := resolver.New(client).Resolve(ctx, *instanceID)
	if err != nil {
		log.Fatalf("Resolve %s: %v", *instanceID, err)
	}
	json.NewEncoder(os.Stdout).Encode(res)
}
