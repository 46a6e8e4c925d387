package backend

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/mnemo/pkg/janitor"
	"github.com/harun/mnemo/pkg/llm"
	"github.com/harun/mnemo/pkg/lockfile"
	"github.com/harun/mnemo/pkg/oracle"
	"github.com/harun/mnemo/pkg/store"
)

// Config assembles one backend process.
type Config struct {
	ProjectDir string
	StateDir   string

	Provider  llm.Provider
	Model     string
	FastModel string

	OracleTimeout time.Duration
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	ShutdownGrace time.Duration

	JanitorSchedule  string
	JanitorRetention time.Duration

	// ApplyLogLevel lets the /log_level route adjust the process
	// logger. Optional.
	ApplyLogLevel func(level string)

	Logger zerolog.Logger
}

// Run starts the backend for one project and blocks until the idle
// monitor fires, ctx is cancelled, or the listener fails. At most one
// backend runs per project: losing the lock race is a clean no-op exit.
func Run(ctx context.Context, cfg Config) error {
	if cfg.ProjectDir == "" {
		return fmt.Errorf("project dir is required")
	}
	if cfg.StateDir == "" {
		return fmt.Errorf("state dir is required")
	}
	if cfg.Provider == nil {
		return fmt.Errorf("provider is required")
	}

	lockPath, err := lockfile.Path(cfg.StateDir, cfg.ProjectDir)
	if err != nil {
		return fmt.Errorf("resolve lock path: %w", err)
	}

	lock := lockfile.New(lockPath)
	acquired, err := lock.Acquire()
	if err != nil {
		return fmt.Errorf("acquire backend lock: %w", err)
	}
	if !acquired {
		cfg.Logger.Warn().Str("project", cfg.ProjectDir).Msg("Another backend instance is already running")
		return nil
	}
	defer func() {
		if err := lock.Release(); err != nil {
			cfg.Logger.Warn().Err(err).Msg("Failed to release backend lock")
		}
	}()

	cfg.Logger.Info().Str("project", cfg.ProjectDir).Msg("Starting backend")

	gate, err := oracle.New(oracle.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Timeout:  cfg.OracleTimeout,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create quality gate: %w", err)
	}

	st, err := store.New(store.Config{
		ProjectDir: cfg.ProjectDir,
		Oracle:     gate,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	watcher, err := store.NewWatcher(st, cfg.Logger)
	if err != nil {
		return fmt.Errorf("watch memories dir: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			cfg.Logger.Warn().Err(err).Msg("Failed to stop memories watcher")
		}
	}()

	agents, err := NewAgents(AgentConfig{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		FastModel: cfg.FastModel,
		Store:     st,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create agents: %w", err)
	}

	activity := NewActivity()

	srv, err := NewServer(ServerConfig{
		Recaller:      agents,
		Memorizer:     agents,
		Activity:      activity,
		ApplyLogLevel: cfg.ApplyLogLevel,
		ShutdownGrace: cfg.ShutdownGrace,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if err := lock.WriteInfo(lockfile.Info{PID: os.Getpid(), Port: port}); err != nil {
		ln.Close()
		return fmt.Errorf("publish backend info: %w", err)
	}

	cfg.Logger.Info().Int("port", port).Int("pid", os.Getpid()).Msg("Backend started")

	sweeper, err := janitor.NewService(janitor.Config{
		StateDir:  cfg.StateDir,
		Schedule:  cfg.JanitorSchedule,
		Retention: cfg.JanitorRetention,
	})
	if err != nil {
		ln.Close()
		return fmt.Errorf("create janitor: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	idleCtx, stopIdle := context.WithCancel(context.Background())
	defer stopIdle()
	idle := make(chan struct{})
	go activity.Watch(idleCtx, cfg.IdleTimeout, cfg.CheckInterval, cfg.Logger, func() {
		close(idle)
	})

	select {
	case <-ctx.Done():
		cfg.Logger.Info().Msg("Shutdown requested")
	case <-idle:
	case err := <-serveErr:
		if err != nil {
			return err
		}
		return fmt.Errorf("backend server exited unexpectedly")
	}

	cfg.Logger.Info().Msg("Shutting down gracefully")
	if err := srv.Stop(); err != nil {
		cfg.Logger.Warn().Err(err).Msg("Backend server shutdown failed")
	}
	return nil
}
