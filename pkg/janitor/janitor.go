package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/harun/mnemo/pkg/lockfile"
)

const (
	// DefaultSchedule is the sweep cadence when none is configured.
	DefaultSchedule = "@hourly"

	// DefaultRetentionDays is how long an inactive project runtime dir
	// is kept before removal.
	DefaultRetentionDays = 7
)

// Report summarizes one sweep.
type Report struct {
	StaleLocks  int
	RemovedDirs int
}

// Sweep walks the per-project runtime dirs under stateDir and cleans
// up after backends that exited without releasing their lock. A lock
// that is unlocked or whose recorded PID is dead is removed; the whole
// dir goes too once its log has not been written within the retention
// window.
func Sweep(stateDir string, retention time.Duration) (Report, error) {
	var report Report

	root := lockfile.ProjectsRoot(stateDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, fmt.Errorf("read projects dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		staleLock, removedDir := sweepProject(dir, retention)
		if staleLock {
			report.StaleLocks++
		}
		if removedDir {
			report.RemovedDirs++
		}
	}

	return report, nil
}

type lockState int

const (
	lockAbsent lockState = iota
	lockStale
	lockLive
)

func classifyLock(path string) lockState {
	if _, err := os.Stat(path); err != nil {
		return lockAbsent
	}

	held, err := lockfile.Probe(path)
	if err != nil {
		return lockLive
	}
	if !held {
		return lockStale
	}

	info, err := lockfile.ReadInfo(path)
	if err != nil {
		// Held but not yet readable: the owner may still be writing
		// its info. Leave it for the next sweep.
		return lockLive
	}
	if !lockfile.ProcessAlive(info.PID) {
		return lockStale
	}
	return lockLive
}

func sweepProject(dir string, retention time.Duration) (staleLock, removedDir bool) {
	lockPath := filepath.Join(dir, lockfile.LockFileName)

	switch classifyLock(lockPath) {
	case lockLive:
		return false, false
	case lockStale:
		if err := lockfile.Remove(lockPath); err != nil {
			log.Warn().Err(err).Str("path", lockPath).Msg("Failed to remove stale lock")
			return false, false
		}
		staleLock = true
	case lockAbsent:
	}

	logPath := filepath.Join(dir, lockfile.LogFileName)
	if info, err := os.Stat(logPath); err == nil {
		if time.Since(info.ModTime()) < retention {
			return staleLock, false
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove project runtime dir")
		return staleLock, false
	}
	return staleLock, true
}

// Config configures a scheduled janitor.
type Config struct {
	StateDir  string
	Schedule  string
	Retention time.Duration
}

// Service runs Sweep on a cron schedule inside the backend process.
type Service struct {
	stateDir  string
	retention time.Duration
	sched     cron.Schedule
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a janitor service. The schedule accepts standard
// five-field cron expressions plus descriptors like @hourly.
func NewService(cfg Config) (*Service, error) {
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("state dir is required")
	}

	expr := cfg.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetentionDays * 24 * time.Hour
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", expr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		stateDir:  cfg.StateDir,
		retention: retention,
		sched:     sched,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Start begins scheduled sweeping in the background.
func (s *Service) Start() {
	go s.run()
}

func (s *Service) run() {
	defer close(s.done)

	for {
		next := s.sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			report, err := Sweep(s.stateDir, s.retention)
			if err != nil {
				log.Warn().Err(err).Msg("Janitor sweep failed")
				continue
			}
			if report.StaleLocks > 0 || report.RemovedDirs > 0 {
				log.Info().
					Int("staleLocks", report.StaleLocks).
					Int("removedDirs", report.RemovedDirs).
					Msg("Janitor sweep completed")
			}
		}
	}
}

// Stop cancels scheduled sweeping and waits for the loop to exit.
func (s *Service) Stop() {
	s.cancel()
	<-s.done
}
