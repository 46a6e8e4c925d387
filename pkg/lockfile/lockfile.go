package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

const (
	projectsDirName = "projects"

	// LockFileName is the singleton lock file inside a project runtime dir.
	LockFileName = "backend.lock"

	// LogFileName is the backend log file inside a project runtime dir.
	LogFileName = "backend.log"
)

// Info is the payload written to an acquired lock file: the owning
// process ID and the loopback port its endpoint listens on.
type Info struct {
	PID  int
	Port int
}

// ProjectsRoot returns the directory under stateDir that holds one
// runtime dir per project.
func ProjectsRoot(stateDir string) string {
	return filepath.Join(stateDir, projectsDirName)
}

// RuntimeDir returns the per-project runtime directory for projectDir.
// The directory name is derived from the absolute project path, so the
// same project always maps to the same dir regardless of how the path
// was spelled.
func RuntimeDir(stateDir, projectDir string) (string, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(ProjectsRoot(stateDir), hex.EncodeToString(sum[:])[:16]), nil
}

// Path returns the lock file path for projectDir under stateDir.
func Path(stateDir, projectDir string) (string, error) {
	dir, err := RuntimeDir(stateDir, projectDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LockFileName), nil
}

// Lock is an advisory file lock marking the single backend process
// serving a project. The lock is held for the lifetime of the owning
// process and released on shutdown.
type Lock struct {
	path  string
	flock *flock.Flock
}

// New returns an unacquired lock at path.
func New(path string) *Lock {
	return &Lock{path: path, flock: flock.New(path)}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire attempts to take the lock without blocking. It returns false
// when another process already holds it.
func (l *Lock) Acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create runtime dir: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	return ok, nil
}

// WriteInfo records the owner's PID and port in the lock file. Must be
// called after Acquire succeeds.
func (l *Lock) WriteInfo(info Info) error {
	data := fmt.Sprintf("%d\n%d\n", info.PID, info.Port)
	if err := os.WriteFile(l.path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write lock info: %w", err)
	}
	return nil
}

// Release drops the lock and removes the file. Safe to call on a lock
// that was never acquired.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock %s: %w", l.path, err)
	}
	return nil
}

// ReadInfo parses the PID and port from a lock file written by another
// process. A missing, empty, or malformed file is an error; callers
// treat that as a stale lock.
func ReadInfo(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if _, err := fmt.Sscanf(string(data), "%d\n%d", &info.PID, &info.Port); err != nil {
		return Info{}, fmt.Errorf("malformed lock file %s: %w", path, err)
	}
	if info.PID <= 0 || info.Port <= 0 {
		return Info{}, fmt.Errorf("malformed lock file %s: pid=%d port=%d", path, info.PID, info.Port)
	}
	return info, nil
}

// Probe reports whether the lock at path is currently held. The file
// must already exist; probing never creates it.
func Probe(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock %s: %w", path, err)
	}
	if ok {
		_ = fl.Unlock()
		return false, nil
	}
	return true, nil
}

// Remove deletes a lock file left behind by a dead process.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ProcessAlive reports whether a process with the given PID exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix FindProcess always succeeds, so probe with signal 0.
	return process.Signal(syscall.Signal(0)) == nil
}

// Terminate stops the process with the given PID: SIGTERM first, then
// SIGKILL if it is still alive after the grace period.
func Terminate(pid int, grace time.Duration) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return nil
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := process.Signal(syscall.SIGKILL); err != nil {
		return nil
	}
	return nil
}
