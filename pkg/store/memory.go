package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// selfWriteWindow is how long after one of our own file writes the watcher
// ignores change events for that file.
const selfWriteWindow = 2 * time.Second

// Stem returns the canonical storage key for a keyword set: the keywords
// sorted and dash-joined. The stem doubles as the file name base.
func Stem(keywords []string) string {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	return strings.Join(sorted, "-")
}

// Version derives the short fingerprint of a memory from its identity and
// content. It is a pure function, so two processes reading the same file
// compute the same version without coordination.
func Version(stem, content string) string {
	sum := sha256.Sum256([]byte(stem + "|" + content))
	return hex.EncodeToString(sum[:])[:8]
}

// Snapshot is an immutable view of a memory at one version.
type Snapshot struct {
	Keywords []string `json:"keywords"`
	Version  string   `json:"version"`
	Content  string   `json:"content"`
}

// Memory is one knowledge unit: an immutable keyword identity plus mutable
// content persisted as a single markdown file. Every read-modify-write
// sequence on an entity serializes on its lock; the loaded flag is atomic
// so listings can observe it without contending on the lock.
type Memory struct {
	keywords []string
	stem     string
	path     string

	mu             sync.Mutex
	content        string
	loaded         atomic.Bool
	selfWriteUntil time.Time
}

// newMemory builds a Loaded entity whose content has not been persisted
// yet.
func newMemory(dir string, keywords []string, content string) *Memory {
	m := openMemory(dir, keywords)
	m.content = content
	m.loaded.Store(true)
	return m
}

// openMemory registers an entity for an existing file without reading it.
func openMemory(dir string, keywords []string) *Memory {
	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)
	stem := strings.Join(sorted, "-")

	return &Memory{
		keywords: sorted,
		stem:     stem,
		path:     filepath.Join(dir, stem+".md"),
	}
}

// Keywords returns a copy of the identity keywords in sorted order.
func (m *Memory) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Stem returns the storage key.
func (m *Memory) Stem() string {
	return m.stem
}

// Path returns the backing file path.
func (m *Memory) Path() string {
	return m.path
}

// Loaded reports whether content is resident without taking the entity
// lock.
func (m *Memory) Loaded() bool {
	return m.loaded.Load()
}

// Content returns the body, loading it from disk on first access.
func (m *Memory) Content() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	return m.content, nil
}

// Version returns the current fingerprint, loading content if needed.
func (m *Memory) Version() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	return m.versionLocked(), nil
}

// Snapshot returns an immutable view of the entity.
func (m *Memory) Snapshot() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return Snapshot{}, err
	}
	return m.snapshotLocked(), nil
}

// CheckVersion compares a caller-supplied version token with the current
// one.
func (m *Memory) CheckVersion(expected string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return err
	}
	return m.checkVersionLocked(expected)
}

// loadLocked performs the one-time disk read for an Unloaded entity. The
// caller must hold the entity lock.
func (m *Memory) loadLocked() error {
	if m.loaded.Load() {
		return nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return infraErr(fmt.Sprintf("read memory file %s", filepath.Base(m.path)), err)
	}

	m.content = string(data)
	m.loaded.Store(true)
	return nil
}

func (m *Memory) versionLocked() string {
	return Version(m.stem, m.content)
}

func (m *Memory) snapshotLocked() Snapshot {
	return Snapshot{Keywords: m.Keywords(), Version: m.versionLocked(), Content: m.content}
}

func (m *Memory) checkVersionLocked(expected string) error {
	if current := m.versionLocked(); expected != current {
		return &ErrVersionMismatch{Supplied: expected, Current: current}
	}
	return nil
}

// replaceFragmentLocked swaps the single occurrence of anchor for its
// replacement and returns the result without persisting it. Zero or
// multiple occurrences are rejected with the exact count.
func (m *Memory) replaceFragmentLocked(anchor, replacement string) (string, error) {
	count := strings.Count(m.content, anchor)
	if count != 1 {
		return "", &ErrFragment{Anchor: anchor, Count: count}
	}
	return strings.Replace(m.content, anchor, replacement, 1), nil
}

// setContentLocked validates new content, persists it, and only then
// updates the resident copy. Any failure leaves the entity untouched.
func (m *Memory) setContentLocked(ctx context.Context, oracle QualityOracle, content string) error {
	if err := validateContent(ctx, oracle, m.keywords, content); err != nil {
		return err
	}
	if err := m.writeFileLocked(content); err != nil {
		return err
	}

	m.content = content
	m.loaded.Store(true)
	return nil
}

// writeFileLocked persists content durably: temp file in the same
// directory, fsync, then rename over the target.
func (m *Memory) writeFileLocked(content string) error {
	tempPath := m.path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return infraErr("create temp memory file", err)
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(tempPath)
		return infraErr("write memory file", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return infraErr("sync memory file", err)
	}
	file.Close()

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return infraErr("replace memory file", err)
	}

	m.selfWriteUntil = time.Now().Add(selfWriteWindow)
	return nil
}

// removeFileLocked deletes the backing file. Absence is not an error.
func (m *Memory) removeFileLocked() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return infraErr("remove memory file", err)
	}
	m.selfWriteUntil = time.Now().Add(selfWriteWindow)
	return nil
}

// invalidate drops resident content so the next access reloads it from
// disk. Best effort: a busy entity or a write the store itself just made
// is left alone.
func (m *Memory) invalidate() bool {
	if !m.mu.TryLock() {
		return false
	}
	defer m.mu.Unlock()

	if time.Now().Before(m.selfWriteUntil) {
		return false
	}
	if !m.loaded.Load() {
		return false
	}

	m.content = ""
	m.loaded.Store(false)
	return true
}
