package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harun/mnemo/pkg/match"
	"github.com/rs/zerolog"
)

// MemoriesDirName is the per-project directory holding memory files.
const MemoriesDirName = ".memories"

// Config configures a Store.
type Config struct {
	ProjectDir string
	Oracle     QualityOracle
	Logger     zerolog.Logger
}

// Store maps keyword sets to memories for one project, backed by markdown
// files under the project's memories directory. The structural lock guards
// only map shape; content mutation serializes on each entity's own lock
// and never blocks operations on other keys.
type Store struct {
	dir    string
	oracle QualityOracle
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*Memory
	order   []string
}

// EnsureDir creates the memories directory under a project root if needed
// and returns its path.
func EnsureDir(projectDir string) (string, error) {
	if strings.TrimSpace(projectDir) == "" {
		return "", fmt.Errorf("project directory cannot be empty")
	}

	dir := filepath.Join(projectDir, MemoriesDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create memories directory: %w", err)
	}
	return dir, nil
}

// New builds a Store for a project and scans its persisted memories.
// Files with unparsable names are skipped, never fatal.
func New(cfg Config) (*Store, error) {
	dir, err := EnsureDir(cfg.ProjectDir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:     dir,
		oracle:  cfg.Oracle,
		logger:  cfg.Logger,
		entries: make(map[string]*Memory),
	}
	if err := s.scan(); err != nil {
		return nil, err
	}

	s.logger.Info().Str("dir", dir).Int("memories", len(s.order)).Msg("Memory store loaded")
	return s, nil
}

// Dir returns the memories directory this store is backed by.
func (s *Store) Dir() string {
	return s.dir
}

// Count returns the number of registered memories.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// scan registers an Unloaded entity for every valid memory file on disk.
func (s *Store) scan() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read memories directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}

		stem := strings.TrimSuffix(f.Name(), ".md")
		keywords, ok := parseStem(stem)
		if !ok {
			s.logger.Warn().Str("file", f.Name()).Msg("Skipping memory file with invalid name")
			continue
		}

		s.entries[stem] = openMemory(s.dir, keywords)
		s.order = append(s.order, stem)
	}
	return nil
}

// parseStem splits a file stem back into its keyword set. Only canonical
// stems round-trip: valid keywords in sorted order.
func parseStem(stem string) ([]string, bool) {
	if stem == "" {
		return nil, false
	}

	keywords := strings.Split(stem, "-")
	if ValidateKeywords(keywords) != nil {
		return nil, false
	}
	if Stem(keywords) != stem {
		return nil, false
	}
	return keywords, true
}

// ListEntry is one row of a store listing.
type ListEntry struct {
	Keywords []string `json:"keywords"`
	Stem     string   `json:"stem"`
	Loaded   bool     `json:"loaded"`
}

// List returns every keyword set in registration order.
func (s *Store) List() []ListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ListEntry, 0, len(s.order))
	for _, stem := range s.order {
		m := s.entries[stem]
		out = append(out, ListEntry{Keywords: m.Keywords(), Stem: stem, Loaded: m.Loaded()})
	}
	return out
}

// SearchResult pairs a listing row with its match score.
type SearchResult struct {
	Keywords []string `json:"keywords"`
	Stem     string   `json:"stem"`
	Score    int      `json:"score"`
}

// Search ranks all keyword sets against the query tokens, best first.
// Zero-score sets are omitted; equal scores keep registration order.
func (s *Store) Search(query []string) []SearchResult {
	s.mu.RLock()
	stems := append([]string(nil), s.order...)
	sets := make([][]string, len(stems))
	for i, stem := range stems {
		sets[i] = s.entries[stem].Keywords()
	}
	s.mu.RUnlock()

	matches := match.Rank(query, sets)
	out := make([]SearchResult, 0, len(matches))
	for _, mt := range matches {
		out = append(out, SearchResult{Keywords: sets[mt.Index], Stem: stems[mt.Index], Score: mt.Score})
	}
	return out
}

// SearchText tokenizes free text and ranks keyword sets against it.
func (s *Store) SearchText(interest string) []SearchResult {
	return s.Search(match.Tokenize(interest))
}

// find resolves a keyword set to its entity. A miss carries the closest
// existing stems as a hint.
func (s *Store) find(keywords []string) (*Memory, error) {
	if err := ValidateKeywords(keywords); err != nil {
		return nil, err
	}

	stem := Stem(keywords)
	s.mu.RLock()
	m, ok := s.entries[stem]
	s.mu.RUnlock()

	if !ok {
		return nil, &ErrNotFound{Stem: stem, Nearest: s.nearest(keywords, 3)}
	}
	return m, nil
}

// nearest returns up to n stems ranked closest to the query keywords.
func (s *Store) nearest(query []string, n int) []string {
	results := s.Search(query)
	if len(results) > n {
		results = results[:n]
	}

	stems := make([]string, len(results))
	for i, r := range results {
		stems[i] = r.Stem
	}
	return stems
}

// Read returns a snapshot of the memory stored under a keyword set.
func (s *Store) Read(keywords []string) (Snapshot, error) {
	m, err := s.find(keywords)
	if err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot()
}

// Create validates a new memory end to end, then registers and persists
// it. Validation runs before any lock is taken; the structural lock is
// held only for the map insert.
func (s *Store) Create(ctx context.Context, keywords []string, content string) (Snapshot, error) {
	if err := ValidateKeywords(keywords); err != nil {
		return Snapshot{}, err
	}
	if err := validateContent(ctx, s.oracle, keywords, content); err != nil {
		return Snapshot{}, err
	}

	m := newMemory(s.dir, keywords, content)

	s.mu.Lock()
	if _, exists := s.entries[m.stem]; exists {
		s.mu.Unlock()
		return Snapshot{}, &ErrConflict{Stem: m.stem}
	}
	s.entries[m.stem] = m
	s.order = append(s.order, m.stem)
	s.mu.Unlock()

	m.mu.Lock()
	err := m.writeFileLocked(m.content)
	m.mu.Unlock()
	if err != nil {
		s.removeEntry(m.stem)
		return Snapshot{}, err
	}

	s.logger.Info().Str("stem", m.stem).Msg("Memory created")
	return m.Snapshot()
}

// Update replaces a single anchored fragment of a memory's content and
// revalidates the result. The whole read-modify-write sequence runs under
// the entity lock; the caller's version token guards against lost updates.
func (s *Store) Update(ctx context.Context, keywords []string, expectedVersion, anchor, replacement string) (Snapshot, error) {
	m, err := s.find(keywords)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := m.checkVersionLocked(expectedVersion); err != nil {
		return Snapshot{}, err
	}

	updated, err := m.replaceFragmentLocked(anchor, replacement)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.setContentLocked(ctx, s.oracle, updated); err != nil {
		return Snapshot{}, err
	}

	s.logger.Info().Str("stem", m.stem).Str("version", m.versionLocked()).Msg("Memory updated")
	return m.snapshotLocked(), nil
}

// Reassign moves a memory to a new keyword set, revalidating the content
// under its new identity. The old entry stays fully intact unless the
// final swap commits.
func (s *Store) Reassign(ctx context.Context, oldKeywords []string, expectedVersion string, newKeywords []string) (Snapshot, error) {
	m, err := s.find(oldKeywords)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ValidateKeywords(newKeywords); err != nil {
		return Snapshot{}, err
	}

	newStem := Stem(newKeywords)
	s.mu.RLock()
	_, taken := s.entries[newStem]
	s.mu.RUnlock()
	if taken {
		return Snapshot{}, &ErrConflict{Stem: newStem}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return Snapshot{}, err
	}
	if err := m.checkVersionLocked(expectedVersion); err != nil {
		return Snapshot{}, err
	}
	if err := validateContent(ctx, s.oracle, newKeywords, m.content); err != nil {
		return Snapshot{}, err
	}

	replacement := newMemory(s.dir, newKeywords, m.content)
	replacement.mu.Lock()
	err = replacement.writeFileLocked(replacement.content)
	replacement.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	// Final swap: entity lock is already held, the structural lock is
	// taken only for the map mutation itself.
	s.mu.Lock()
	if _, exists := s.entries[newStem]; exists {
		s.mu.Unlock()
		replacement.mu.Lock()
		removeErr := replacement.removeFileLocked()
		replacement.mu.Unlock()
		if removeErr != nil {
			s.logger.Warn().Err(removeErr).Str("stem", newStem).Msg("Failed to clean up file after reassign conflict")
		}
		return Snapshot{}, &ErrConflict{Stem: newStem}
	}
	delete(s.entries, m.stem)
	for i, stem := range s.order {
		if stem == m.stem {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.entries[newStem] = replacement
	s.order = append(s.order, newStem)
	s.mu.Unlock()

	if err := m.removeFileLocked(); err != nil {
		s.logger.Warn().Err(err).Str("stem", m.stem).Msg("Failed to remove old memory file after reassign")
	}

	s.logger.Info().Str("from", m.stem).Str("to", newStem).Msg("Memory keywords reassigned")
	return replacement.Snapshot()
}

// Delete removes a memory after a version check. The backing file goes
// first; the map entry is removed under the structural lock.
func (s *Store) Delete(keywords []string, expectedVersion string) error {
	m, err := s.find(keywords)
	if err != nil {
		return err
	}
	if err := m.CheckVersion(expectedVersion); err != nil {
		return err
	}

	m.mu.Lock()
	err = m.removeFileLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	s.removeEntry(m.stem)
	s.logger.Info().Str("stem", m.stem).Msg("Memory deleted")
	return nil
}

// removeEntry drops a stem from the map and the registration order.
func (s *Store) removeEntry(stem string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, stem)
	for i, st := range s.order {
		if st == stem {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Resync reconciles the map with the directory after external changes:
// stems appearing on disk are registered Unloaded, vanished stems are
// dropped. Runs the directory read outside the structural lock.
func (s *Store) Resync() (added, removed int) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Resync failed to read memories directory")
		return 0, 0
	}

	onDisk := make(map[string][]string)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		stem := strings.TrimSuffix(f.Name(), ".md")
		if keywords, ok := parseStem(stem); ok {
			onDisk[stem] = keywords
		}
	}

	s.mu.Lock()
	for stem, keywords := range onDisk {
		if _, exists := s.entries[stem]; !exists {
			s.entries[stem] = openMemory(s.dir, keywords)
			s.order = append(s.order, stem)
			added++
		}
	}
	for i := 0; i < len(s.order); {
		stem := s.order[i]
		if _, exists := onDisk[stem]; !exists {
			delete(s.entries, stem)
			s.order = append(s.order[:i], s.order[i+1:]...)
			removed++
			continue
		}
		i++
	}
	s.mu.Unlock()

	if added > 0 || removed > 0 {
		s.logger.Info().Int("added", added).Int("removed", removed).Msg("Memory store resynced with disk")
	}
	return added, removed
}

// entity returns the registered entity for a stem, if any.
func (s *Store) entity(stem string) (*Memory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[stem]
	return m, ok
}
