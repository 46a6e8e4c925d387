package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherPicksUpExternalCreate(t *testing.T) {
	s, projectDir := createTestStore(t)

	w, err := NewWatcher(s, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.NoError(t, err)
	defer w.Stop()

	path := filepath.Join(projectDir, MemoriesDirName, "external.md")
	require.NoError(t, os.WriteFile(path, []byte("dropped in"), 0644))

	assert.Eventually(t, func() bool {
		return s.Count() == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherPicksUpExternalRemove(t *testing.T) {
	s, projectDir := createTestStore(t)
	path := filepath.Join(projectDir, MemoriesDirName, "external.md")
	require.NoError(t, os.WriteFile(path, []byte("dropped in"), 0644))
	s.Resync()
	require.Equal(t, 1, s.Count())

	w, err := NewWatcher(s, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		return s.Count() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	s, projectDir := createTestStore(t)

	w, err := NewWatcher(s, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.NoError(t, err)
	defer w.Stop()

	path := filepath.Join(projectDir, MemoriesDirName, "scratch.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a memory"), 0644))

	time.Sleep(time.Second)
	assert.Equal(t, 0, s.Count())
}
