package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	assert.Equal(t, "auth-jwt", Stem([]string{"jwt", "auth"}))
	assert.Equal(t, "auth", Stem([]string{"auth"}))
}

func TestStemDoesNotMutateInput(t *testing.T) {
	keywords := []string{"jwt", "auth"}
	Stem(keywords)
	assert.Equal(t, []string{"jwt", "auth"}, keywords)
}

func TestVersionIsPure(t *testing.T) {
	v1 := Version("auth-jwt", "token refresh flow")
	v2 := Version("auth-jwt", "token refresh flow")

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 8)
}

func TestVersionChangesWithInput(t *testing.T) {
	base := Version("auth-jwt", "content")

	assert.NotEqual(t, base, Version("auth-jwt", "content changed"))
	assert.NotEqual(t, base, Version("auth-session", "content"))
}

func TestMemoryLazyLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.md"), []byte("stored body"), 0644))

	m := openMemory(dir, []string{"auth"})
	assert.False(t, m.Loaded())

	content, err := m.Content()
	require.NoError(t, err)
	assert.Equal(t, "stored body", content)
	assert.True(t, m.Loaded())
}

func TestMemoryLoadMissingFile(t *testing.T) {
	m := openMemory(t.TempDir(), []string{"auth"})

	_, err := m.Content()

	var infra *ErrInfrastructure
	assert.ErrorAs(t, err, &infra)
}

func TestMemoryCheckVersion(t *testing.T) {
	m := newMemory(t.TempDir(), []string{"auth"}, "body")

	current, err := m.Version()
	require.NoError(t, err)

	assert.NoError(t, m.CheckVersion(current))

	err = m.CheckVersion("deadbeef")
	var vm *ErrVersionMismatch
	require.ErrorAs(t, err, &vm)
	assert.Equal(t, "deadbeef", vm.Supplied)
	assert.Equal(t, current, vm.Current)
}

func TestReplaceFragment(t *testing.T) {
	m := newMemory(t.TempDir(), []string{"auth"}, "alpha beta gamma")

	updated, err := m.replaceFragmentLocked("beta", "BETA")
	require.NoError(t, err)
	assert.Equal(t, "alpha BETA gamma", updated)
}

func TestReplaceFragmentNotFound(t *testing.T) {
	m := newMemory(t.TempDir(), []string{"auth"}, "alpha beta gamma")

	_, err := m.replaceFragmentLocked("delta", "x")

	var fe *ErrFragment
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, fe.Count)
}

func TestReplaceFragmentAmbiguous(t *testing.T) {
	m := newMemory(t.TempDir(), []string{"auth"}, "dup one dup two dup")

	_, err := m.replaceFragmentLocked("dup", "x")

	var fe *ErrFragment
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Count)
}

func TestWriteFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	m := newMemory(dir, []string{"auth"}, "body")

	m.mu.Lock()
	err := m.writeFileLocked("body")
	m.mu.Unlock()
	require.NoError(t, err)

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))

	// No temp file left behind
	_, err = os.Stat(m.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveFileIdempotent(t *testing.T) {
	m := newMemory(t.TempDir(), []string{"auth"}, "body")

	m.mu.Lock()
	defer m.mu.Unlock()
	require.NoError(t, m.removeFileLocked())
	assert.NoError(t, m.removeFileLocked())
}

func TestInvalidateReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	m := newMemory(dir, []string{"auth"}, "original")

	m.mu.Lock()
	require.NoError(t, m.writeFileLocked("original"))
	m.selfWriteUntil = time.Time{}
	m.mu.Unlock()

	require.NoError(t, os.WriteFile(m.Path(), []byte("edited outside"), 0644))

	assert.True(t, m.invalidate())
	assert.False(t, m.Loaded())

	content, err := m.Content()
	require.NoError(t, err)
	assert.Equal(t, "edited outside", content)
}

func TestInvalidateSkipsRecentSelfWrite(t *testing.T) {
	m := newMemory(t.TempDir(), []string{"auth"}, "body")

	m.mu.Lock()
	require.NoError(t, m.writeFileLocked("body"))
	m.mu.Unlock()

	assert.False(t, m.invalidate())
	assert.True(t, m.Loaded())
}
