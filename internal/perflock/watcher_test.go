package perflock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherLocksWhenFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bc250-max-performance")

	w := New(path, true)
	w.Poll()
	assert.False(t, w.Locked())

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	w.Poll()
	assert.True(t, w.Locked())

	require.NoError(t, os.Remove(path))
	w.Poll()
	assert.False(t, w.Locked())
}

func TestWatcherDisabledNeverLocks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bc250-max-performance")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w := New(path, false)
	w.Poll()
	assert.False(t, w.Locked())
}
