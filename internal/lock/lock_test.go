package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uv-cache")

	l, err := TryLock(dir)
	require.NoError(t, err)
	defer l.Unlock()

	assert.Equal(t, filepath.Join(dir, FileName), l.Path())
	_, err = os.Stat(l.Path())
	assert.NoError(t, err)
}

func TestSecondLockFailsFast(t *testing.T) {
	dir := t.TempDir()

	first, err := TryLock(dir)
	require.NoError(t, err)

	// flock locks belong to the open file description, so a second open in
	// the same process still conflicts.
	_, err = TryLock(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHeld), "got %v", err)

	require.NoError(t, first.Unlock())

	again, err := TryLock(dir)
	require.NoError(t, err)
	assert.NoError(t, again.Unlock())
}

func TestUnlockTwice(t *testing.T) {
	l, err := TryLock(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())

	var nilLock *FileLock
	assert.NoError(t, nilLock.Unlock())
}
