package pidfile_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facron/facron/internal/pidfile"
)

func TestAcquire_WritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facron.pid")

	p, err := pidfile.Acquire(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Release() })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
	assert.Equal(t, path, p.Path())
}

func TestAcquire_SecondHolderIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facron.pid")

	p, err := pidfile.Acquire(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Release() })

	// flock locks belong to the open file description, so a second
	// descriptor in the same process conflicts too.
	_, err = pidfile.Acquire(path)
	assert.ErrorIs(t, err, pidfile.ErrLocked)
}

func TestRelease_RemovesFileAndAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facron.pid")

	p, err := pidfile.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, p.Release())

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	again, err := pidfile.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquire_MissingDirectory(t *testing.T) {
	_, err := pidfile.Acquire(filepath.Join(t.TempDir(), "missing", "facron.pid"))
	assert.Error(t, err)
}
