package lockfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
)

func testLock(t *testing.T) *Lock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "run.lock"), logging.NewNopLogger())
}

func writeMarker(t *testing.T, path string, pid int) {
	t.Helper()
	data, err := yaml.Marshal(marker{PID: pid, AcquiredAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestAcquireAndRelease(t *testing.T) {
	l := testLock(t)

	require.NoError(t, l.Acquire())

	m, err := l.readMarker()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.PID)
	assert.False(t, m.AcquiredAt.IsZero())

	l.Release()
	_, err = os.Stat(l.path)
	assert.True(t, os.IsNotExist(err), "marker should be removed on release")
}

func TestAcquire_ContentionWithLiveOwner(t *testing.T) {
	l := testLock(t)
	writeMarker(t, l.path, 12345)
	l.isLive = func(pid int) bool { return true }

	err := l.Acquire()
	require.Error(t, err)
	assert.True(t, fuperrors.IsAlreadyRunning(err))

	// The loser must not disturb the holder's marker.
	m, readErr := l.readMarker()
	require.NoError(t, readErr)
	assert.Equal(t, 12345, m.PID)
}

func TestAcquire_ReclaimsStaleMarker(t *testing.T) {
	l := testLock(t)
	writeMarker(t, l.path, 12345)
	l.isLive = func(pid int) bool { return false }

	require.NoError(t, l.Acquire())

	m, err := l.readMarker()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.PID, "reclaimed marker should carry the new owner")
}

func TestAcquire_ReclaimsUnreadableMarker(t *testing.T) {
	l := testLock(t)
	require.NoError(t, os.WriteFile(l.path, []byte("\t{garbage"), 0o600))

	require.NoError(t, l.Acquire())

	m, err := l.readMarker()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.PID)
}

func TestRelease_WithoutAcquireIsNoop(t *testing.T) {
	l := testLock(t)
	writeMarker(t, l.path, 12345)

	// Release without a successful Acquire must leave the marker alone.
	l.Release()

	m, err := l.readMarker()
	require.NoError(t, err)
	assert.Equal(t, 12345, m.PID)
}

func TestRelease_Twice(t *testing.T) {
	l := testLock(t)
	require.NoError(t, l.Acquire())
	l.Release()
	l.Release() // must not panic or error
}
