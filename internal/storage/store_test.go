package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blob is a minimal handle for exercising the store.
type blob struct {
	data []byte
}

func (b *blob) MarshalBinary() ([]byte, error) { return append([]byte(nil), b.data...), nil }

func (b *blob) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[0] != '{' {
		return errors.New("not a handle")
	}
	b.data = append([]byte(nil), data...)
	return nil
}

type failingMarshaler struct{}

func (failingMarshaler) MarshalBinary() ([]byte, error) { return nil, errors.New("boom") }

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(append([]Option{WithRoot(t.TempDir()), WithLockTimeout(0)}, opts...)...)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"1000", "0", "team-session"} {
		in := &blob{data: []byte(`{"token":"QSDK abc","id":"` + id + `"}`)}
		require.NoError(t, store.Save(id, in))

		var out blob
		require.NoError(t, store.Load(id, &out))
		assert.Equal(t, in.data, out.data)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save("1000", &blob{data: []byte(`{"v":1}`)}))
	require.NoError(t, store.Save("1000", &blob{data: []byte(`{"v":2}`)}))

	var out blob
	require.NoError(t, store.Load("1000", &out))
	assert.Equal(t, `{"v":2}`, string(out.data))

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the session file should remain, no temp or lock files")
}

func TestStore_SavePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permission bits are not meaningful on Windows")
	}
	store := newTestStore(t)
	path, err := store.Path("1000")
	require.NoError(t, err)

	// Pre-existing world-readable file must be narrowed.
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	require.NoError(t, os.Chmod(path, 0644))

	require.NoError(t, store.Save("1000", &blob{data: []byte(`{}`)}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	path, err := store.Path("1000")
	require.NoError(t, err)

	err = store.Load("1000", &blob{})
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Contains(t, err.Error(), path)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "Load must not create the session file")
}

func TestStore_LoadCorrupt(t *testing.T) {
	store := newTestStore(t)
	path, err := store.Path("1000")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	err = store.Load("1000", &blob{})
	require.ErrorIs(t, err, ErrSessionCorrupt)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
	assert.Contains(t, err.Error(), path)
}

func TestStore_SaveMarshalFailureLeavesFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("1000", &blob{data: []byte(`{"v":1}`)}))

	require.Error(t, store.Save("1000", failingMarshaler{}))

	var out blob
	require.NoError(t, store.Load("1000", &out))
	assert.Equal(t, `{"v":1}`, string(out.data))
}

func TestStore_Remove(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("1000", &blob{data: []byte(`{}`)}))

	require.NoError(t, store.Remove("1000"))
	require.ErrorIs(t, store.Load("1000", &blob{}), ErrSessionNotFound)

	// Removing twice is fine.
	require.NoError(t, store.Remove("1000"))
}

func TestStore_InvalidSessionID(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.Save("../escape", &blob{data: []byte(`{}`)}), ErrInvalidSessionID)
	assert.ErrorIs(t, store.Load("a/b", &blob{}), ErrInvalidSessionID)
	assert.ErrorIs(t, store.Remove(""), ErrInvalidSessionID)

	_, err := os.Stat(filepath.Join(filepath.Dir(store.Root()), "CVANSIBLE_escape"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_SaveWhileLockedFallsBackToUnlockedWrite(t *testing.T) {
	store := newTestStore(t, WithLockTimeout(50*time.Millisecond))
	lockPath, err := SessionLockFilePath(store.Root(), "1000")
	require.NoError(t, err)

	held, err := acquireFileLock(lockPath)
	require.NoError(t, err)
	defer func() { _ = releaseFileLock(held) }()

	start := time.Now()
	require.NoError(t, store.Save("1000", &blob{data: []byte(`{"v":1}`)}))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "Save should wait for the lock timeout")

	var out blob
	require.NoError(t, store.Load("1000", &out))
	assert.Equal(t, `{"v":1}`, string(out.data))
}
