package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmeraj-dev/skillnestx-go/store"
)

func TestStore_PutGetDelete(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("session", "current")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Put("session", "current", []byte("v1")))
	got, err := s.Get("session", "current")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Delete("session", "current"))
	_, err = s.Get("session", "current")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Deleting a missing record or kind is not an error.
	require.NoError(t, s.Delete("session", "current"))
	require.NoError(t, s.Delete("nope", "x"))
}

func TestStore_KindsAreIsolated(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("progress", "c1", []byte("a")))
	require.NoError(t, s.Put("visitedLessons", "c1", []byte("b")))

	got, err := s.Get("progress", "c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	got, err = s.Get("visitedLessons", "c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("progress", "c1", []byte("kept")))
	require.NoError(t, s.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get("progress", "c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got)
}
