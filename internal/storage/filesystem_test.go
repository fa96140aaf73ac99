package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"avatarmail/internal/domain"
)

func newTestStorage(t *testing.T) (*FileStorage, string) {
	t.Helper()
	root := t.TempDir()
	return NewFileStorage(root, zap.NewNop()), root
}

func TestFileStorageURLFor(t *testing.T) {
	t.Parallel()

	s, root := newTestStorage(t)
	assert.Equal(t, filepath.Join(root, "audio_files", "a.wav"), s.URLFor("a.wav"))

	_, err := os.Stat(filepath.Join(root, "audio_files"))
	assert.True(t, os.IsNotExist(err), "URLFor must not create directories")
}

func TestFileStorageSaveLoadDelete(t *testing.T) {
	t.Parallel()

	s, _ := newTestStorage(t)

	require.NoError(t, s.Save("a.wav", []byte("first")))
	assert.True(t, s.Exists("a.wav"))

	data, err := s.Load("a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	require.NoError(t, s.Save("a.wav", []byte("second")))
	data, err = s.Load("a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	require.NoError(t, s.Delete("a.wav"))
	assert.False(t, s.Exists("a.wav"))

	_, err = os.Stat(s.URLFor("a.wav") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStorageDeleteMissing(t *testing.T) {
	t.Parallel()

	s, _ := newTestStorage(t)
	err := s.Delete("missing.wav")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Load("missing.wav")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileStorageRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	s, _ := newTestStorage(t)
	require.ErrorIs(t, s.Save("../escape.wav", []byte("x")), domain.ErrWriteFailure)
	require.ErrorIs(t, s.Save("", []byte("x")), domain.ErrWriteFailure)
	assert.False(t, s.Exists("../escape.wav"))
}

func TestFileStorageSaveWriteFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// A regular file where the audio directory should be makes MkdirAll fail.
	require.NoError(t, os.WriteFile(filepath.Join(root, AudioDir), []byte("x"), 0o644))

	s := NewFileStorage(root, nil)
	require.ErrorIs(t, s.Save("a.wav", []byte("x")), domain.ErrWriteFailure)
}
