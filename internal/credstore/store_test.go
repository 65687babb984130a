package credstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "encryption_key")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "encryption_key", "deadbeef"))
	v, ok, err := s.Get(ctx, "encryption_key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "deadbeef", v)

	require.NoError(t, s.Set(ctx, "encryption_key", "cafebabe"))
	v, _, err = s.Get(ctx, "encryption_key")
	require.NoError(t, err)
	require.Equal(t, "cafebabe", v)

	require.NoError(t, s.Delete(ctx, "encryption_key"))
	_, ok, err = s.Get(ctx, "encryption_key")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx, "never-set"), "deleting a missing name is not an error")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s, err := OpenFileStore(path, []byte("correct horse"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestFileStore_PersistsEncrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "creds.json")

	s, err := OpenFileStore(path, []byte("correct horse"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "encryption_key", "super-secret-master-key"))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "super-secret-master-key"), "value must not be stored in plaintext")

	reopened, err := OpenFileStore(path, []byte("correct horse"))
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "encryption_key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "super-secret-master-key", v)
}

func TestFileStore_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	s, err := OpenFileStore(path, []byte("right"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenFileStore(path, []byte("wrong"))
	require.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileStore(path, []byte("x"))
	require.Error(t, err)
}
