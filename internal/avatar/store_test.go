package avatar

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "avatars"))
	require.NoError(t, err)
	id := uuid.New()

	require.False(t, s.Exists(id))
	_, err = s.Read(id)
	require.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, s.Write(id, []byte("moonscript")))
	require.True(t, s.Exists(id))

	data, err := s.Read(id)
	require.NoError(t, err)
	require.Equal(t, []byte("moonscript"), data)

	require.NoError(t, s.Delete(id))
	require.False(t, s.Exists(id))
	require.NoError(t, s.Delete(id), "deleting a missing avatar is fine")
}

func TestStoreHash(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	id := uuid.New()
	require.NoError(t, s.Write(id, []byte{0x01, 0x02, 0x03}))

	sum := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})))
	want := hex.EncodeToString(sum[:])

	got, err := s.Hash(id)
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = s.Hash(uuid.New())
	require.ErrorIs(t, err, fs.ErrNotExist)
}
