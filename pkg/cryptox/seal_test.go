package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("test-master-key-for-encryption-12345"))
	require.NoError(t, err)

	plaintext := []byte("eyJhbGciOiJIUzI1NiJ9.payload.sig")

	sealed1, err := s.Seal(plaintext)
	require.NoError(t, err)
	sealed2, err := s.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, sealed1, sealed2, "random nonce should differ per seal")

	opened, err := s.Open(sealed1)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	opened, err = s.Open(sealed2)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTampering(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("k1"))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("refresh-token"))
	require.NoError(t, err)

	t.Run("flipped bit", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0x01
		_, err := s.Open(tampered)
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open([]byte("abc"))
		require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := cryptox.NewSealer([]byte("k2"))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		require.Error(t, err)
	})
}

func TestNewSealerEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewSealer(nil)
	require.Error(t, err)
}

func TestLoadCodec(t *testing.T) {
	t.Run("plain without key", func(t *testing.T) {
		t.Setenv(cryptox.MasterKeyEnv, "")
		c, err := cryptox.LoadCodec("")
		require.NoError(t, err)
		require.IsType(t, cryptox.Plain{}, c)
	})

	t.Run("from env", func(t *testing.T) {
		t.Setenv(cryptox.MasterKeyEnv, "env-key")
		c, err := cryptox.LoadCodec("")
		require.NoError(t, err)
		require.IsType(t, &cryptox.Sealer{}, c)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte("file-key\n"), 0o600))

		c, err := cryptox.LoadCodec(path)
		require.NoError(t, err)

		sealed, err := c.Seal([]byte("v"))
		require.NoError(t, err)

		// The trailing newline must not change the derived key.
		again, err := cryptox.NewSealer([]byte("file-key"))
		require.NoError(t, err)
		opened, err := again.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, []byte("v"), opened)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := cryptox.LoadCodec(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
}
