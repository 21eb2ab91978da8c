package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/aussiebroadwan/medibook/pkg/credstore/filestore"
	"github.com/aussiebroadwan/medibook/pkg/credstore/storetest"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) credstore.Store {
		s, err := filestore.New(filepath.Join(t.TempDir(), "credentials.json"), nil)
		require.NoError(t, err)
		return s
	})
}

func TestSealedStore(t *testing.T) {
	t.Parallel()

	sealer, err := cryptox.NewSealer([]byte("file-test-key"))
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) credstore.Store {
		s, err := filestore.New(filepath.Join(t.TempDir(), "nested", "credentials.json"), sealer)
		require.NoError(t, err)
		return s
	})
}

func TestSealedFileHidesTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	sealer, err := cryptox.NewSealer([]byte("k"))
	require.NoError(t, err)
	s, err := filestore.New(path, sealer)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, credstore.KeyRefreshToken, "very-secret-refresh"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "very-secret-refresh")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTwoHandlesShareTheFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	a, err := filestore.New(path, nil)
	require.NoError(t, err)
	b, err := filestore.New(path, nil)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, credstore.KeyUserID, "7"))
	v, err := b.Get(ctx, credstore.KeyUserID)
	require.NoError(t, err)
	require.Equal(t, "7", v)

	require.NoError(t, b.Clear(ctx))
	_, err = a.Get(ctx, credstore.KeyUserID)
	require.ErrorIs(t, err, credstore.ErrNotFound)
}

func TestCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := filestore.New(path, nil)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), credstore.KeyAccessToken)
	require.Error(t, err)
	require.NotErrorIs(t, err, credstore.ErrNotFound)
}

func TestWatchSeesOtherWriters(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	path := filepath.Join(t.TempDir(), "credentials.json")
	watched, err := filestore.New(path, nil)
	require.NoError(t, err)
	other, err := filestore.New(path, nil)
	require.NoError(t, err)

	mirror, err := credstore.NewMirror(ctx, watched)
	require.NoError(t, err)
	require.Empty(t, mirror.AccessToken())

	var calls atomic.Int32
	require.NoError(t, watched.Watch(ctx, 20*time.Millisecond, func() {
		calls.Add(1)
		_ = mirror.Reload(ctx)
	}))

	require.NoError(t, other.MultiSet(ctx, map[string]string{
		credstore.KeyAccessToken:  "from-elsewhere",
		credstore.KeyRefreshToken: "r",
	}))

	require.Eventually(t, func() bool {
		return mirror.AccessToken() == "from-elsewhere"
	}, 5*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, calls.Load(), int32(1))

	require.NoError(t, other.MultiRemove(ctx, credstore.CredentialKeys...))
	require.Eventually(t, func() bool {
		return mirror.AccessToken() == ""
	}, 5*time.Second, 10*time.Millisecond)
}
