// Package storetest holds the behaviour every credstore driver must share.
package storetest

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/stretchr/testify/require"
)

// Run exercises a driver. newStore must return a fresh, empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) credstore.Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), credstore.KeyAccessToken)
		require.ErrorIs(t, err, credstore.ErrNotFound)

		_, ok, err := credstore.Lookup(context.Background(), s, credstore.KeyAccessToken)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("set then get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, credstore.KeyAccessToken, "a1"))
		v, err := s.Get(ctx, credstore.KeyAccessToken)
		require.NoError(t, err)
		require.Equal(t, "a1", v)

		require.NoError(t, s.Set(ctx, credstore.KeyAccessToken, "a2"))
		v, err = s.Get(ctx, credstore.KeyAccessToken)
		require.NoError(t, err)
		require.Equal(t, "a2", v)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, credstore.KeyUserID, "42"))
		require.NoError(t, s.Remove(ctx, credstore.KeyUserID))
		require.NoError(t, s.Remove(ctx, credstore.KeyUserID))

		_, err := s.Get(ctx, credstore.KeyUserID)
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("multi set and multi remove", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.MultiSet(ctx, map[string]string{
			credstore.KeyAccessToken:  "access",
			credstore.KeyRefreshToken: "refresh",
			credstore.KeyUserID:       "42",
			credstore.KeyClientID:     "clinic-1",
		}))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{
			credstore.KeyAccessToken,
			credstore.KeyRefreshToken,
			credstore.KeyUserID,
			credstore.KeyClientID,
		}, keys)

		require.NoError(t, s.MultiRemove(ctx, credstore.CredentialKeys...))
		require.NoError(t, s.MultiRemove(ctx, credstore.CredentialKeys...))

		keys, err = s.Keys(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{credstore.KeyClientID}, keys)
	})

	t.Run("clear", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.MultiSet(ctx, map[string]string{"a": "1", "b": "2"}))
		require.NoError(t, s.Clear(ctx))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("empty value round trips", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Set(ctx, "empty", ""))
		v, ok, err := credstore.Lookup(ctx, s, "empty")
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, v)
	})

	t.Run("mirror follows writes", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, credstore.KeyAccessToken, "boot"))

		m, err := credstore.NewMirror(ctx, s)
		require.NoError(t, err)
		require.Equal(t, "boot", m.AccessToken())

		require.NoError(t, m.MultiSet(ctx, map[string]string{
			credstore.KeyAccessToken:  "next",
			credstore.KeyRefreshToken: "r",
		}))
		require.Equal(t, "next", m.AccessToken())

		require.NoError(t, m.MultiRemove(ctx, credstore.CredentialKeys...))
		require.Empty(t, m.AccessToken())
	})
}
