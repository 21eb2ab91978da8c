// Package credstore persists the credential pair and user identity behind a
// small asynchronous key-value contract. Drivers live in sub-packages.
package credstore

import (
	"context"
	"errors"
)

// Keys written by the session layer. Each is an independent string entry.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserID       = "user_id"
	KeyClientID     = "client_id"
)

// CredentialKeys are the keys removed on logout or an unrecoverable refresh.
// The organisation client id is kept; it identifies the install, not the user.
var CredentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserID}

var (
	ErrNotFound = errors.New("credstore: not found")
	ErrClosed   = errors.New("credstore: closed")
)

// Store is the platform storage abstraction. Every operation is atomic per
// key; nothing spans keys, so callers must tolerate partial multi-key writes.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	MultiSet(ctx context.Context, values map[string]string) error
	MultiRemove(ctx context.Context, keys ...string) error

	// Clear removes every key.
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// Lookup is Get with ErrNotFound mapped to ok=false.
func Lookup(ctx context.Context, s Store, key string) (string, bool, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
