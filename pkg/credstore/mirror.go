package credstore

import (
	"context"
	"slices"
	"sync"
)

// Mirror wraps a Store and keeps the access token in memory so request
// signing never waits on storage I/O. All writes must go through the Mirror
// for the cached value to stay consistent.
type Mirror struct {
	Store

	mu     sync.RWMutex
	access string
}

// NewMirror loads the current access token from s.
func NewMirror(ctx context.Context, s Store) (*Mirror, error) {
	m := &Mirror{Store: s}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// AccessToken returns the cached access token, or "" when none is stored.
func (m *Mirror) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// Reload re-reads the access token from the underlying store. Use it after
// the store was changed by someone else.
func (m *Mirror) Reload(ctx context.Context) error {
	v, _, err := Lookup(ctx, m.Store, KeyAccessToken)
	if err != nil {
		return err
	}
	m.setAccess(v)
	return nil
}

func (m *Mirror) Set(ctx context.Context, key, value string) error {
	if err := m.Store.Set(ctx, key, value); err != nil {
		return m.resync(ctx, key == KeyAccessToken, err)
	}
	if key == KeyAccessToken {
		m.setAccess(value)
	}
	return nil
}

func (m *Mirror) Remove(ctx context.Context, key string) error {
	if err := m.Store.Remove(ctx, key); err != nil {
		return m.resync(ctx, key == KeyAccessToken, err)
	}
	if key == KeyAccessToken {
		m.setAccess("")
	}
	return nil
}

func (m *Mirror) MultiSet(ctx context.Context, values map[string]string) error {
	_, touches := values[KeyAccessToken]
	if err := m.Store.MultiSet(ctx, values); err != nil {
		return m.resync(ctx, touches, err)
	}
	if touches {
		m.setAccess(values[KeyAccessToken])
	}
	return nil
}

func (m *Mirror) MultiRemove(ctx context.Context, keys ...string) error {
	touches := slices.Contains(keys, KeyAccessToken)
	if err := m.Store.MultiRemove(ctx, keys...); err != nil {
		return m.resync(ctx, touches, err)
	}
	if touches {
		m.setAccess("")
	}
	return nil
}

func (m *Mirror) Clear(ctx context.Context) error {
	if err := m.Store.Clear(ctx); err != nil {
		return m.resync(ctx, true, err)
	}
	m.setAccess("")
	return nil
}

// resync re-reads the access token after a failed write, which may have been
// applied partially. The original error is returned either way.
func (m *Mirror) resync(ctx context.Context, touches bool, cause error) error {
	if touches {
		_ = m.Reload(ctx)
	}
	return cause
}

func (m *Mirror) setAccess(v string) {
	m.mu.Lock()
	m.access = v
	m.mu.Unlock()
}
