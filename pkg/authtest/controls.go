package authtest

import (
	"fmt"
	"sync"
)

// SetRole changes a user's role. Tokens already issued keep the old role;
// the next refresh carries the new one.
func (b *Backend) SetRole(username, role string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[username]
	if !ok {
		return fmt.Errorf("authtest: unknown user %q", username)
	}
	a.role = role
	return nil
}

// ExpireAccessTokens revokes every access token issued so far. Refresh
// tokens stay valid.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.live)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.refresh)
}

// FailRefresh makes /refresh answer 401 while on.
func (b *Backend) FailRefresh(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = on
}

// HoldRefresh parks every /refresh call until release is called. Calls that
// arrive after release pass straight through.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})

	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gate == gate {
				b.gate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls counts /refresh requests received.
func (b *Backend) RefreshCalls() int64 { return b.refreshCalls.Load() }

// Rejected counts 401 responses from protected endpoints.
func (b *Backend) Rejected() int64 { return b.rejected.Load() }
