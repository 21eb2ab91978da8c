package authsdk

import (
	"context"
	"slices"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/idx"
	"github.com/aussiebroadwan/medibook/pkg/jwtx"
)

// HasRole reports whether the cached role is one of roles. It never does
// I/O; a stale role is corrected by the next refresh.
func (s *Session) HasRole(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Role == "" {
		return false
	}
	return slices.Contains(roles, s.state.Role)
}

// HasAllRoles reports whether the cached role satisfies every entry in
// roles. A session holds a single role, so this only holds when every entry
// names it.
func (s *Session) HasAllRoles(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Role == "" || len(roles) == 0 {
		return false
	}
	for _, r := range roles {
		if r != s.state.Role {
			return false
		}
	}
	return true
}

// OnRoleChange subscribes fn to role changes. Callbacks run on the goroutine
// that detected the change, without any session lock held. The returned
// function unsubscribes; calling it more than once is harmless.
func (s *Session) OnRoleChange(fn func(RoleChangeEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// RefreshRole re-derives the role from the stored access token, notifying
// subscribers when it differs from the cached one.
func (s *Session) RefreshRole(ctx context.Context) error {
	gen := s.coord.generation()
	if err := s.store.Reload(ctx); err != nil {
		return err
	}

	role := jwtx.ExtractRole(s.store.AccessToken())

	s.mu.RLock()
	old := s.state.Role
	authenticated := s.state.IsAuthenticated
	s.mu.RUnlock()

	if !authenticated || old == role {
		return nil
	}
	s.roleChanged(gen, RoleChangeEvent{
		ID:        idx.Event(),
		OldRole:   old,
		NewRole:   role,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// roleChanged applies ev if it belongs to the current session, then
// notifies subscribers.
func (s *Session) roleChanged(gen uint64, ev RoleChangeEvent) {
	s.mu.Lock()
	if !s.coord.isCurrent(gen) || !s.state.IsAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state.Role = ev.NewRole

	observers := make([]func(RoleChangeEvent), 0, len(s.observers))
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	s.logger.Info("role changed", "event_id", ev.ID.String(), "old_role", ev.OldRole, "new_role", ev.NewRole)
	for _, fn := range observers {
		fn(ev)
	}
}
