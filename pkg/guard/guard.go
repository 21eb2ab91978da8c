// Package guard decides whether a screen or command may be shown for the
// current session. Decisions read cached session state only.
package guard

import (
	"errors"

	"github.com/aussiebroadwan/medibook/pkg/authsdk"
)

// DefaultFallback is where RoleProtected sends signed-in users who lack
// the role.
const DefaultFallback = "/"

var (
	ErrLoading       = errors.New("session is still loading")
	ErrLoginRequired = errors.New("login required")
	ErrForbidden     = errors.New("your role does not allow this")
)

// Auth is the part of a session guards look at. *authsdk.Session
// implements it.
type Auth interface {
	State() authsdk.State
	HasRole(roles ...string) bool
	HasAllRoles(roles ...string) bool
}

// Decision is the outcome of a guard. At most one of Allow, Loading and
// Redirect is set.
type Decision struct {
	Allow    bool
	Loading  bool
	Redirect string

	reason error
}

// Err is nil when the decision allows access, and otherwise says why not.
func (d Decision) Err() error {
	switch {
	case d.Allow:
		return nil
	case d.Loading:
		return ErrLoading
	case d.reason != nil:
		return d.reason
	}
	return ErrLoginRequired
}

// Protected allows any signed-in user.
func Protected(a Auth, routes authsdk.Routes) Decision {
	st := a.State()
	switch {
	case st.IsLoading:
		return Decision{Loading: true}
	case !st.IsAuthenticated:
		return Decision{Redirect: loginRoute(routes), reason: ErrLoginRequired}
	}
	return Decision{Allow: true}
}

// RoleProtected allows signed-in users holding one of allowed. Others are
// sent to fallback, or DefaultFallback when it is empty. With no roles
// listed it behaves like Protected.
func RoleProtected(a Auth, routes authsdk.Routes, fallback string, allowed ...string) Decision {
	d := Protected(a, routes)
	if !d.Allow || len(allowed) == 0 {
		return d
	}
	if a.HasRole(allowed...) {
		return d
	}
	if fallback == "" {
		fallback = DefaultFallback
	}
	return Decision{Redirect: fallback, reason: ErrForbidden}
}

// RoleGate reports whether role-dependent content should render. With
// requireAll the session must satisfy every listed role.
func RoleGate(a Auth, requireAll bool, allowed ...string) bool {
	st := a.State()
	if st.IsLoading || !st.IsAuthenticated {
		return false
	}
	if requireAll {
		return a.HasAllRoles(allowed...)
	}
	return a.HasRole(allowed...)
}

func loginRoute(r authsdk.Routes) string {
	if r.Login == "" {
		return authsdk.DefaultRoutes.Login
	}
	return r.Login
}
