package authsdk

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrInvalidCredentials is returned when /login or /register rejects the
	// submitted credentials. The server's message is wrapped with it.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshExhausted is returned to every request that was waiting on a
	// refresh that failed. The session is over; the cause is wrapped too.
	ErrRefreshExhausted = errors.New("session expired")

	// ErrLoggedOut is returned for a 401 after the session ended, and to
	// requests whose refresh was overtaken by a logout.
	ErrLoggedOut = errors.New("logged out")

	errNoRefreshToken = errors.New("no refresh token stored")
)

// ValidationError maps a field name to the reason it was rejected. It is
// returned before any request is sent.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	fields := slices.Sorted(maps.Keys(v))
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s %s", f, v[f]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}
