package jwtx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed reports a token whose claims segment could not be read.
	ErrMalformed = errors.New("jwtx: malformed token")
)

// segmentParser decodes base64url segments. Padding is tolerated because some
// backends emit padded segments.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims are the access-token claims the client cares about. The backend is
// the only authority on them; these are read for UI decisions only.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the privilege level granted to the user ("patient", "doctor", ...).
	Role string `json:"role,omitempty"`

	// UserID is the numeric or string user id some backends add next to sub.
	UserID ID `json:"user_id,omitempty"`

	// IsActive mirrors the account flag the booking backend embeds.
	IsActive *bool `json:"is_active,omitempty"`

	// Fresh is set on tokens minted directly from a password login.
	Fresh *bool `json:"fresh,omitempty"`

	// Type is "access" or "refresh" for flask-style tokens.
	Type string `json:"type,omitempty"`

	// Extra holds every claim in the payload, including the ones above.
	Extra map[string]any `json:"-"`
}

// ID is a claim value that may be encoded as a JSON number or string.
type ID string

// UnmarshalJSON accepts numbers and strings.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id claim must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a string.
func (id ID) String() string { return string(id) }

// Parse splits a dot-delimited token and decodes the middle segment. The
// signature is never checked.
func Parse(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ErrMalformed, err)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %w", ErrMalformed, err)
	}
	if err := json.Unmarshal(payload, &claims.Extra); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %w", ErrMalformed, err)
	}

	return &claims, nil
}

// Decode is Parse without the error: a malformed token yields nil.
func Decode(token string) *Claims {
	claims, err := Parse(token)
	if err != nil {
		return nil
	}
	return claims
}

// SubjectID returns sub, falling back to user_id.
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID.String()
}

// ExpiresAtTime returns the expiry, or the zero time when none is present.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the claims are unusable at now. Missing claims or a
// missing exp count as expired.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return true
	}
	return !c.ExpiresAt.After(now)
}

// ExtractRole returns the role claim, or "" when the token is malformed or
// carries no role.
func ExtractRole(token string) string {
	if claims := Decode(token); claims != nil {
		return claims.Role
	}
	return ""
}

// ExtractUserID returns the subject id, or "" when unavailable.
func ExtractUserID(token string) string {
	return Decode(token).SubjectID()
}

// IsExpired reports whether token is expired at now. Tokens that cannot be
// decoded are expired.
func IsExpired(token string, now time.Time) bool {
	return Decode(token).Expired(now)
}
