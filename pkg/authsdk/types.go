package authsdk

import (
	"time"

	"github.com/aussiebroadwan/medibook/pkg/idx"
	"github.com/aussiebroadwan/medibook/pkg/jwtx"
)

// Credentials are submitted to /login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// ClientID is filled from the stored organisation id when empty.
	ClientID string `json:"client_id,omitempty"`
}

// Registration is submitted to /register.
type Registration struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	ClientID        string `json:"client_id,omitempty"`
}

// LoginResponse is the body of a successful /login. The backend sends
// user_id as a number; strings are accepted too.
type LoginResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	UserID       jwtx.ID `json:"user_id"`
}

// RegisterResponse is the body of a successful /register.
type RegisterResponse struct {
	Message string `json:"message"`
}

// RefreshResponse is the body of a successful /refresh.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// State is the derived view of the session. Empty strings stand for an
// unknown user id or role.
type State struct {
	IsAuthenticated bool
	IsLoading       bool
	UserID          string
	Role            string
}

// RoleChangeEvent is emitted when a refreshed access token carries a
// different role than the one it replaced.
type RoleChangeEvent struct {
	ID        idx.ID
	OldRole   string
	NewRole   string
	Timestamp time.Time
}
