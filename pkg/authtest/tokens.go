package authtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/idx"
	"github.com/aussiebroadwan/medibook/pkg/jwtx"
	"github.com/aussiebroadwan/medibook/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "medibook-mock"

var errTokenRevoked = errors.New("token is no longer valid")

// Verify checks the signature and expiry of an access token and that it has
// not been revoked. It implements httpx.TokenVerifier.
func (b *Backend) Verify(raw string) (*jwtx.Claims, error) {
	var claims jwtx.Claims
	if _, err := b.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return b.key.Public(), nil
	}); err != nil {
		return nil, err
	}
	if claims.Type != "access" {
		return nil, fmt.Errorf("token type %q", claims.Type)
	}

	b.mu.Lock()
	_, ok := b.live[claims.ID]
	b.mu.Unlock()
	if !ok {
		return nil, errTokenRevoked
	}
	return &claims, nil
}

// mintAccess signs an access token for a. Callers hold b.mu.
func (b *Backend) mintAccess(a *account, fresh bool) (string, error) {
	now := time.Now()
	jti := idx.New().String()
	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.Itoa(a.id),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.accessTTL)),
		},
		Role:     a.role,
		UserID:   jwtx.ID(strconv.Itoa(a.id)),
		IsActive: &a.active,
		Fresh:    &fresh,
		Type:     "access",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(b.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	b.live[jti] = a.id
	return signed, nil
}

// mintRefresh issues an opaque refresh token. Callers hold b.mu.
func (b *Backend) mintRefresh(a *account) (string, error) {
	tok, err := cryptox.NewOpaqueToken(cryptox.OpaqueTokenSize)
	if err != nil {
		return "", err
	}
	b.refresh[cryptox.Fingerprint(tok)] = a.id
	return tok, nil
}

type loginBody struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	ClientID        string `json:"client_id"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeBody(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Username == "" || body.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	b.mu.Lock()
	a, ok := b.accounts[body.Username]
	var hash string
	if ok {
		hash = a.hash
	}
	b.mu.Unlock()
	if !ok || cryptox.VerifyPassword(body.Password, hash) != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !a.active {
		httpx.WriteError(w, http.StatusForbidden, "Account is disabled")
		return
	}
	if a.clientID != "" && body.ClientID != "" && a.clientID != body.ClientID {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	access, err := b.mintAccess(a, true)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, err := b.mintRefresh(a)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slogx.FromContext(r.Context()).InfoContext(r.Context(), "mock login", "user_id", a.id, "role", a.role)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user_id":       a.id,
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeBody(w, r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ConfirmPassword != "" && body.ConfirmPassword != body.Password {
		httpx.WriteError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	_, err := b.AddUser(User{Username: body.Username, Password: body.Password, ClientID: body.ClientID})
	switch {
	case errors.Is(err, errUserExists):
		httpx.WriteError(w, http.StatusConflict, "Username already exists")
		return
	case err != nil:
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	raw, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Missing refresh token")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failRefresh {
		httpx.WriteError(w, http.StatusUnauthorized, "Refresh token has been revoked")
		return
	}
	uid, ok := b.refresh[cryptox.Fingerprint(raw)]
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	access, err := b.mintAccess(b.byID[uid], false)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"access_token": access})
}
