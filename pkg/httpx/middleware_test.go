package httpx_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type verifierFunc func(string) (*jwtx.Claims, error)

func (f verifierFunc) Verify(raw string) (*jwtx.Claims, error) { return f(raw) }

func TestAuthnAndRoleMiddleware(t *testing.T) {
	t.Parallel()

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	v := verifierFunc(func(raw string) (*jwtx.Claims, error) {
		switch raw {
		case "admin":
			return &jwtx.Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, nil
		case "patient":
			return &jwtx.Claims{Role: "patient", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, nil
		case "expired":
			return &jwtx.Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: past}}, nil
		}
		return nil, errors.New("bad signature")
	})

	var order []string
	trace := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpx.ClaimsFromContext(r.Context())
		require.True(t, ok)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"role": claims.Role})
	}),
		trace("first"),
		httpx.AuthnMiddleware(v),
		trace("second"),
		httpx.RequireAnyRole("admin"),
	)

	cases := map[string]struct {
		header string
		want   int
	}{
		"no header":     {"", http.StatusUnauthorized},
		"not bearer":    {"Basic abc", http.StatusUnauthorized},
		"bad signature": {"Bearer forged", http.StatusUnauthorized},
		"expired":       {"Bearer expired", http.StatusUnauthorized},
		"wrong role":    {"Bearer patient", http.StatusForbidden},
		"admin":         {"Bearer admin", http.StatusOK},
	}

	for name, tc := range cases {
		order = nil
		req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, tc.want, rec.Code, name)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"), name)
		require.Equal(t, "first", order[0], name)
		if tc.want == http.StatusUnauthorized {
			require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token", name)
			require.Len(t, order, 1, name)
		}
	}
}
