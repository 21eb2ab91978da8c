package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/jwtx"
	"github.com/aussiebroadwan/medibook/pkg/slogx"
)

// TokenVerifier checks a bearer token's signature and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (*jwtx.Claims, error)
}

// AuthnMiddleware rejects requests without a valid, unexpired bearer token
// and stores the claims in the request context.
func AuthnMiddleware(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.Debug("bearer verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}
			if claims.Expired(time.Now()) {
				writeBearerError(w, "token expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(ctx, claims)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}

// RFC 6750 error response; the body carries the backend's {"error": ...} shape.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, desc)
}
