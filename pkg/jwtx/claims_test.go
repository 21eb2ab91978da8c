package jwtx_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// unsigned builds a header.payload.signature string with the given payload.
func unsigned(t *testing.T, payload map[string]any) string {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return "h." + base64.RawURLEncoding.EncodeToString(b) + ".s"
}

func TestDecode(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Unix()

	t.Run("flask style token", func(t *testing.T) {
		token := unsigned(t, map[string]any{
			"sub":       "42",
			"role":      "patient",
			"is_active": true,
			"type":      "access",
			"exp":       exp,
			"iat":       exp - 900,
		})

		claims := jwtx.Decode(token)
		require.NotNil(t, claims)
		require.Equal(t, "patient", claims.Role)
		require.Equal(t, "42", claims.SubjectID())
		require.Equal(t, "access", claims.Type)
		require.NotNil(t, claims.IsActive)
		require.True(t, *claims.IsActive)
		require.Equal(t, exp, claims.ExpiresAtTime().Unix())
		require.Equal(t, "patient", claims.Extra["role"])
	})

	t.Run("numeric user_id without sub", func(t *testing.T) {
		claims := jwtx.Decode(unsigned(t, map[string]any{"user_id": 7, "role": "doctor"}))
		require.NotNil(t, claims)
		require.Equal(t, "7", claims.SubjectID())
	})

	t.Run("signed token from golang-jwt", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin", "sub": "1"})
		signed, err := tok.SignedString([]byte("secret"))
		require.NoError(t, err)

		require.Equal(t, "admin", jwtx.ExtractRole(signed))
		require.Equal(t, "1", jwtx.ExtractUserID(signed))
	})

	t.Run("padded payload", func(t *testing.T) {
		b, err := json.Marshal(map[string]any{"role": "nurse"})
		require.NoError(t, err)
		token := "h." + base64.URLEncoding.EncodeToString(b) + ".s"
		require.Equal(t, "nurse", jwtx.ExtractRole(token))
	})
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not a jwt":        "not-a-jwt",
		"two segments":     "a.b",
		"four segments":    "a.b.c.d",
		"bad base64":       "h.!!!.s",
		"not json":         "h." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".s",
		"json array":       "h." + base64.RawURLEncoding.EncodeToString([]byte(`["x"]`)) + ".s",
		"json null":        "h." + base64.RawURLEncoding.EncodeToString([]byte(`null`)) + ".s",
		"wrong exp type":   "h." + base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"soon"}`)) + ".s",
		"empty":            "",
		"empty payload":    "h..s",
		"user_id is array": "h." + base64.RawURLEncoding.EncodeToString([]byte(`{"user_id":[1]}`)) + ".s",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			require.Nil(t, jwtx.Decode(token))

			_, err := jwtx.Parse(token)
			require.ErrorIs(t, err, jwtx.ErrMalformed)

			require.Empty(t, jwtx.ExtractRole(token))
			require.Empty(t, jwtx.ExtractUserID(token))
			require.True(t, jwtx.IsExpired(token, time.Now()))
		})
	}
}

func TestIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("future expiry", func(t *testing.T) {
		token := unsigned(t, map[string]any{"exp": now.Add(time.Minute).Unix()})
		require.False(t, jwtx.IsExpired(token, now))
	})

	t.Run("past expiry", func(t *testing.T) {
		token := unsigned(t, map[string]any{"exp": now.Add(-time.Minute).Unix()})
		require.True(t, jwtx.IsExpired(token, now))
	})

	t.Run("expiry equal to now", func(t *testing.T) {
		at := time.Unix(now.Unix(), 0)
		token := unsigned(t, map[string]any{"exp": at.Unix()})
		require.True(t, jwtx.IsExpired(token, at))
	})

	t.Run("missing expiry fails closed", func(t *testing.T) {
		token := unsigned(t, map[string]any{"role": "patient"})
		require.True(t, jwtx.IsExpired(token, now))
	})

	t.Run("nil claims", func(t *testing.T) {
		var c *jwtx.Claims
		require.True(t, c.Expired(now))
		require.Empty(t, c.SubjectID())
		require.True(t, c.ExpiresAtTime().IsZero())
	})
}
