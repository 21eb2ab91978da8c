package cryptox_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

var cheapParams = cryptox.PasswordParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	for _, pw := range []string{"secret1", "P@ssw0rd!#$%", "", "   spaces   ", "пароль"} {
		t.Run(pw, func(t *testing.T) {
			t.Parallel()

			hash, err := cryptox.HashPassword(pw, cheapParams)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"))

			require.NoError(t, cryptox.VerifyPassword(pw, hash))
			require.ErrorIs(t, cryptox.VerifyPassword(pw+"x", hash), cryptox.ErrPasswordMismatch)
		})
	}
}

func TestHashPasswordSalts(t *testing.T) {
	t.Parallel()

	a, err := cryptox.HashPassword("secret1", cheapParams)
	require.NoError(t, err)
	b, err := cryptox.HashPassword("secret1", cheapParams)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, h := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA",
	} {
		err := cryptox.VerifyPassword("secret1", h)
		require.Error(t, err, h)
		require.NotErrorIs(t, err, cryptox.ErrPasswordMismatch, h)
	}
}
