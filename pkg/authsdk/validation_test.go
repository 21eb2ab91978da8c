package authsdk_test

import (
	"testing"

	"github.com/aussiebroadwan/medibook/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestRegistrationValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		reg  authsdk.Registration
		want []string
	}{
		"ok":              {authsdk.Registration{Username: "bob", Password: "secret", ConfirmPassword: "secret"}, nil},
		"short username":  {authsdk.Registration{Username: "bo", Password: "secret", ConfirmPassword: "secret"}, []string{"username"}},
		"blank username":  {authsdk.Registration{Username: "   ", Password: "secret", ConfirmPassword: "secret"}, []string{"username"}},
		"short password":  {authsdk.Registration{Username: "bob", Password: "12345", ConfirmPassword: "12345"}, []string{"password"}},
		"mismatch":        {authsdk.Registration{Username: "bob", Password: "secret", ConfirmPassword: "secreT"}, []string{"confirm_password"}},
		"everything awry": {authsdk.Registration{}, []string{"username", "password"}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.reg.Validate()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			var verr authsdk.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr, len(tc.want))
			for _, field := range tc.want {
				require.Contains(t, verr, field)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	err := authsdk.ValidationError{"password": "is required", "username": "is required"}
	require.Equal(t, "invalid input: password is required; username is required", err.Error())
}
