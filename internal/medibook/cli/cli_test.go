package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/medibook/pkg/authsdk"
	"github.com/aussiebroadwan/medibook/pkg/authtest"
	"github.com/aussiebroadwan/medibook/pkg/guard"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t       *testing.T
	backend *authtest.Backend
	base    []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend, url := authtest.Serve(t, authtest.Options{
		Users: []authtest.User{
			{Username: "alice", Password: "wonderland", Role: authtest.RolePatient},
			{Username: "root", Password: "hunter22", Role: authtest.RoleAdmin},
		},
	})
	return &harness{
		t:       t,
		backend: backend,
		base: []string{
			"--api-url", url,
			"--store", "file",
			"--store-path", filepath.Join(t.TempDir(), "credentials.json"),
			"--log-level", "error",
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(args, h.base...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func TestBookingFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.Contains(t, h.mustRun("whoami"), "not logged in")

	out := h.mustRun("login", "-u", "alice", "-p", "wonderland")
	require.Contains(t, out, "logged in as alice")
	require.Contains(t, out, "role patient")

	require.Contains(t, h.mustRun("whoami"), "role patient")
	require.Contains(t, h.mustRun("doctors"), "Dr. Amelia Hart")
	require.Contains(t, h.mustRun("appointments"), "no appointments")

	out = h.mustRun("book", "--doctor", "1", "--date", "2031-03-14", "--name", "Alice", "--age", "30")
	require.Contains(t, out, "booked appointment 1 with Dr. Amelia Hart on 2031-03-14, serial 1")

	out = h.mustRun("appts")
	require.Contains(t, out, "2031-03-14")
	require.Contains(t, out, "Alice")

	require.NotEmpty(t, h.mustRun("cancel", "1"))
	require.Contains(t, h.mustRun("appointments"), "no appointments")

	require.Contains(t, h.mustRun("logout"), "logged out")
	require.Contains(t, h.mustRun("whoami"), "not logged in")
}

func TestRefreshAcrossInvocations(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.mustRun("login", "-u", "alice", "-p", "wonderland")
	h.backend.ExpireAccessTokens()

	require.Contains(t, h.mustRun("doctors"), "Dr. Amelia Hart")
	require.EqualValues(t, 1, h.backend.RefreshCalls())

	// The refreshed token was stored, so the next run needs no refresh.
	h.mustRun("doctors")
	require.EqualValues(t, 1, h.backend.RefreshCalls())
}

func TestRevokedSessionEnds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.mustRun("login", "-u", "alice", "-p", "wonderland")
	h.backend.ExpireAccessTokens()
	h.backend.RevokeRefreshTokens()

	_, err := h.run("doctors")
	require.ErrorIs(t, err, authsdk.ErrRefreshExhausted)
	require.Contains(t, describe(err), "session has ended")

	require.Contains(t, h.mustRun("whoami"), "not logged in")
}

func TestGuards(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.run("doctors")
	require.ErrorIs(t, err, guard.ErrLoginRequired)

	_, err = h.run("ask", "hello")
	require.ErrorIs(t, err, guard.ErrLoginRequired)

	h.mustRun("login", "-u", "alice", "-p", "wonderland")
	_, err = h.run("org", "users", "some-client")
	require.ErrorIs(t, err, guard.ErrForbidden)
	require.Zero(t, h.backend.Rejected())
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.run("login", "-u", "alice", "-p", "wrong")
	require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)

	_, err = h.run("login", "-u", "alice")
	require.Error(t, err)
	require.Contains(t, h.mustRun("whoami"), "not logged in")
}

func TestPasswordFromStdin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("wonderland\n"))
	cmd.SetArgs(append([]string{"login", "-u", "alice", "--password-stdin"}, h.base...))
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "logged in as alice")
}

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.Contains(t, h.mustRun("register", "-u", "bob", "-p", "builder123"), "User registered successfully")
	require.Contains(t, h.mustRun("login", "-u", "bob", "-p", "builder123"), "logged in as bob")

	_, err := h.run("register", "-u", "bob", "-p", "builder123")
	require.Error(t, err)
}

func TestAssistant(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.mustRun("login", "-u", "alice", "-p", "wonderland")

	require.Contains(t, h.mustRun("ask", "book", "me", "in", "--language", "fr"), "book me in")
}

func TestOrganisationAdmin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.mustRun("login", "-u", "root", "-p", "hunter22")

	out := h.mustRun("org", "create", "--name", "Harbour Clinic", "--email", "desk@harbour.test", "--address", "1 Quay St", "--mobile", "0400000000")
	require.Contains(t, out, "Harbour Clinic")

	id := strings.Fields(strings.TrimPrefix(out, "created organisation "))[0]
	require.Contains(t, h.mustRun("org", "users", id), "Harbour Clinic: 0 users")
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want string
	}{
		"logged out":     {authsdk.ErrLoggedOut, "session has ended"},
		"login required": {guard.ErrLoginRequired, "not logged in"},
		"network":        {&httpx.NetworkError{Err: errors.New("connection refused")}, "cannot reach the booking service: connection refused"},
		"other":          {errors.New("boom"), "boom"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, describe(tc.err), tc.want)
		})
	}
}

func TestParseMockUsers(t *testing.T) {
	t.Parallel()

	users, err := parseMockUsers(nil)
	require.NoError(t, err)
	require.Equal(t, mockUsers, users)

	users, err = parseMockUsers([]string{"ann:pw", "dee:pw2:doctor:clinic-1"})
	require.NoError(t, err)
	require.Equal(t, []authtest.User{
		{Username: "ann", Password: "pw", Role: authtest.RolePatient},
		{Username: "dee", Password: "pw2", Role: authtest.RoleDoctor, ClientID: "clinic-1"},
	}, users)

	for _, bad := range []string{"", "ann", ":pw", "ann:"} {
		_, err := parseMockUsers([]string{bad})
		require.Error(t, err, bad)
	}
}

func TestServeUntilDone(t *testing.T) {
	t.Parallel()

	backend, err := authtest.New(authtest.Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveUntilDone(ctx, &http.Server{Handler: backend}, ln, slogx.Discard())
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/doctors")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}
