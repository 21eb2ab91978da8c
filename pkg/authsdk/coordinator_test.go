package authsdk_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/authsdk"
	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/aussiebroadwan/medibook/pkg/credstore/memory"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type refresherFunc func(ctx context.Context, refreshToken string) (string, error)

func (f refresherFunc) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return f(ctx, refreshToken)
}

type recordingNav struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNav) NavigateTo(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNav) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

func newMirror(t *testing.T, values map[string]string) *credstore.Mirror {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	require.NoError(t, st.MultiSet(ctx, values))
	m, err := credstore.NewMirror(ctx, st)
	require.NoError(t, err)
	return m
}

func newCoordinator(t *testing.T, m *credstore.Mirror, r authsdk.Refresher, nav authsdk.Navigator) *authsdk.Coordinator {
	t.Helper()
	return authsdk.NewCoordinator(authsdk.CoordinatorConfig{
		Store:     m,
		Refresher: r,
		Navigator: nav,
		Timeout:   time.Second,
	})
}

func anyRequest() *httpx.Request { return httpx.NewRequest(http.MethodGet, "/appointments") }

func TestPhaseString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "IDLE", authsdk.PhaseIdle.String())
	require.Equal(t, "REFRESHING", authsdk.PhaseRefreshing.String())
	require.Equal(t, "LOGGED_OUT", authsdk.PhaseLoggedOut.String())
	require.Equal(t, "Phase(9)", authsdk.Phase(9).String())
}

func TestCoordinatorSharesOneRefresh(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{
		credstore.KeyAccessToken:  "old",
		credstore.KeyRefreshToken: "r1",
	})

	var calls atomic.Int32
	release := make(chan struct{})
	c := newCoordinator(t, m, refresherFunc(func(ctx context.Context, rt string) (string, error) {
		calls.Add(1)
		<-release
		if rt != "r1" {
			return "", errors.New("wrong refresh token " + rt)
		}
		return "new", nil
	}), nil)

	const waiters = 10
	var wg sync.WaitGroup
	tokens := make([]string, waiters)
	errs := make([]error, waiters)
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = c.RecoverUnauthorized(context.Background(), anyRequest(), "old")
		}()
	}

	require.Eventually(t, func() bool { return c.Phase() == authsdk.PhaseRefreshing }, waitFor, tick)
	close(release)
	wg.Wait()

	for i := range waiters {
		require.NoError(t, errs[i])
		require.Equal(t, "new", tokens[i])
	}
	require.EqualValues(t, 1, calls.Load())
	require.Equal(t, authsdk.PhaseIdle, c.Phase())
	require.Equal(t, "new", m.AccessToken())
}

func TestCoordinatorReplaysStaleUnauthorized(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{
		credstore.KeyAccessToken:  "current",
		credstore.KeyRefreshToken: "r1",
	})
	c := newCoordinator(t, m, refresherFunc(func(context.Context, string) (string, error) {
		t.Error("refresh must not run")
		return "", errors.New("unexpected")
	}), nil)

	tok, err := c.RecoverUnauthorized(context.Background(), anyRequest(), "superseded")
	require.NoError(t, err)
	require.Equal(t, "current", tok)
	require.Equal(t, authsdk.PhaseIdle, c.Phase())
}

func TestCoordinatorLoggedOutDoesNoIO(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{
		credstore.KeyAccessToken:  "a",
		credstore.KeyRefreshToken: "r",
		credstore.KeyClientID:     "clinic-1",
	})
	var calls atomic.Int32
	c := newCoordinator(t, m, refresherFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "x", nil
	}), nil)

	ctx := context.Background()
	require.NoError(t, c.EndSession(ctx))
	require.NoError(t, c.EndSession(ctx))
	require.Equal(t, authsdk.PhaseLoggedOut, c.Phase())

	_, err := c.RecoverUnauthorized(ctx, anyRequest(), "a")
	require.ErrorIs(t, err, authsdk.ErrLoggedOut)
	require.Zero(t, calls.Load())

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{credstore.KeyClientID}, keys)
}

func TestCoordinatorWithoutRefreshTokenEndsSession(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{credstore.KeyAccessToken: "a", credstore.KeyUserID: "7"})
	nav := &recordingNav{}
	c := newCoordinator(t, m, refresherFunc(func(context.Context, string) (string, error) {
		t.Error("refresh must not run")
		return "", nil
	}), nav)

	_, err := c.RecoverUnauthorized(context.Background(), anyRequest(), "a")
	require.ErrorIs(t, err, authsdk.ErrRefreshExhausted)
	require.Equal(t, authsdk.PhaseLoggedOut, c.Phase())
	require.Equal(t, []string{"/login"}, nav.Routes())
	require.Empty(t, m.AccessToken())

	_, ok, err := credstore.Lookup(context.Background(), m, credstore.KeyUserID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCoordinatorRefreshFailure(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{credstore.KeyAccessToken: "a", credstore.KeyRefreshToken: "r"})
	nav := &recordingNav{}
	cause := &httpx.HTTPError{Op: "POST /refresh", StatusCode: http.StatusUnauthorized, Message: "revoked"}
	c := newCoordinator(t, m, refresherFunc(func(context.Context, string) (string, error) {
		return "", cause
	}), nav)

	_, err := c.RecoverUnauthorized(context.Background(), anyRequest(), "a")
	require.ErrorIs(t, err, authsdk.ErrRefreshExhausted)
	require.ErrorIs(t, err, httpx.ErrUnauthorized)
	require.Equal(t, []string{"/login"}, nav.Routes())

	// The session stays over until a new one begins.
	_, err = c.RecoverUnauthorized(context.Background(), anyRequest(), "a")
	require.ErrorIs(t, err, authsdk.ErrLoggedOut)

	gen, err := c.BeginSession(context.Background(), map[string]string{credstore.KeyAccessToken: "b"})
	require.NoError(t, err)
	require.NotZero(t, gen)
	require.Equal(t, authsdk.PhaseIdle, c.Phase())
	require.Equal(t, "b", m.AccessToken())
}

func TestCoordinatorWaiterCancellation(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{credstore.KeyAccessToken: "a", credstore.KeyRefreshToken: "r"})
	release := make(chan struct{})
	c := newCoordinator(t, m, refresherFunc(func(context.Context, string) (string, error) {
		<-release
		return "b", nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.RecoverUnauthorized(ctx, anyRequest(), "a")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.Phase() == authsdk.PhaseRefreshing }, waitFor, tick)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The refresh itself carries on for everyone else.
	close(release)
	require.Eventually(t, func() bool { return c.Phase() == authsdk.PhaseIdle }, waitFor, tick)
	require.Equal(t, "b", m.AccessToken())
}

func TestCoordinatorRefreshTimeout(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{credstore.KeyAccessToken: "a", credstore.KeyRefreshToken: "r"})
	c := authsdk.NewCoordinator(authsdk.CoordinatorConfig{
		Store: m,
		Refresher: refresherFunc(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		Timeout: 20 * time.Millisecond,
	})

	_, err := c.RecoverUnauthorized(context.Background(), anyRequest(), "a")
	require.ErrorIs(t, err, authsdk.ErrRefreshExhausted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, authsdk.PhaseLoggedOut, c.Phase())
}

func TestCoordinatorEndSessionDuringRefresh(t *testing.T) {
	t.Parallel()

	m := newMirror(t, map[string]string{credstore.KeyAccessToken: "a", credstore.KeyRefreshToken: "r"})
	nav := &recordingNav{}
	release := make(chan struct{})
	c := newCoordinator(t, m, refresherFunc(func(context.Context, string) (string, error) {
		<-release
		return "b", nil
	}), nav)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.RecoverUnauthorized(context.Background(), anyRequest(), "a")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return c.Phase() == authsdk.PhaseRefreshing }, waitFor, tick)

	require.NoError(t, c.EndSession(context.Background()))
	close(release)

	require.ErrorIs(t, <-errCh, authsdk.ErrLoggedOut)
	require.Equal(t, authsdk.PhaseLoggedOut, c.Phase())
	require.Empty(t, m.AccessToken())
	require.Empty(t, nav.Routes(), "logout navigates, not the coordinator")
}
