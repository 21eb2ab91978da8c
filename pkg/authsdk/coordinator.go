package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/idx"
	"github.com/aussiebroadwan/medibook/pkg/jwtx"
)

// DefaultRefreshTimeout bounds one refresh call. A refresh that hangs would
// hold every waiting request hostage.
const DefaultRefreshTimeout = 30 * time.Second

// Phase names the coordinator's state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRefreshing
	PhaseLoggedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseRefreshing:
		return "REFRESHING"
	case PhaseLoggedOut:
		return "LOGGED_OUT"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// coordState is one of stateIdle, stateRefreshing or stateLoggedOut.
type coordState interface{ phase() Phase }

type (
	stateIdle       struct{}
	stateRefreshing struct{ call *refreshCall }
	stateLoggedOut  struct{}
)

func (stateIdle) phase() Phase       { return PhaseIdle }
func (stateRefreshing) phase() Phase { return PhaseRefreshing }
func (stateLoggedOut) phase() Phase  { return PhaseLoggedOut }

// refreshCall is the single in-flight refresh. token and err are written
// once, before done is closed.
type refreshCall struct {
	gen   uint64
	done  chan struct{}
	token string
	err   error
}

// sessionListener receives what the coordinator learns. gen identifies the
// session the news belongs to; listeners ignore news for ended sessions.
type sessionListener interface {
	roleChanged(gen uint64, ev RoleChangeEvent)
	sessionEnded(gen uint64, cause error)
}

// Refresher exchanges a refresh token for an access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Coordinator recovers from expired access tokens. It implements
// httpx.Recoverer; one instance must serve every client of the API.
type Coordinator struct {
	store     *credstore.Mirror
	refresher Refresher
	nav       Navigator
	routes    Routes
	timeout   time.Duration
	logger    *slog.Logger
	listener  sessionListener

	mu    sync.Mutex
	state coordState
	gen   uint64

	// writeMu orders credential writes between login, logout and refresh so a
	// refresh that lost to a logout cannot write after it.
	writeMu sync.Mutex
}

var _ httpx.Recoverer = (*Coordinator)(nil)

// CoordinatorConfig configures NewCoordinator.
type CoordinatorConfig struct {
	Store     *credstore.Mirror
	Refresher Refresher
	Navigator Navigator
	Routes    Routes
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		store:     cfg.Store,
		refresher: cfg.Refresher,
		nav:       cfg.Navigator,
		routes:    cfg.Routes.withDefaults(),
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		state:     stateIdle{},
	}
	if c.nav == nil {
		c.nav = nopNavigator{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultRefreshTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Phase reports the current state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.phase()
}

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Coordinator) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// RecoverUnauthorized is called for a 401 on a request sent with sentToken.
// It returns the token to replay with, starting a refresh or joining the one
// in flight.
func (c *Coordinator) RecoverUnauthorized(ctx context.Context, req *httpx.Request, sentToken string) (string, error) {
	c.mu.Lock()
	var call *refreshCall
	switch st := c.state.(type) {
	case stateLoggedOut:
		c.mu.Unlock()
		return "", ErrLoggedOut

	case stateRefreshing:
		call = st.call

	case stateIdle:
		// The request went out before an earlier refresh stored a new token;
		// replaying with that token is enough.
		if current := c.store.AccessToken(); current != "" && current != sentToken {
			c.mu.Unlock()
			return current, nil
		}
		call = &refreshCall{gen: c.gen, done: make(chan struct{})}
		c.state = stateRefreshing{call: call}
		c.logger.InfoContext(ctx, "access token rejected, refreshing", "op", req.String())
		go c.run(call)

	default:
		c.mu.Unlock()
		panic(fmt.Sprintf("authsdk: unknown coordinator state %T", st))
	}
	c.mu.Unlock()

	// Waiters leave on their own cancellation; the refresh carries on for
	// the others.
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run performs the refresh on its own deadline so no single waiter's
// context can cancel it.
func (c *Coordinator) run(call *refreshCall) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	token, ev, err := c.refresh(ctx, call.gen)
	if ev != nil && c.listener != nil {
		c.listener.roleChanged(call.gen, *ev)
	}
	c.settle(ctx, call, token, err)
}

func (c *Coordinator) refresh(ctx context.Context, gen uint64) (string, *RoleChangeEvent, error) {
	refreshToken, ok, err := credstore.Lookup(ctx, c.store, credstore.KeyRefreshToken)
	if err != nil {
		return "", nil, fmt.Errorf("read refresh token: %w", err)
	}
	if !ok || refreshToken == "" {
		return "", nil, errNoRefreshToken
	}

	token, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", nil, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.isCurrent(gen) {
		c.logger.InfoContext(ctx, "discarding refresh result, session ended meanwhile")
		return "", nil, ErrLoggedOut
	}

	// Role is always derived from tokens, never from cached state.
	oldRole := jwtx.ExtractRole(c.store.AccessToken())
	newRole := jwtx.ExtractRole(token)

	if err := c.store.Set(ctx, credstore.KeyAccessToken, token); err != nil {
		return "", nil, fmt.Errorf("store access token: %w", err)
	}

	if oldRole == newRole {
		return token, nil, nil
	}
	c.logger.InfoContext(ctx, "role changed on refresh", "old_role", oldRole, "new_role", newRole)
	return token, &RoleChangeEvent{
		ID:        idx.Event(),
		OldRole:   oldRole,
		NewRole:   newRole,
		Timestamp: time.Now().UTC(),
	}, nil
}

// settle publishes the outcome to every waiter and leaves REFRESHING. A
// failure in the current session ends it before waiters are released.
func (c *Coordinator) settle(ctx context.Context, call *refreshCall, token string, err error) {
	if err != nil && !errors.Is(err, ErrLoggedOut) {
		err = fmt.Errorf("%w: %w", ErrRefreshExhausted, err)
	}

	c.mu.Lock()
	current := c.gen == call.gen
	// Login or logout may already have replaced the state.
	if st, ok := c.state.(stateRefreshing); ok && st.call == call {
		if err != nil {
			c.state = stateLoggedOut{}
		} else {
			c.state = stateIdle{}
		}
	}
	c.mu.Unlock()

	// A refresh that stored its token just before the session ended still
	// must not let its waiters replay.
	if err == nil && !current {
		token, err = "", ErrLoggedOut
	}

	if err != nil && current && errors.Is(err, ErrRefreshExhausted) {
		c.collapse(ctx, call.gen, err)
	}

	call.token, call.err = token, err
	close(call.done)
}

// collapse ends the session after an unrecoverable refresh.
func (c *Coordinator) collapse(ctx context.Context, gen uint64, cause error) {
	c.logger.WarnContext(ctx, "session ended, refresh failed", "error", cause)

	c.writeMu.Lock()
	if c.isCurrent(gen) {
		if err := c.store.MultiRemove(context.WithoutCancel(ctx), credstore.CredentialKeys...); err != nil {
			c.logger.ErrorContext(ctx, "clear credentials", "error", err)
		}
	}
	c.writeMu.Unlock()

	if c.listener != nil {
		c.listener.sessionEnded(gen, cause)
	}
	if c.isCurrent(gen) {
		c.nav.NavigateTo(c.routes.Login)
	}
}

// BeginSession stores freshly issued credentials and starts a new session.
// Any refresh still in flight belongs to the previous session and is
// discarded when it settles.
func (c *Coordinator) BeginSession(ctx context.Context, values map[string]string) (uint64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = stateIdle{}
	c.mu.Unlock()

	if err := c.store.MultiSet(ctx, values); err != nil {
		return gen, fmt.Errorf("store credentials: %w", err)
	}
	return gen, nil
}

// Resume marks stored credentials of the current identity as live without
// writing anything. A refresh in flight keeps running.
func (c *Coordinator) Resume() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.(stateRefreshing); !ok {
		c.state = stateIdle{}
	}
	return c.gen
}

// Adopt starts a new session for credentials that were stored by someone
// else, at startup or by another process. A refresh still in flight belongs
// to the previous identity and is discarded when it settles.
func (c *Coordinator) Adopt() uint64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = stateIdle{}
	return c.gen
}

// EndSession removes the credentials and moves to LOGGED_OUT. It is safe to
// call repeatedly.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.state = stateLoggedOut{}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.MultiRemove(ctx, credstore.CredentialKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
