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
	"github.com/aussiebroadwan/medibook/pkg/jwtx"
)

// Config wires a Session.
type Config struct {
	// HTTP is the client every API call goes through. New installs the
	// session's Coordinator as its Recoverer.
	HTTP *httpx.Client

	Store     *credstore.Mirror
	Navigator Navigator
	Routes    Routes

	// RefreshTimeout defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

// Session is the application-facing view of authentication.
type Session struct {
	client *Client
	coord  *Coordinator
	store  *credstore.Mirror
	nav    Navigator
	routes Routes
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	observers map[uint64]func(RoleChangeEvent)
	nextObs   uint64
}

// New builds a Session and its Coordinator. The session starts loading;
// call Restore to read stored credentials.
func New(cfg Config) (*Session, error) {
	if cfg.HTTP == nil {
		return nil, errors.New("authsdk: HTTP client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("authsdk: credential store is required")
	}

	s := &Session{
		client:    NewClient(cfg.HTTP),
		store:     cfg.Store,
		nav:       cfg.Navigator,
		routes:    cfg.Routes.withDefaults(),
		logger:    cfg.Logger,
		state:     State{IsLoading: true},
		observers: make(map[uint64]func(RoleChangeEvent)),
	}
	if s.nav == nil {
		s.nav = nopNavigator{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.coord = NewCoordinator(CoordinatorConfig{
		Store:     cfg.Store,
		Refresher: s.client,
		Navigator: s.nav,
		Routes:    s.routes,
		Timeout:   cfg.RefreshTimeout,
		Logger:    s.logger,
	})
	s.coord.listener = s
	cfg.HTTP.SetRecoverer(s.coord)

	return s, nil
}

// Coordinator returns the refresh coordinator, for installing on other
// clients of the same API.
func (s *Session) Coordinator() *Coordinator { return s.coord }

// Routes returns the navigation routes in use.
func (s *Session) Routes() Routes { return s.routes }

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool { return s.State().IsAuthenticated }
func (s *Session) IsLoading() bool       { return s.State().IsLoading }
func (s *Session) UserID() string        { return s.State().UserID }
func (s *Session) Role() string          { return s.State().Role }

// Restore reads stored credentials at startup. A session is restored when
// both an access token and a user id are stored; anything else, including
// a storage error, leaves the session anonymous. Loading ends either way.
func (s *Session) Restore(ctx context.Context) error {
	access, userID, err := s.readIdentity(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = State{}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if access == "" || userID == "" {
		return nil
	}

	if prev.IsAuthenticated && prev.UserID == userID {
		s.coord.Resume()
	} else {
		s.coord.Adopt()
	}
	s.state = State{
		IsAuthenticated: true,
		UserID:          userID,
		Role:            jwtx.ExtractRole(access),
	}
	s.logger.InfoContext(ctx, "session restored", "user_id", userID, "role", s.state.Role)
	if jwtx.IsExpired(access, time.Now()) {
		s.logger.InfoContext(ctx, "stored access token has expired, the first request will refresh it")
	}
	return nil
}

func (s *Session) readIdentity(ctx context.Context) (access, userID string, err error) {
	if err := s.store.Reload(ctx); err != nil {
		return "", "", err
	}
	access = s.store.AccessToken()

	userID, _, err = credstore.Lookup(ctx, s.store, credstore.KeyUserID)
	if err != nil {
		return "", "", err
	}
	return access, userID, nil
}

// Sync brings the session in line with credentials another process wrote
// to the same store: a removed identity logs out, a new one is restored,
// and a changed role is announced.
func (s *Session) Sync(ctx context.Context) error {
	access, userID, err := s.readIdentity(ctx)
	if err != nil {
		return fmt.Errorf("sync session: %w", err)
	}

	st := s.State()
	switch {
	case st.IsAuthenticated && (access == "" || userID == ""):
		s.logger.InfoContext(ctx, "credentials removed by another process")
		return s.Logout(ctx)
	case access == "" || userID == "":
		return nil
	case !st.IsAuthenticated || st.UserID != userID:
		return s.Restore(ctx)
	}
	return s.RefreshRole(ctx)
}

// Login authenticates with the backend, stores the token pair and user id,
// and navigates home. A rejected login returns an error matching
// ErrInvalidCredentials; no response at all is an *httpx.NetworkError.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	if creds.ClientID == "" {
		creds.ClientID = s.storedClientID(ctx)
	}

	resp, err := s.client.Login(ctx, creds)
	if err != nil {
		return err
	}

	userID := resp.UserID.String()
	if userID == "" {
		if claims := jwtx.Decode(resp.AccessToken); claims != nil {
			userID = claims.SubjectID()
		}
	}

	gen, err := s.coord.BeginSession(ctx, map[string]string{
		credstore.KeyAccessToken:  resp.AccessToken,
		credstore.KeyRefreshToken: resp.RefreshToken,
		credstore.KeyUserID:       userID,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.coord.isCurrent(gen) {
		s.state = State{
			IsAuthenticated: true,
			UserID:          userID,
			Role:            jwtx.ExtractRole(resp.AccessToken),
		}
	}
	role := s.state.Role
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "logged in", "user_id", userID, "role", role)
	s.nav.NavigateTo(s.routes.Home)
	return nil
}

// Register creates an account after validating the form locally, then
// navigates to the login route. It does not log in.
func (s *Session) Register(ctx context.Context, reg Registration) (*RegisterResponse, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if reg.ClientID == "" {
		reg.ClientID = s.storedClientID(ctx)
	}

	resp, err := s.client.Register(ctx, reg)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "registered", "username", reg.Username)
	s.nav.NavigateTo(s.routes.Login)
	return resp, nil
}

// Logout ends the session. Calling it again is harmless. Credentials are
// removed even when a refresh is in flight; that refresh's result is
// discarded.
func (s *Session) Logout(ctx context.Context) error {
	err := s.coord.EndSession(ctx)

	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "logged out")
	s.nav.NavigateTo(s.routes.Login)
	return err
}

// SetClientID stores the organisation client id sent with login and
// registration. It survives logout.
func (s *Session) SetClientID(ctx context.Context, clientID string) error {
	if clientID == "" {
		return s.store.Remove(ctx, credstore.KeyClientID)
	}
	return s.store.Set(ctx, credstore.KeyClientID, clientID)
}

func (s *Session) storedClientID(ctx context.Context) string {
	id, _, err := credstore.Lookup(ctx, s.store, credstore.KeyClientID)
	if err != nil {
		s.logger.WarnContext(ctx, "read client id", "error", err)
	}
	return id
}

// sessionEnded is called by the Coordinator after a failed refresh.
func (s *Session) sessionEnded(gen uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.coord.isCurrent(gen) {
		return
	}
	s.state = State{}
	s.logger.Warn("session expired", "cause", cause)
}
