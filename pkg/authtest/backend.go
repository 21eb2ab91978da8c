// Package authtest is an in-process stand-in for the booking backend. It
// issues real signed tokens, enforces them on the domain endpoints, and
// exposes controls for driving refresh races in tests and local
// development.
package authtest

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/booking"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTTL is the lifetime of minted access tokens.
const DefaultAccessTTL = 15 * time.Minute

// Role names the backend understands.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// fastPasswords keeps hashing cheap; this backend never guards real
// accounts.
var fastPasswords = cryptox.PasswordParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// User seeds an account.
type User struct {
	Username string
	Password string
	Role     string
	ClientID string
}

// Options configures New.
type Options struct {
	// SigningKey signs access tokens. A fresh key is generated when nil.
	SigningKey ed25519.PrivateKey

	AccessTTL time.Duration
	Users     []User
	Doctors   []booking.Doctor

	// PasswordParams default to a deliberately cheap Argon2id setting.
	PasswordParams *cryptox.PasswordParams
	Logger         *slog.Logger
}

type account struct {
	id        int
	username  string
	hash      string
	role      string
	clientID  string
	active    bool
	createdAt time.Time
}

// Backend serves the booking API. It is safe for concurrent use.
type Backend struct {
	mux       *http.ServeMux
	key       ed25519.PrivateKey
	parser    *jwt.Parser
	accessTTL time.Duration
	pwParams  cryptox.PasswordParams
	logger    *slog.Logger

	mu       sync.Mutex
	accounts map[string]*account
	byID     map[int]*account
	nextUser int
	live     map[string]int // access jti -> user id
	refresh  map[string]int // refresh fingerprint -> user id

	gate        chan struct{}
	failRefresh bool

	doctors      []booking.Doctor
	appointments map[int]*booking.Appointment
	owners       map[int]int // appointment id -> user id
	nextAppt     int
	audio        map[string][]byte
	orgs         map[string]*booking.Organisation

	refreshCalls atomic.Int64
	rejected     atomic.Int64
}

// New returns a backend seeded from opts.
func New(opts Options) (*Backend, error) {
	b := &Backend{
		mux:          http.NewServeMux(),
		key:          opts.SigningKey,
		parser:       jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithExpirationRequired()),
		accessTTL:    opts.AccessTTL,
		pwParams:     fastPasswords,
		logger:       opts.Logger,
		accounts:     make(map[string]*account),
		byID:         make(map[int]*account),
		nextUser:     1,
		live:         make(map[string]int),
		refresh:      make(map[string]int),
		doctors:      opts.Doctors,
		appointments: make(map[int]*booking.Appointment),
		owners:       make(map[int]int),
		nextAppt:     1,
		audio:        make(map[string][]byte),
		orgs:         make(map[string]*booking.Organisation),
	}
	if b.key == nil {
		key, err := cryptox.NewSigningKey()
		if err != nil {
			return nil, err
		}
		b.key = key
	}
	if b.accessTTL <= 0 {
		b.accessTTL = DefaultAccessTTL
	}
	if opts.PasswordParams != nil {
		b.pwParams = *opts.PasswordParams
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.doctors == nil {
		b.doctors = defaultDoctors()
	}

	for _, u := range opts.Users {
		if _, err := b.AddUser(u); err != nil {
			return nil, err
		}
	}

	b.routes()
	return b, nil
}

func defaultDoctors() []booking.Doctor {
	return []booking.Doctor{
		{ID: 1, Name: "Dr. Amelia Hart", Specialization: "General Practice", Availability: "Mon-Fri"},
		{ID: 2, Name: "Dr. Rahul Mehta", Specialization: "Cardiology", Availability: "Tue, Thu"},
		{ID: 3, Name: "Dr. Sofia Lindqvist", Specialization: "Dermatology", Availability: "Wed"},
	}
}

var errUserExists = errors.New("username already exists")

// AddUser creates an account and returns its id.
func (b *Backend) AddUser(u User) (int, error) {
	if u.Username == "" || u.Password == "" {
		return 0, errors.New("authtest: username and password are required")
	}
	if u.Role == "" {
		u.Role = RolePatient
	}
	hash, err := cryptox.HashPassword(u.Password, b.pwParams)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.accounts[u.Username]; ok {
		return 0, errUserExists
	}
	a := &account{
		id:        b.nextUser,
		username:  u.Username,
		hash:      hash,
		role:      u.Role,
		clientID:  u.ClientID,
		active:    true,
		createdAt: time.Now().UTC(),
	}
	b.nextUser++
	b.accounts[a.username] = a
	b.byID[a.id] = a
	return a.id, nil
}

// UserID returns the id of username, or 0.
func (b *Backend) UserID(username string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[username]; ok {
		return a.id
	}
	return 0
}

// ServeHTTP implements http.Handler. Handlers log through a contextual
// logger tagged with the caller's X-Request-ID.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := slogx.WithContext(r.Context(), b.logger.With("method", r.Method, "path", r.URL.Path))
	if id := r.Header.Get("X-Request-ID"); id != "" {
		ctx = slogx.WithRequestID(ctx, id)
	}
	b.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (b *Backend) routes() {
	b.mux.HandleFunc("POST /login", b.handleLogin)
	b.mux.HandleFunc("POST /register", b.handleRegister)
	b.mux.HandleFunc("POST /refresh", b.handleRefresh)

	b.mux.Handle("GET /doctors", b.protect(b.handleDoctors))
	b.mux.Handle("GET /appointments", b.protect(b.handleAppointments))
	b.mux.Handle("POST /appointments", b.protect(b.handleCreateAppointment))
	b.mux.Handle("DELETE /appointments/{id}", b.protect(b.handleCancelAppointment))

	b.mux.Handle("POST /process-audio", b.protect(b.handleProcessAudio))
	b.mux.Handle("POST /api/transactions", b.protect(b.handleProcessText))
	b.mux.Handle("GET /get-audio/{id}", b.protect(b.handleGetAudio))
	b.mux.Handle("DELETE /cleanup/{id}", b.protect(b.handleCleanup))

	b.mux.Handle("POST /api/clients", b.protect(b.handleCreateOrganisation, RoleAdmin))
	b.mux.Handle("GET /api/clients/{id}/users", b.protect(b.handleOrganisationUsers, RoleAdmin))
	b.mux.Handle("PUT /api/data-users/{id}", b.protect(b.handleUpdateDataUser))
}

// protect requires a live access token and, when roles are given, one of
// them.
func (b *Backend) protect(h http.HandlerFunc, roles ...string) http.Handler {
	mws := []httpx.Middleware{b.countRejections, httpx.AuthnMiddleware(b)}
	if len(roles) > 0 {
		mws = append(mws, httpx.RequireAnyRole(roles...))
	}
	return httpx.Chain(h, mws...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (b *Backend) countRejections(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status == http.StatusUnauthorized {
			b.rejected.Add(1)
		}
	})
}

// callerID returns the authenticated user id from the request claims.
func callerID(r *http.Request) (int, error) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		return 0, errors.New("no claims")
	}
	id, err := strconv.Atoi(claims.SubjectID())
	if err != nil {
		return 0, fmt.Errorf("subject %q: %w", claims.SubjectID(), err)
	}
	return id, nil
}
