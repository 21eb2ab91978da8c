// Package app wires the medibook client: configuration, logging, the
// credential store, the HTTP client, the session and the booking API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/authsdk"
	"github.com/aussiebroadwan/medibook/pkg/booking"
	"github.com/aussiebroadwan/medibook/pkg/credstore"
	"github.com/aussiebroadwan/medibook/pkg/credstore/bolt"
	"github.com/aussiebroadwan/medibook/pkg/credstore/filestore"
	"github.com/aussiebroadwan/medibook/pkg/credstore/memory"
	"github.com/aussiebroadwan/medibook/pkg/credstore/sqlite"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// authBuckets are the credential endpoints limited by httpx.AuthLimit.
var authBuckets = []string{"login", "register"}

// refreshBucket is never limited: a throttled refresh would run out its
// deadline and end the session.
const refreshBucket = "refresh"

// Application holds the wired client.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store  credstore.Store
	mirror *credstore.Mirror
	http   *httpx.Client

	Session *authsdk.Session
	Booking *booking.Client

	stopWatch context.CancelFunc
}

// Options carry what the embedding program supplies.
type Options struct {
	// Navigator receives route changes. Nil logs them at debug.
	Navigator authsdk.Navigator

	// Logger replaces the one built from the config.
	Logger *slog.Logger
}

// New builds the application and restores any stored session.
func New(ctx context.Context, cfg Config, opts Options) (*Application, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "medibook",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}
	app := &Application{cfg: cfg, logger: logger}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = app.store.Close()
		return nil, err
	}

	nav := opts.Navigator
	if nav == nil {
		nav = authsdk.NavigatorFunc(func(route string) {
			logger.Debug("navigate", "route", route)
		})
	}

	session, err := authsdk.New(authsdk.Config{
		HTTP:           app.http,
		Store:          app.mirror,
		Navigator:      nav,
		RefreshTimeout: cfg.RefreshTimeout,
		Logger:         logger,
	})
	if err != nil {
		_ = app.store.Close()
		return nil, err
	}
	app.Session = session
	app.Booking = booking.New(app.http)

	if err := session.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "could not restore session", "error", err)
	}
	return app, nil
}

// initStore opens the configured credential store behind a Mirror.
func (app *Application) initStore(ctx context.Context) error {
	codec, err := cryptox.LoadCodec(app.cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("load master key: %w", err)
	}
	if _, sealed := codec.(*cryptox.Sealer); sealed {
		app.logger.Debug("credential store is sealed")
	}

	st, err := OpenStore(app.cfg.Store, app.cfg.StorePath, codec)
	if err != nil {
		return err
	}

	mirror, err := credstore.NewMirror(ctx, st)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("read credential store: %w", err)
	}

	app.store = st
	app.mirror = mirror
	app.logger.Debug("credential store opened", "driver", app.cfg.Store, "path", app.cfg.StorePath)
	return nil
}

// OpenStore opens a credential store driver.
func OpenStore(driver, path string, codec cryptox.Codec) (credstore.Store, error) {
	if driver != StoreMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	switch driver {
	case StoreMemory:
		return memory.New(), nil
	case StoreFile, "":
		return filestore.New(path, codec)
	case StoreSQLite:
		return sqlite.Open(sqlite.DSN(path), codec)
	case StoreBolt:
		return bolt.Open(path, codec)
	}
	return nil, fmt.Errorf("unknown credential store %q", driver)
}

func newRateLimiter(cfg Config) *httpx.RateLimiter {
	limiter := httpx.NewRateLimiter(httpx.ParseRateLimitFromEnv("DEFAULT", httpx.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit,
		Window:            time.Minute,
		Burst:             cfg.RateBurst,
	}), httpx.RouteKey)
	for _, bucket := range authBuckets {
		limiter.Override(bucket, httpx.AuthLimit)
	}
	return limiter.Override(refreshBucket, httpx.RateLimitConfig{})
}

func (app *Application) initHTTP() error {
	h, err := httpx.New(httpx.Options{
		BaseURL:       app.cfg.APIURL,
		Timeout:       app.cfg.RequestTimeout,
		Tokens:        app.mirror,
		Limiter:       newRateLimiter(app.cfg),
		ResponseHooks: []httpx.ResponseHook{slogx.RequestLogger(app.logger)},
		UserAgent:     "medibook/" + BuildVersion,
		Logger:        app.logger,
	})
	if err != nil {
		return fmt.Errorf("configure API client: %w", err)
	}
	app.http = h
	return nil
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Config returns the configuration the application was built with.
func (app *Application) Config() Config { return app.cfg }

// ErrWatchUnsupported is returned by Follow for stores that cannot be
// watched.
var ErrWatchUnsupported = errors.New("credential store does not support watching")

// Follow keeps the session in step with credential changes made by other
// processes until ctx ends. Only the file store can be followed.
func (app *Application) Follow(ctx context.Context) error {
	fs, ok := app.store.(*filestore.Store)
	if !ok {
		return ErrWatchUnsupported
	}

	ctx, cancel := context.WithCancel(ctx)
	app.stopWatch = cancel

	return fs.Watch(ctx, filestore.DefaultDebounce, func() {
		if err := app.Session.Sync(ctx); err != nil {
			app.logger.WarnContext(ctx, "sync session from store", "error", err)
		}
	})
}

// Close stops watching and closes the credential store.
func (app *Application) Close() error {
	if app.stopWatch != nil {
		app.stopWatch()
	}
	return app.store.Close()
}
