// Package cli implements the medibook command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aussiebroadwan/medibook/internal/medibook/app"
	"github.com/aussiebroadwan/medibook/pkg/authsdk"
	"github.com/aussiebroadwan/medibook/pkg/guard"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/spf13/cobra"
)

// flags override the loaded configuration when set.
type flags struct {
	apiURL    string
	store     string
	storePath string
	logLevel  string
}

// env is shared by every command of one invocation.
type env struct {
	flags flags
	app   *app.Application
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "medibook",
		Short: "Book doctor appointments from the terminal",
		Long: `medibook signs in to the booking backend, keeps the session fresh, and
books, lists and cancels appointments.

Configuration comes from MEDIBOOK_CONFIG (YAML), then MEDIBOOK_* environment
variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&e.flags.apiURL, "api-url", "", "backend base URL")
	pf.StringVar(&e.flags.store, "store", "", "credential store: file, sqlite, bolt or memory")
	pf.StringVar(&e.flags.storePath, "store-path", "", "credential store location")
	pf.StringVar(&e.flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newLoginCmd(e),
		newRegisterCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
		newDoctorsCmd(e),
		newAppointmentsCmd(e),
		newBookCmd(e),
		newCancelCmd(e),
		newAskCmd(e),
		newVoiceCmd(e),
		newOrgCmd(e),
		newServeMockCmd(e),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "medibook:", describe(err))
		os.Exit(1)
	}
}

// describe turns well-known failures into advice.
func describe(err error) string {
	switch {
	case errors.Is(err, authsdk.ErrRefreshExhausted), errors.Is(err, authsdk.ErrLoggedOut):
		return "your session has ended, run `medibook login`"
	case errors.Is(err, guard.ErrLoginRequired):
		return "not logged in, run `medibook login`"
	case errors.Is(err, authsdk.ErrInvalidCredentials):
		return err.Error()
	}

	var netErr *httpx.NetworkError
	if errors.As(err, &netErr) {
		return "cannot reach the booking service: " + netErr.Err.Error()
	}
	return err.Error()
}

func (e *env) config() (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	if e.flags.apiURL != "" {
		cfg.APIURL = e.flags.apiURL
	}
	if e.flags.store != "" {
		cfg.Store = e.flags.store
	}
	if e.flags.storePath != "" {
		cfg.StorePath = e.flags.storePath
	}
	if e.flags.logLevel != "" {
		cfg.LogLevel = e.flags.logLevel
	}
	return cfg, nil
}

// application builds the client on first use.
func (e *env) application(cmd *cobra.Command) (*app.Application, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

// signedIn returns the application once the guard lets the caller through.
func (e *env) signedIn(cmd *cobra.Command, roles ...string) (*app.Application, error) {
	a, err := e.application(cmd)
	if err != nil {
		return nil, err
	}
	s := a.Session
	if err := guard.RoleProtected(s, s.Routes(), "", roles...).Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// run wraps a command body so the application is closed however it ends.
func (e *env) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() { err = errors.Join(err, e.close()) }()
		return fn(cmd, args)
	}
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
