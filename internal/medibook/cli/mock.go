package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/medibook/internal/medibook/app"
	"github.com/aussiebroadwan/medibook/pkg/authtest"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/aussiebroadwan/medibook/pkg/slogx"
	"github.com/spf13/cobra"
)

const mockShutdownGrace = 5 * time.Second

// mockUsers are seeded when --user is not given.
var mockUsers = []authtest.User{
	{Username: "patient", Password: "patient123", Role: authtest.RolePatient},
	{Username: "doctor", Password: "doctor123", Role: authtest.RoleDoctor},
	{Username: "admin", Password: "admin123", Role: authtest.RoleAdmin},
}

func newServeMockCmd(e *env) *cobra.Command {
	var (
		addr    string
		keyFile string
		users   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Run a local stand-in for the booking backend",
		Long: `serve-mock runs an in-memory booking backend that issues real signed
tokens. Accounts are given as name:password[:role[:client-id]].`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "persist the signing key here so tokens survive restarts")
	cmd.Flags().StringArrayVar(&users, "user", nil, "seed an account (repeatable)")
	cmd.Flags().DurationVar(&ttl, "access-ttl", authtest.DefaultAccessTTL, "access token lifetime")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.MockAddr
		}
		if keyFile == "" {
			keyFile = cfg.MockKeyPath
		}

		seed, err := parseMockUsers(users)
		if err != nil {
			return err
		}

		logger := slogx.New(slogx.Config{
			Service: "medibook-mock",
			Version: app.BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})

		opts := authtest.Options{AccessTTL: ttl, Users: seed, Logger: logger}
		if keyFile != "" {
			key, err := cryptox.LoadOrCreateSigningKey(keyFile)
			if err != nil {
				return err
			}
			opts.SigningKey = key
		}
		backend, err := authtest.New(opts)
		if err != nil {
			return err
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printf(out, "mock backend listening on http://%s\n", ln.Addr())
		for _, u := range seed {
			printf(out, "  %s / %s (%s)\n", u.Username, u.Password, u.Role)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveUntilDone(ctx, &http.Server{
			Handler:           backend,
			ReadHeaderTimeout: 10 * time.Second,
		}, ln, logger)
	}
	return cmd
}

// serveUntilDone serves on ln until ctx ends, then shuts srv down.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mock backend failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down mock backend")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), mockShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return srv.Close()
	}
	return nil
}

func parseMockUsers(specs []string) ([]authtest.User, error) {
	if len(specs) == 0 {
		return mockUsers, nil
	}
	users := make([]authtest.User, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 4)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --user %q, want name:password[:role[:client-id]]", s)
		}
		u := authtest.User{Username: parts[0], Password: parts[1], Role: authtest.RolePatient}
		if len(parts) > 2 && parts[2] != "" {
			u.Role = parts[2]
		}
		if len(parts) > 3 {
			u.ClientID = parts[3]
		}
		users = append(users, u)
	}
	return users, nil
}
