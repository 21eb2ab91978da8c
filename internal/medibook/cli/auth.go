package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aussiebroadwan/medibook/pkg/authsdk"
	"github.com/spf13/cobra"
)

type credentialFlags struct {
	username      string
	password      string
	passwordStdin bool
	clientID      string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "organisation client id, remembered for later logins")
}

func (f *credentialFlags) resolvePassword(in io.Reader) (string, error) {
	if !f.passwordStdin {
		return f.password, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(e *env) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
	}
	f.bind(cmd)

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.application(cmd)
		if err != nil {
			return err
		}
		password, err := f.resolvePassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if f.clientID != "" {
			if err := a.Session.SetClientID(cmd.Context(), f.clientID); err != nil {
				return err
			}
		}

		creds := authsdk.Credentials{Username: f.username, Password: password}
		if err := a.Session.Login(cmd.Context(), creds); err != nil {
			return err
		}
		st := a.Session.State()
		printf(cmd.OutOrStdout(), "logged in as %s (user %s, role %s)\n", f.username, st.UserID, roleOrUnknown(st.Role))
		return nil
	})
	return cmd
}

func newRegisterCmd(e *env) *cobra.Command {
	var f credentialFlags
	var confirm string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&confirm, "confirm", "", "repeat the password; defaults to the password")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.application(cmd)
		if err != nil {
			return err
		}
		password, err := f.resolvePassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if confirm == "" {
			confirm = password
		}

		resp, err := a.Session.Register(cmd.Context(), authsdk.Registration{
			Username:        f.username,
			Password:        password,
			ConfirmPassword: confirm,
			ClientID:        f.clientID,
		})
		if err != nil {
			return err
		}
		msg := resp.Message
		if msg == "" {
			msg = "registered"
		}
		printf(cmd.OutOrStdout(), "%s; run `medibook login` to sign in\n", msg)
		return nil
	})
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
	}
	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.application(cmd)
		if err != nil {
			return err
		}
		if err := a.Session.Logout(cmd.Context()); err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "logged out\n")
		return nil
	})
	return cmd
}

func newWhoamiCmd(e *env) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep running and report role changes made by other sessions")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.application(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		st := a.Session.State()
		if st.IsAuthenticated {
			printf(out, "user %s, role %s\n", st.UserID, roleOrUnknown(st.Role))
		} else {
			printf(out, "not logged in\n")
		}
		if !follow {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		unsubscribe := a.Session.OnRoleChange(func(ev authsdk.RoleChangeEvent) {
			printf(out, "%s role changed: %s -> %s\n", ev.Timestamp.Format("15:04:05"), roleOrUnknown(ev.OldRole), roleOrUnknown(ev.NewRole))
		})
		defer unsubscribe()

		if err := a.Follow(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})
	return cmd
}

func roleOrUnknown(role string) string {
	if role == "" {
		return "unknown"
	}
	return role
}
