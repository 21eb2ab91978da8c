package cli

import (
	"text/tabwriter"

	"github.com/aussiebroadwan/medibook/pkg/booking"
	"github.com/spf13/cobra"
)

const roleAdmin = "admin"

func newOrgCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage client organisations (admin)",
	}
	cmd.AddCommand(newOrgCreateCmd(e), newOrgUsersCmd(e), newUserUpdateCmd(e))
	return cmd
}

func newOrgCreateCmd(e *env) *cobra.Command {
	var in booking.NewOrganisation
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an organisation",
	}
	cmd.Flags().StringVar(&in.BusinessName, "name", "", "business name")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.Address, "address", "", "postal address")
	cmd.Flags().StringVar(&in.Mobile, "mobile", "", "contact number")
	cmd.Flags().StringVar(&in.Modules, "modules", "", "enabled modules")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd, roleAdmin)
		if err != nil {
			return err
		}
		created, err := a.Booking.CreateOrganisation(cmd.Context(), in)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "created organisation %s (%s)\n", created.Client.ID, created.Client.BusinessName)
		return nil
	})
	return cmd
}

func newOrgUsersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users CLIENT_ID",
		Short: "List an organisation's users",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd, roleAdmin)
		if err != nil {
			return err
		}
		users, err := a.Booking.OrganisationUsers(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printf(out, "%s: %d users\n", users.ClientName, users.TotalUsers)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		printf(tw, "ID\tUSERNAME\tROLE\tACTIVE\n")
		for _, u := range users.Users {
			printf(tw, "%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Role, u.IsActive)
		}
		return tw.Flush()
	})
	return cmd
}

func newUserUpdateCmd(e *env) *cobra.Command {
	var (
		username    string
		active      bool
		newPassword string
		oldPassword string
	)
	cmd := &cobra.Command{
		Use:   "update-user USER_ID",
		Short: "Rename, (de)activate or reset the password of a user",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&username, "username", "", "new username")
	cmd.Flags().BoolVar(&active, "active", true, "whether the account may sign in")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password")
	cmd.Flags().StringVar(&oldPassword, "old-password", "", "current password, when changing your own")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}

		var upd booking.DataUserUpdate
		if cmd.Flags().Changed("username") {
			upd.Username = &username
		}
		if cmd.Flags().Changed("active") {
			upd.IsActive = &active
		}
		if cmd.Flags().Changed("new-password") {
			upd.NewPassword = &newPassword
		}
		if cmd.Flags().Changed("old-password") {
			upd.OldPassword = &oldPassword
		}

		res, err := a.Booking.UpdateDataUser(cmd.Context(), args[0], upd)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "%s: %s (active %t)\n", res.Message, res.User.Username, res.User.IsActive)
		return nil
	})
	return cmd
}
