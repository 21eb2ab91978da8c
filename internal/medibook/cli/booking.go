package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/aussiebroadwan/medibook/pkg/booking"
	"github.com/spf13/cobra"
)

func newDoctorsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "List doctors",
	}
	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}
		doctors, err := a.Booking.Doctors(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		printf(tw, "ID\tNAME\tSPECIALIZATION\tAVAILABILITY\n")
		for _, d := range doctors {
			printf(tw, "%d\t%s\t%s\t%s\n", d.ID, d.Name, d.Specialization, d.Availability)
		}
		return tw.Flush()
	})
	return cmd
}

func newAppointmentsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointments",
		Aliases: []string{"appts"},
		Short:   "List your appointments",
	}
	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}
		appts, err := a.Booking.Appointments(cmd.Context())
		if err != nil {
			return err
		}
		if len(appts) == 0 {
			printf(cmd.OutOrStdout(), "no appointments\n")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		printf(tw, "ID\tDATE\tSERIAL\tDOCTOR\tPATIENT\n")
		for _, ap := range appts {
			printf(tw, "%d\t%s\t%d\t%s\t%s\n", ap.ID, ap.Date, ap.SerialNumber, ap.DoctorName, ap.PatientName)
		}
		return tw.Flush()
	})
	return cmd
}

func newBookCmd(e *env) *cobra.Command {
	var in booking.NewAppointment
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
	}
	cmd.Flags().IntVar(&in.DoctorID, "doctor", 0, "doctor id")
	cmd.Flags().StringVar(&in.Date, "date", "", "date as YYYY-MM-DD")
	cmd.Flags().StringVar(&in.PatientName, "name", "", "patient name")
	cmd.Flags().IntVar(&in.PatientAge, "age", 0, "patient age")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}
		appt, err := a.Booking.CreateAppointment(cmd.Context(), in)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "booked appointment %d with %s on %s, serial %d\n",
			appt.ID, appt.DoctorName, appt.Date, appt.SerialNumber)
		return nil
	})
	return cmd
}

func newCancelCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel APPOINTMENT_ID",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("appointment id must be a number: %w", err)
		}
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}
		msg, err := a.Booking.CancelAppointment(cmd.Context(), id)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "%s\n", msg.Message)
		return nil
	})
	return cmd
}
