package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(e *env) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "ask TEXT...",
		Short: "Ask the booking assistant a question",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVarP(&language, "language", "l", "en", "reply language")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}
		reply, err := a.Booking.ProcessText(cmd.Context(), strings.Join(args, " "), language)
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "%s\n", reply.LLMResponse)

		if reply.AudioID != "" {
			if err := a.Booking.CleanupAudio(cmd.Context(), reply.AudioID); err != nil {
				a.Logger().WarnContext(cmd.Context(), "clean up reply audio", "audio_id", reply.AudioID, "error", err)
			}
		}
		return nil
	})
	return cmd
}

func newVoiceCmd(e *env) *cobra.Command {
	var (
		language string
		save     string
	)
	cmd := &cobra.Command{
		Use:   "voice RECORDING",
		Short: "Send a voice recording to the booking assistant",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&language, "language", "l", "en", "spoken language")
	cmd.Flags().StringVar(&save, "save", "", "write the spoken reply to this file")

	cmd.RunE = e.run(func(cmd *cobra.Command, args []string) error {
		a, err := e.signedIn(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		reply, err := a.Booking.ProcessAudio(ctx, filepath.Base(args[0]), f, language)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printf(out, "you: %s\nassistant: %s\n", reply.UserText, reply.LLMResponse)

		if reply.AudioID == "" {
			return nil
		}
		defer func() {
			if err := a.Booking.CleanupAudio(ctx, reply.AudioID); err != nil {
				a.Logger().WarnContext(ctx, "clean up reply audio", "audio_id", reply.AudioID, "error", err)
			}
		}()
		if save == "" {
			return nil
		}

		audio, err := a.Booking.Audio(ctx, reply.AudioID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(save, audio, 0o600); err != nil {
			return fmt.Errorf("save reply: %w", err)
		}
		printf(out, "reply saved to %s\n", save)
		return nil
	})
	return cmd
}
