// Package main provides the followup CLI entry point.
// followup drafts follow-up emails for recently-ended external meetings,
// triggered by updates to the local meeting-notes cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/followup-cli/cmd"
	"github.com/otherjamesbrown/followup-cli/pkg/buildinfo"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "followup",
	Short: "followup - unattended meeting follow-up email drafter",
	Long: `followup turns a meeting-notes cache update into a draft follow-up email.

The pipeline is designed to run unattended from a file-change trigger
(LaunchAgent or systemd path unit): each trigger executes 'followup run',
which selects at most one recently-ended external meeting, waits for its
transcript and generated notes, and creates a draft in the mail store.
Outcomes are recorded in an event log and a status snapshot under the state
directory; nothing is ever raised interactively.

Getting started:
  followup auth set notes --token <token>      Store collaborator tokens
  followup doctor                              Verify the setup
  followup run                                 Execute one pass
  followup status                              Inspect the last outcome`,
	SilenceUsage: true,
}

// newVersionCommand creates the 'version' command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintln(c.OutOrStdout(), "followup "+buildinfo.String())
		},
	}
}

func main() {
	rootCmd.AddCommand(cmd.NewRunCommand(cmd.DefaultRunDeps()))
	rootCmd.AddCommand(cmd.NewStatusCommand(cmd.DefaultStatusDeps()))
	rootCmd.AddCommand(cmd.NewStateCommand(cmd.DefaultStateDeps()))
	rootCmd.AddCommand(cmd.NewDoctorCommand(cmd.DefaultDoctorDeps()))
	rootCmd.AddCommand(cmd.NewAuthCommand(cmd.DefaultAuthDeps()))
	rootCmd.AddCommand(newVersionCommand())

	// A run killed by SIGTERM leaves the lock marker behind; the next
	// invocation reclaims it via the stale-marker check. Cancelling the
	// context still lets deferred releases run on a clean interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
