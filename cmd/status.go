package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/followup-cli/config"
	"github.com/otherjamesbrown/followup-cli/pkg/status"
)

// StatusCommandDeps holds the dependencies for the status command.
type StatusCommandDeps struct {
	LoadConfig func() (*config.Config, error)
}

// DefaultStatusDeps returns the default dependencies for production use.
func DefaultStatusDeps() *StatusCommandDeps {
	return &StatusCommandDeps{LoadConfig: config.Load}
}

var statusOutputJSON bool

// NewStatusCommand creates the 'status' command.
func NewStatusCommand(deps *StatusCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run's status snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, deps)
		},
	}
	cmd.Flags().BoolVar(&statusOutputJSON, "json", false, "Output the raw snapshot as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, deps *StatusCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	snap, err := status.ReadSnapshot(cfg.StateDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if snap == nil {
		fmt.Fprintln(out, "no runs recorded yet")
		return nil
	}

	if statusOutputJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Last run:   %s (%s ago)\n", snap.LastRun.Format(time.RFC3339), time.Since(snap.LastRun).Truncate(time.Second))
	fmt.Fprintf(out, "Outcome:    %s\n", snap.Outcome)
	if snap.MeetingID != "" {
		fmt.Fprintf(out, "Meeting:    %s\n", snap.MeetingID)
	}
	fmt.Fprintf(out, "Counts:     processed=%d deferred=%d skipped=%d\n", snap.Processed, snap.Deferred, snap.Skipped)
	fmt.Fprintf(out, "Health:     source=%s notes=%s mail=%s generate=%s state=%s\n",
		okOrFail(snap.Health.SourcePresent),
		okOrFail(snap.Health.NotesCredential),
		okOrFail(snap.Health.MailCredential),
		okOrFail(snap.Health.GenerateCredential),
		okOrFail(snap.Health.StateWritable))
	return nil
}

func okOrFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}
