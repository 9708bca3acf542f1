package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/followup-cli/config"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/state"
)

// StateCommandDeps holds the dependencies for state commands.
type StateCommandDeps struct {
	LoadConfig func() (*config.Config, error)
}

// DefaultStateDeps returns the default dependencies for production use.
func DefaultStateDeps() *StateCommandDeps {
	return &StateCommandDeps{LoadConfig: config.Load}
}

var stateClearYes bool

// NewStateCommand creates the 'state' command group.
func NewStateCommand(deps *StateCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the dedup/deferral record store",
	}
	cmd.AddCommand(newStateListCommand(deps))
	cmd.AddCommand(newStateClearCommand(deps))
	return cmd
}

func newStateListCommand(deps *StateCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List processing records, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(deps)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no records")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MEETING ID\tSTATUS\tATTEMPTS\tREASON\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					r.MeetingID, r.Status, r.Attempts, r.LastReason,
					r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newStateClearCommand(deps *StateCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every processing record",
		Long: `Remove every processing record.

Cleared meetings become eligible for drafting again on the next trigger, so
this can produce duplicate drafts for meetings still inside the lookback
window.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stateClearYes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			store, err := openStore(deps)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "state cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&stateClearYes, "yes", false, "Confirm clearing all records")
	return cmd
}

// openStore loads the config and opens the state store.
func openStore(deps *StateCommandDeps) (*state.Store, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return state.Open(cfg.StatePath(stateFileName), logging.NewNopLogger())
}
