package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/followup-cli/config"
	"github.com/otherjamesbrown/followup-cli/credentials"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/mailstore"
	"github.com/otherjamesbrown/followup-cli/pkg/source"
	"github.com/otherjamesbrown/followup-cli/pkg/state"
)

// DoctorCommandDeps holds the dependencies for the doctor command.
type DoctorCommandDeps struct {
	LoadConfig  func() (*config.Config, error)
	Credentials *credentials.Store
}

// DefaultDoctorDeps returns the default dependencies for production use.
func DefaultDoctorDeps() *DoctorCommandDeps {
	return &DoctorCommandDeps{
		LoadConfig:  config.Load,
		Credentials: credentials.NewStore(),
	}
}

// NewDoctorCommand creates the 'doctor' preflight command.
func NewDoctorCommand(deps *DoctorCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Preflight collaborator credentials and endpoints",
		Long: `Check that the pipeline can run: configuration loads, the metadata
source is present, the state directory is writable, collaborator tokens are
stored, and the mail store answers.

Exits non-zero if any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, deps)
		},
	}
}

// check prints one preflight result and tracks overall failure.
type check struct {
	out    func(format string, a ...any)
	failed bool
}

func (c *check) report(name string, err error) {
	if err != nil {
		c.failed = true
		c.out("  [FAIL] %-22s %v\n", name, err)
		return
	}
	c.out("  [ ok ] %s\n", name)
}

func runDoctor(cmd *cobra.Command, deps *DoctorCommandDeps) error {
	out := cmd.OutOrStdout()
	c := &check{out: func(format string, a ...any) { fmt.Fprintf(out, format, a...) }}

	cfg, err := deps.LoadConfig()
	c.report("configuration", err)
	if err != nil {
		return fmt.Errorf("preflight failed")
	}

	// The owner must be internal or every meeting classifies as external.
	var selfErr error
	if _, domain, ok := strings.Cut(cfg.SelfAddress, "@"); !ok || !cfg.IsInternalDomain(domain) {
		selfErr = fmt.Errorf("self address %s is not in internal_domains", cfg.SelfAddress)
	}
	c.report("self address", selfErr)

	_, err = source.NewDiscovery(cfg.SourceDir, logging.NewNopLogger()).Discover()
	c.report("metadata source", err)

	err = os.MkdirAll(cfg.StateDir, 0o700)
	if err == nil {
		probe := cfg.StatePath(".writable")
		err = os.WriteFile(probe, nil, 0o600)
		if err == nil {
			os.Remove(probe)
		}
	}
	c.report("state directory", err)

	store, err := state.Open(cfg.StatePath(stateFileName), logging.NewNopLogger())
	if err == nil {
		_, err = store.Lookup(cmd.Context(), "preflight")
		store.Close()
	}
	c.report("state store", err)

	for _, collab := range credentials.Collaborators {
		_, err := deps.Credentials.Token(collab)
		c.report(fmt.Sprintf("%s token", collab), err)
	}

	if token, err := deps.Credentials.Token(credentials.CollaboratorMailStore); err == nil {
		mail := mailstore.NewClient(cfg.Endpoints.MailStore, token, cfg.CollaboratorTimeout)
		c.report("mail store", mail.Ping(cmd.Context()))
	}

	if c.failed {
		return fmt.Errorf("preflight failed")
	}
	fmt.Fprintln(out, "all checks passed")
	return nil
}
