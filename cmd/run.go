// Package cmd provides CLI commands for the followup tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/followup-cli/config"
	"github.com/otherjamesbrown/followup-cli/credentials"
	"github.com/otherjamesbrown/followup-cli/pkg/content"
	"github.com/otherjamesbrown/followup-cli/pkg/draft"
	"github.com/otherjamesbrown/followup-cli/pkg/lockfile"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/mailstore"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
	"github.com/otherjamesbrown/followup-cli/pkg/pipeline"
	"github.com/otherjamesbrown/followup-cli/pkg/source"
	"github.com/otherjamesbrown/followup-cli/pkg/state"
	"github.com/otherjamesbrown/followup-cli/pkg/status"
)

// RunCommandDeps holds the dependencies for the run command.
type RunCommandDeps struct {
	LoadConfig  func() (*config.Config, error)
	Credentials *credentials.Store
}

// DefaultRunDeps returns the default dependencies for production use.
func DefaultRunDeps() *RunCommandDeps {
	return &RunCommandDeps{
		LoadConfig:  config.Load,
		Credentials: credentials.NewStore(),
	}
}

// Lock marker and database file names inside the state directory.
const (
	lockFileName  = "run.lock"
	stateFileName = "state.db"
	logFileName   = "followup.log"
)

// NewRunCommand creates the 'run' command, the target of the file-change
// trigger.
func NewRunCommand(deps *RunCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one follow-up pipeline pass",
		Long: `Execute one pass of the meeting follow-up pipeline.

The pass selects at most one recently-ended external meeting, waits bounded
time for its transcript and notes, and creates a follow-up email draft in
the mail store. Already-drafted meetings are skipped; meetings whose content
is not ready yet are deferred and retried on the next trigger.

The command exits zero on every terminal outcome including skips, deferrals,
and lock contention. A non-zero exit means an unexpected internal failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, deps)
		},
	}
}

// runPipeline wires the components and executes one pass.
func runPipeline(cmd *cobra.Command, deps *RunCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	health := probeHealth(cfg, deps.Credentials)

	tokens := map[credentials.Collaborator]string{}
	for _, c := range credentials.Collaborators {
		token, err := deps.Credentials.Token(c)
		if err != nil {
			log.Error("missing collaborator credential", logging.F("collaborator", string(c)), logging.Err(err))
			return fmt.Errorf("credential for %s: %w (run 'followup auth set %s')", c, err, c)
		}
		tokens[c] = token
	}

	store, err := state.Open(cfg.StatePath(stateFileName), log)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	mail := mailstore.NewClient(cfg.Endpoints.MailStore, tokens[credentials.CollaboratorMailStore], cfg.CollaboratorTimeout)

	p := pipeline.New(cfg, pipeline.Deps{
		Lock:      lockfile.New(cfg.StatePath(lockFileName), log),
		Discovery: source.NewDiscovery(cfg.SourceDir, log),
		Selector: meeting.NewSelector(meeting.SelectorConfig{
			InternalDomains: cfg.InternalDomains,
			SelfAddress:     cfg.SelfAddress,
			LookbackWindow:  cfg.LookbackWindow,
		}),
		Store: store,
		Fetcher: content.NewFetcher(content.Config{
			BaseURL: cfg.Endpoints.Notes,
			Token:   tokens[credentials.CollaboratorNotes],
			Timeout: cfg.CollaboratorTimeout,
			Policy: content.RetryPolicy{
				Interval: cfg.PollInterval,
				MaxWait:  cfg.PollMaxWait,
			},
			MinNotesChars: cfg.MinNotesChars,
			Logger:        log,
		}),
		Gatherer:  mailstore.NewAggregator(mail, cfg.ContextLookback, cfg.ContextMaxMessages, log),
		Generator: draft.NewGenerator(cfg.Endpoints.Generation, tokens[credentials.CollaboratorGeneration], cfg.CollaboratorTimeout),
		Emitter:   mail,
		Recorder:  status.NewRecorder(cfg.StateDir),
		Logger:    log,
	})

	res, err := p.Run(cmd.Context(), health)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", res.Outcome)
	return nil
}

// buildLogger creates the run logger with the persistent file sink.
func buildLogger(cfg *config.Config) (logging.Logger, func(), error) {
	sink, err := logging.NewFileSink(cfg.StatePath(logFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("opening run log: %w", err)
	}
	log := logging.NewLogger(&logging.Config{
		Level:      logging.Level(cfg.LogLevel),
		Component:  "followup",
		JSONFormat: cfg.LogJSON,
		Sinks:      []logging.Sink{sink},
	})
	return log, func() { sink.Close() }, nil
}

// probeHealth computes the collaborator health indicators carried on the
// status snapshot.
func probeHealth(cfg *config.Config, creds *credentials.Store) status.Health {
	sourceOK := false
	if entries, err := os.ReadDir(cfg.SourceDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				sourceOK = true
				break
			}
		}
	}

	stateOK := os.MkdirAll(cfg.StateDir, 0o700) == nil
	if stateOK {
		probe := cfg.StatePath(".writable")
		if err := os.WriteFile(probe, nil, 0o600); err != nil {
			stateOK = false
		} else {
			os.Remove(probe)
		}
	}

	return status.Health{
		SourcePresent:      sourceOK,
		NotesCredential:    creds.HasToken(credentials.CollaboratorNotes),
		MailCredential:     creds.HasToken(credentials.CollaboratorMailStore),
		GenerateCredential: creds.HasToken(credentials.CollaboratorGeneration),
		StateWritable:      stateOK,
	}
}
