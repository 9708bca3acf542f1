package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/followup-cli/credentials"
)

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	Credentials *credentials.Store
	// ReadToken reads the token value, overridable in tests. Defaults to
	// reading the --token flag so tokens never land in shell history via
	// positional args by accident.
	ReadToken func(cmd *cobra.Command) (string, error)
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		Credentials: credentials.NewStore(),
		ReadToken: func(cmd *cobra.Command) (string, error) {
			return cmd.Flags().GetString("token")
		},
	}
}

// NewAuthCommand creates the 'auth' command group for keyring token
// management.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage collaborator API tokens in the system keyring",
	}
	cmd.AddCommand(newAuthSetCommand(deps))
	cmd.AddCommand(newAuthDeleteCommand(deps))
	return cmd
}

func collaboratorArg(arg string) (credentials.Collaborator, error) {
	for _, c := range credentials.Collaborators {
		if string(c) == arg {
			return c, nil
		}
	}
	names := make([]string, len(credentials.Collaborators))
	for i, c := range credentials.Collaborators {
		names[i] = string(c)
	}
	return "", fmt.Errorf("unknown collaborator %q (one of: %s)", arg, strings.Join(names, ", "))
}

func newAuthSetCommand(deps *AuthCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <collaborator>",
		Short: "Store a collaborator API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collab, err := collaboratorArg(args[0])
			if err != nil {
				return err
			}
			token, err := deps.ReadToken(cmd)
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			if err := deps.Credentials.SetToken(collab, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s token\n", collab)
			return nil
		},
	}
	cmd.Flags().String("token", "", "The token value to store")
	return cmd
}

func newAuthDeleteCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collaborator>",
		Short: "Remove a stored collaborator API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collab, err := collaboratorArg(args[0])
			if err != nil {
				return err
			}
			if err := deps.Credentials.DeleteToken(collab); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s token\n", collab)
			return nil
		},
	}
}
