package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/otherjamesbrown/followup-cli/credentials"
)

func authTestDeps() *AuthCommandDeps {
	keyring.MockInit()
	return &AuthCommandDeps{
		Credentials: credentials.NewStore(),
		ReadToken: func(cmd *cobra.Command) (string, error) {
			return cmd.Flags().GetString("token")
		},
	}
}

func TestNewAuthCommand(t *testing.T) {
	cmd := NewAuthCommand(nil)
	require.NotNil(t, cmd)
	assert.Equal(t, "auth", cmd.Use)

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}
	assert.True(t, subcommands["set"], "auth command should have 'set' subcommand")
	assert.True(t, subcommands["delete"], "auth command should have 'delete' subcommand")
}

func TestAuthSet_StoresToken(t *testing.T) {
	deps := authTestDeps()

	var out bytes.Buffer
	cmd := newAuthSetCommand(deps)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"notes", "--token", "secret"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "stored notes token")

	token, err := deps.Credentials.Token(credentials.CollaboratorNotes)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
}

func TestAuthSet_Validation(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		expectedError string
	}{
		{
			name:          "unknown collaborator",
			args:          []string{"bogus", "--token", "x"},
			expectedError: "unknown collaborator",
		},
		{
			name:          "missing token",
			args:          []string{"notes"},
			expectedError: "--token is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newAuthSetCommand(authTestDeps())
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestAuthDelete(t *testing.T) {
	deps := authTestDeps()
	require.NoError(t, deps.Credentials.SetToken(credentials.CollaboratorMailStore, "secret"))

	var out bytes.Buffer
	cmd := newAuthDeleteCommand(deps)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"mail-store"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "deleted mail-store token")
	assert.False(t, deps.Credentials.HasToken(credentials.CollaboratorMailStore))
}

func TestCollaboratorArg(t *testing.T) {
	for _, c := range credentials.Collaborators {
		got, err := collaboratorArg(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := collaboratorArg("mailstore")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes, mail-store, generation")
}
