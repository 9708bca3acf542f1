// Package credentials provides secure token storage for the followup CLI.
// Collaborator API tokens are stored in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI/testing environments, tokens can instead be supplied via
// FOLLOWUP_NOTES_TOKEN, FOLLOWUP_MAIL_STORE_TOKEN, and
// FOLLOWUP_GENERATION_TOKEN environment variables, which take precedence
// over the keyring.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name under which tokens are stored.
const keyringService = "followup-cli"

// Collaborator identifies which external collaborator a token belongs to.
type Collaborator string

const (
	// CollaboratorNotes is the transcript/notes retrieval API.
	CollaboratorNotes Collaborator = "notes"
	// CollaboratorMailStore is the mail-store API.
	CollaboratorMailStore Collaborator = "mail-store"
	// CollaboratorGeneration is the text-generation API.
	CollaboratorGeneration Collaborator = "generation"
)

// Collaborators lists every collaborator a token can be stored for.
var Collaborators = []Collaborator{
	CollaboratorNotes,
	CollaboratorMailStore,
	CollaboratorGeneration,
}

// ErrNoToken is returned when no token is stored for a collaborator.
var ErrNoToken = errors.New("no token stored")

// envVar returns the environment variable name overriding the keyring for
// the given collaborator.
func envVar(c Collaborator) string {
	switch c {
	case CollaboratorNotes:
		return "FOLLOWUP_NOTES_TOKEN"
	case CollaboratorMailStore:
		return "FOLLOWUP_MAIL_STORE_TOKEN"
	case CollaboratorGeneration:
		return "FOLLOWUP_GENERATION_TOKEN"
	default:
		return ""
	}
}

// Store manages collaborator token storage.
type Store struct{}

// NewStore creates a credential store backed by the system keyring.
func NewStore() *Store {
	return &Store{}
}

// Token returns the stored token for the given collaborator. The environment
// override is consulted first so unattended and CI runs need no keyring.
func (s *Store) Token(c Collaborator) (string, error) {
	if v := os.Getenv(envVar(c)); v != "" {
		return v, nil
	}

	token, err := keyring.Get(keyringService, string(c))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", c, ErrNoToken)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s token from keyring: %w", c, err)
	}
	return token, nil
}

// SetToken stores a token for the given collaborator in the keyring.
func (s *Store) SetToken(c Collaborator, token string) error {
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if err := keyring.Set(keyringService, string(c), token); err != nil {
		return fmt.Errorf("storing %s token in keyring: %w", c, err)
	}
	return nil
}

// DeleteToken removes the stored token for the given collaborator.
// Deleting an absent token is not an error.
func (s *Store) DeleteToken(c Collaborator) error {
	err := keyring.Delete(keyringService, string(c))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting %s token from keyring: %w", c, err)
	}
	return nil
}

// HasToken reports whether a token is available for the given collaborator,
// from either the environment or the keyring.
func (s *Store) HasToken(c Collaborator) bool {
	_, err := s.Token(c)
	return err == nil
}
