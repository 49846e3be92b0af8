package companion

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mentra"
	apiKeyAccount  = "llm-api-key"
)

var (
	// ErrSecretNotFound is returned when no API key is stored.
	ErrSecretNotFound = errors.New("api key not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Secrets stores the user's personal LLM API key outside the local database.
type Secrets interface {
	APIKey() (string, error)
	SetAPIKey(key string) error
	DeleteAPIKey() error
}

// KeyringSecrets keeps secrets in the OS keyring.
type KeyringSecrets struct {
	service string
}

var _ Secrets = (*KeyringSecrets)(nil)

// NewKeyringSecrets returns secrets stored under the "mentra" service.
func NewKeyringSecrets() *KeyringSecrets {
	return &KeyringSecrets{service: keyringService}
}

// APIKey returns the stored key or ErrSecretNotFound.
func (k *KeyringSecrets) APIKey() (string, error) {
	key, err := keyring.Get(k.service, apiKeyAccount)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

// SetAPIKey stores key, replacing any previous one.
func (k *KeyringSecrets) SetAPIKey(key string) error {
	if key == "" {
		return errors.New("api key cannot be empty")
	}
	if err := keyring.Set(k.service, apiKeyAccount, key); err != nil {
		return fmt.Errorf("storing api key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key. Deleting a missing key is not an error.
func (k *KeyringSecrets) DeleteAPIKey() error {
	err := keyring.Delete(k.service, apiKeyAccount)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting api key from keyring: %w", err)
	}
	return nil
}

// hasAPIKey reports whether s holds a key. Keyring errors count as absent.
func hasAPIKey(s Secrets) bool {
	if s == nil {
		return false
	}
	key, err := s.APIKey()
	return err == nil && key != ""
}
