package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "wxrss"
	keyringKey     = "wechat_session"
)

// KeyringStore persists the session in the system keychain.
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed session store. It fails when the
// platform has no usable keychain so callers can fall back to a file store.
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Load reads the session from the keychain. Absence yields (nil, nil).
func (k *KeyringStore) Load() (*Session, error) {
	data, err := keyring.Get(keyringService, keyringKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session from keyring: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		// Corrupt entry, treat as no session.
		return nil, nil
	}

	if s.Token == "" || len(s.Cookies) == 0 || !s.IsLoggedIn {
		return nil, nil
	}

	return &s, nil
}

// Save stores the session in the keychain.
func (k *KeyringStore) Save(s *Session) error {
	if s == nil {
		return fmt.Errorf("cannot save nil session")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := keyring.Set(keyringService, keyringKey, string(data)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}

	return nil
}

// Clear removes the session from the keychain.
func (k *KeyringStore) Clear() error {
	if err := keyring.Delete(keyringService, keyringKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}
