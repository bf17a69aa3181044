// Package secrets keeps vault passwords in the operating system keyring.
package secrets

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no password is stored for a vault.
var ErrNotFound = errors.New("no stored password")

// Store reads and writes vault passwords under one keyring service.
type Store struct {
	service string
}

// NewStore returns a store for service; an empty name selects the
// application name.
func NewStore(service string) *Store {
	if service == "" {
		service = common.AppName
	}
	return &Store{service: service}
}

// Save remembers password for the vault at location.
func (s *Store) Save(location string, password []byte) error {
	if err := keyring.Set(s.service, location, string(password)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Load returns the password remembered for location.
func (s *Store) Load(location string) ([]byte, error) {
	pw, err := keyring.Get(s.service, location)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	return []byte(pw), nil
}

// Forget removes the password for location. Forgetting a password that is
// not stored is not an error.
func (s *Store) Forget(location string) error {
	err := keyring.Delete(s.service, location)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}
