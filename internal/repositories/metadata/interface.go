// Package metadata stores vault-wide key/value settings such as the key
// derivation salt, the master key verifier and the database format.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns nil, nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMany returns the stored subset of keys; missing keys are absent
	// from the map.
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
