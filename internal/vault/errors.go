package vault

import "errors"

var (
	ErrAlreadyInitialized = errors.New("vault is already initialized")
	ErrCorruptMetadata    = errors.New("vault metadata is damaged")
)

// Metadata keys.
const (
	keySalt     = "salt"
	keyVerifier = "verifier"
	keyFormat   = "format"
)
