package cryptox

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns the hex BLAKE3-256 digest of data. It identifies attachment
// contents in listings and lets callers compare payloads without exposing them.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first 12 hex characters of Digest.
func ShortDigest(data []byte) string {
	return Digest(data)[:12]
}
