// Package models defines the vault's domain types: entries, their attachments
// and history, and the encrypted rows they are persisted as.
package models

import "time"

// Record is an entry as it is stored in the database. Encrypted fields hold
// AEAD ciphertext next to their nonces.
type Record struct {
	// ID is the entry identifier.
	ID string

	// Overview is the encrypted short summary used for listings.
	Overview []byte
	// NonceOverview is the AEAD nonce for Overview.
	NonceOverview []byte

	// Details is the encrypted full entry payload, attachments included.
	Details []byte
	// NonceDetails is the AEAD nonce for Details.
	NonceDetails []byte

	// UpdatedAt is the entry modification time in UTC.
	UpdatedAt time.Time

	// Deleted marks a removed entry.
	Deleted bool
}

// HistoryRecord is one encrypted history snapshot of an entry.
type HistoryRecord struct {
	EntryID string
	Seq     int
	Payload []byte
	Nonce   []byte
	TakenAt time.Time
}

// Overview is the decrypted form of Record.Overview.
type Overview struct {
	Title       string `cbor:"1,keyasint"`
	Attachments int    `cbor:"2,keyasint"`
}
