// Package cryptox holds the vault's cryptography: master key derivation,
// AES-GCM sealing of CBOR-encoded values and content digests.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/argon2"
)

// ErrDecrypt is returned when a ciphertext cannot be opened with the given
// key, nonce and additional data.
var ErrDecrypt = errors.New("decryption failed")

const nonceSize = 12

// encMode keeps nanoseconds in timestamps; the default mode truncates to
// whole seconds.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// MakeVerifier derives the value stored to check a master key without
// storing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey derives a 32-byte AES key from the password with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// Seal serializes v with CBOR and encrypts it using AES-GCM.
//
// The key must be 16, 24 or 32 bytes long. A new random 12-byte nonce is
// generated for each call. aad is authenticated but not encrypted; pass the
// record identifier so ciphertexts cannot be swapped between rows.
//
// Example:
//
//	ct, nonce, err := cryptox.Seal(payload, key, []byte(entryID))
func Seal(v any, key, aad []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := encMode.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return SealBytes(plaintext, key, aad)
}

// Open decrypts ciphertext and decodes the CBOR plaintext into v.
func Open(ciphertext, nonce, key, aad []byte, v any) error {
	plaintext, err := OpenBytes(ciphertext, nonce, key, aad)
	if err != nil {
		return err
	}
	return cbor.Unmarshal(plaintext, v)
}

// SealBytes encrypts plaintext with AES-GCM under a fresh nonce.
func SealBytes(plaintext, key, aad []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// OpenBytes reverses SealBytes.
func OpenBytes(ciphertext, nonce, key, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, ErrDecrypt
	}
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
