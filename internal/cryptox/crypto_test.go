package cryptox

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title   string    `cbor:"1,keyasint"`
	Blob    []byte    `cbor:"2,keyasint"`
	Changed time.Time `cbor:"3,keyasint"`
}

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 32)
}

func TestDeriveMasterKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))
	key3 := DeriveMasterKey([]byte("other-password"), []byte("salt-1"))

	assert.NotEqual(t, key1, key2)
	assert.NotEqual(t, key1, key3)
}

func TestMakeVerifier(t *testing.T) {
	k := DeriveMasterKey([]byte("pw"), []byte("salt"))
	assert.Equal(t, MakeVerifier(k), MakeVerifier(k))
	assert.NotEqual(t, MakeVerifier(k), MakeVerifier(testKey()))
	assert.Len(t, MakeVerifier(k), 32)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	in := sample{
		Title:   "bank",
		Blob:    []byte{0, 1, 2, 3},
		Changed: time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC),
	}

	ct, nonce, err := Seal(in, testKey(), []byte("entry-1"))
	require.NoError(t, err)
	assert.Len(t, nonce, 12)

	var out sample
	require.NoError(t, Open(ct, nonce, testKey(), []byte("entry-1"), &out))
	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, in.Blob, out.Blob)
	assert.True(t, in.Changed.Equal(out.Changed), "nanoseconds must survive")
}

func TestSeal_FreshNonce(t *testing.T) {
	_, n1, err := SealBytes([]byte("x"), testKey(), nil)
	require.NoError(t, err)
	_, n2, err := SealBytes([]byte("x"), testKey(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestOpen_Failures(t *testing.T) {
	ct, nonce, err := SealBytes([]byte("secret"), testKey(), []byte("a"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		key   []byte
		nonce []byte
		aad   []byte
		ct    []byte
	}{
		{"wrong key", bytes.Repeat([]byte{1}, 32), nonce, []byte("a"), ct},
		{"wrong aad", testKey(), nonce, []byte("b"), ct},
		{"short nonce", testKey(), nonce[:4], []byte("a"), ct},
		{"tampered", testKey(), nonce, []byte("a"), append([]byte{ct[0] ^ 0xff}, ct[1:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenBytes(tt.ct, tt.nonce, tt.key, tt.aad)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestSeal_BadKeySize(t *testing.T) {
	_, _, err := Seal(sample{}, []byte("short"), nil)
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("hello"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Digest([]byte("hello")))
	assert.NotEqual(t, a, Digest([]byte("hello!")))
	assert.Equal(t, a[:12], ShortDigest([]byte("hello")))
}
