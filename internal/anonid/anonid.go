// Package anonid seals a voter's user id for anonymous polls. The sealing key
// is derived from the voter's private board secret and the poll id, so only
// the voter's own context can open an answer back into a user id. Opening a
// ciphertext sealed under any other secret fails, which the vote-uniqueness
// check treats as "not my vote" rather than as an error.
package anonid

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Seal encrypts id under a key derived from the caller's private secret and
// the poll scope. The result is base64(nonce || ciphertext).
func Seal(secret, scope, id string) (string, error) {
	aead, err := newAEAD(secret, scope)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(id), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed id. ok is false for anything that was not sealed
// under this secret/scope pair: a foreign voter's answer, a truncated value,
// or garbage. Callers must never treat the input as an identity when ok is
// false.
func Open(secret, scope, sealed string) (id string, ok bool) {
	aead, err := newAEAD(secret, scope)
	if err != nil {
		return "", false
	}

	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", false
	}
	if len(raw) < aead.NonceSize() {
		return "", false
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}

func newAEAD(secret, scope string) (cipher.AEAD, error) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(scope))
	key := mac.Sum(nil)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("derive poll key: %w", err)
	}
	return aead, nil
}
