// Package vault encrypts gateway credentials before they cross the
// persistence boundary. Blobs are AES-256-GCM with the random nonce prefixed
// to the ciphertext, stored as a single opaque value.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const keySize = 32

// ErrInvalidCredential is returned when a blob is malformed or fails
// authentication (tampered ciphertext or wrong key). Callers must treat it as
// fatal for the operation; an empty credential is never returned silently.
var ErrInvalidCredential = errors.New("invalid credential blob")

// Vault performs authenticated symmetric encryption of credential strings.
type Vault struct {
	aead cipher.AEAD
}

// New derives the cipher key from the operator-supplied secret, padded with
// zero bytes or truncated to the AES-256 key length. The secret lives only in
// environment configuration; it is never persisted alongside the blobs.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential secret must not be empty")
	}

	key := make([]byte, keySize)
	copy(key, secret)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals the plaintext with a freshly generated nonce and returns
// nonce||ciphertext as one blob.
func (v *Vault) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a blob produced by Encrypt. Malformed or tampered blobs fail
// with ErrInvalidCredential.
func (v *Vault) Decrypt(blob []byte) (string, error) {
	ns := v.aead.NonceSize()
	if len(blob) < ns+v.aead.Overhead() {
		return "", ErrInvalidCredential
	}
	nonce, ciphertext := blob[:ns], blob[ns:]

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCredential
	}
	return string(plaintext), nil
}
