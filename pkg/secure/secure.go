// Package secure seals account credentials for storage at rest.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrBadCiphertext indicates a sealed blob that cannot be opened with the
// configured key.
var ErrBadCiphertext = errors.New("cannot open sealed credentials")

// Keeper seals and opens credential blobs with AES-256-GCM.  Plaintext
// credentials must never be logged or persisted; callers decrypt only
// within the request or worker lifecycle that needs them.
type Keeper struct {
	aead cipher.AEAD
}

// NewKeeper builds a Keeper from a hex encoded 32 byte key.
func NewKeeper(hexKey string) (*Keeper, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding credential key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Keeper{aead: aead}, nil
}

// Seal encrypts plaintext into a nonce-prefixed blob.
func (k *Keeper) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return k.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (k *Keeper) Open(blob []byte) ([]byte, error) {
	ns := k.aead.NonceSize()
	if len(blob) < ns {
		return nil, ErrBadCiphertext
	}
	plaintext, err := k.aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	return plaintext, nil
}

// OpenString is Open for string credentials.
func (k *Keeper) OpenString(blob []byte) (string, error) {
	b, err := k.Open(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
