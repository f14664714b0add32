// Package secrets implements the reversible encryption used for IMAP app
// passwords and stored API tokens. Values are sealed with NaCl secretbox
// under a 32-byte key and stored base64-encoded with the nonce prepended.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrInvalidKey        = errors.New("encryption key must decode to 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

const nonceSize = 24

// Cipher seals and opens secret values with a fixed symmetric key.
type Cipher struct {
	key [32]byte
}

// NewCipher builds a cipher from a base64-encoded 32-byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(raw) != 32 {
		return nil, ErrInvalidKey
	}

	c := &Cipher{}
	copy(c.key[:], raw)
	return c, nil
}

// Encrypt seals a plaintext value for storage.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored value. A tampered or foreign-key ciphertext
// returns ErrDecryptionFailed.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
