// Package crypto encrypts inventory-account secrets at rest.
// Uses AES-256-GCM; the nonce is stored next to the ciphertext as the IV.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrDecryption is returned when a ciphertext/IV pair cannot be opened.
	ErrDecryption = errors.New("secret decryption failed")
	// ErrInvalidKey is returned when no key is configured.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// SecretCipher encrypts and decrypts stored secrets.
type SecretCipher interface {
	Encrypt(plaintext string) (ciphertext, iv string, err error)
	Decrypt(ciphertext, iv string) (string, error)
}

// AESCipher implements SecretCipher with AES-256-GCM.
type AESCipher struct {
	aead cipher.AEAD
}

// NewAESCipher derives a 32-byte key from secretKey using SHA-256.
func NewAESCipher(secretKey string) (*AESCipher, error) {
	if secretKey == "" {
		return nil, ErrInvalidKey
	}
	key := sha256.Sum256([]byte(secretKey))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV. Both values are hex encoded.
func (c *AESCipher) Encrypt(plaintext string) (string, string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate iv: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), hex.EncodeToString(nonce), nil
}

// Decrypt opens a hex ciphertext with its hex IV.
func (c *AESCipher) Decrypt(ciphertext, iv string) (string, error) {
	data, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not hex", ErrDecryption)
	}
	nonce, err := hex.DecodeString(iv)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: malformed iv", ErrDecryption)
	}

	plaintext, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext and iv do not match", ErrDecryption)
	}
	return string(plaintext), nil
}

var _ SecretCipher = (*AESCipher)(nil)
