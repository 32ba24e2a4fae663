// File: internal/infra/security/content_cipher.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// ContentCipher seals story text before it rests in Postgres. Each call
// draws a fresh nonce, so sealing the same text twice yields different
// rows; the nonce travels with the ciphertext.
type ContentCipher struct {
	aead cipher.AEAD
}

// NewContentCipher builds an AES-GCM cipher from the raw key string.
// AES dictates the accepted key sizes: 16, 24 or 32 bytes.
func NewContentCipher(key string) (*ContentCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("content cipher key: want 16, 24 or 32 bytes, have %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("content cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("content cipher: %w", err)
	}
	return &ContentCipher{aead: aead}, nil
}

// Seal encrypts text and returns base64 of nonce followed by ciphertext.
func (c *ContentCipher) Seal(text string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(text)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("content cipher nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(text), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It fails on truncated input, a foreign key, or any
// bit flip in the stored row.
func (c *ContentCipher) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("content cipher decode: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("content cipher: sealed payload shorter than nonce")
	}
	text, err := c.aead.Open(nil, raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("content cipher open: %w", err)
	}
	return string(text), nil
}
