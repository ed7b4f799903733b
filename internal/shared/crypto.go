package shared

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// SecretBox encrypts short secrets (device/BIOS passwords) at rest using
// nacl secretbox. The ciphertext format is base64(nonce || box).
type SecretBox struct {
	key [32]byte
}

// ErrInvalidCiphertext indicates a ciphertext that cannot be opened with
// the configured key.
var ErrInvalidCiphertext = errors.New("shared: invalid ciphertext")

// NewSecretBox builds a SecretBox from a 32-byte key.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != 32 {
		return nil, errors.New("shared: encryption key must be 32 bytes")
	}
	box := &SecretBox{}
	copy(box.key[:], key)
	return box, nil
}

// NewSecretBoxFromBase64 decodes a base64 key and builds a SecretBox.
func NewSecretBoxFromBase64(encoded string) (*SecretBox, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("shared: encryption key is not valid base64")
	}
	return NewSecretBox(key)
}

// Encrypt seals plaintext with a random nonce. Empty plaintext maps to an
// empty ciphertext so optional secrets stay optional.
func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	if b == nil {
		return "", errors.New("shared: secret box not initialised")
	}
	if plaintext == "" {
		return "", nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (b *SecretBox) Decrypt(ciphertext string) (string, error) {
	if b == nil {
		return "", errors.New("shared: secret box not initialised")
	}
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < 24 {
		return "", ErrInvalidCiphertext
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	return string(opened), nil
}
