// Package secrets seals credentials kept in the configuration file with
// AES-256-GCM. A sealed value is written as "enc:" followed by the base64 of
// nonce||ciphertext; anything else is taken literally.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a sealed configuration value.
const Prefix = "enc:"

// MasterKeyEnv names the environment variable holding the base64 master key.
const MasterKeyEnv = "EVENTCAM_MASTER_KEY"

var ErrNoMasterKey = errors.New("sealed value found but " + MasterKeyEnv + " is not set")

func newGCM(masterKey string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext and returns it with Prefix attached. Empty input
// stays empty.
func Seal(plaintext, masterKey string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	data := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(data), nil
}

// Open returns the plaintext of value. Values without Prefix are returned as
// they are, so plain credentials keep working.
func Open(value, masterKey string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if masterKey == "" {
		return "", ErrNoMasterKey
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}
	n := gcm.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("sealed value too short")
	}
	plaintext, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries Prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// GenerateMasterKey returns a new random 256-bit key, base64 encoded.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
