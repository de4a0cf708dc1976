// Package secrets encrypts and decrypts config credentials. Encrypted values
// carry an "enc:" tag; untagged values pass through unchanged so plain-text
// configs keep working.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Tag marks an encrypted config value.
const Tag = "enc:"

// MasterKeyEnv is the environment variable holding the master passphrase.
const MasterKeyEnv = "PROCWATCH_MASTER_KEY"

// ErrNoMasterKey is returned when a tagged value is present but the master
// key environment variable is not set. This is fatal for the affected target:
// silently using a wrong credential would be worse.
var ErrNoMasterKey = errors.New("encrypted value found but " + MasterKeyEnv + " is not set")

// Decrypt resolves value to plain text. Untagged values are returned as-is.
func Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, Tag) {
		return value, nil
	}
	key, err := masterKey()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Tag))
	if err != nil {
		return "", fmt.Errorf("decoding encrypted value: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("encrypted value too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting value (wrong master key?): %w", err)
	}
	return string(plain), nil
}

// Encrypt seals value under the master key and returns the tagged form.
func Encrypt(value string) (string, error) {
	key, err := masterKey()
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(value), nil)
	return Tag + base64.StdEncoding.EncodeToString(sealed), nil
}

// IsEncrypted reports whether value carries the encryption tag.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Tag)
}

// masterKey derives a 32-byte AES key from the passphrase in the environment.
func masterKey() ([]byte, error) {
	passphrase := os.Getenv(MasterKeyEnv)
	if passphrase == "" {
		return nil, ErrNoMasterKey
	}
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:], nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initialising cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
