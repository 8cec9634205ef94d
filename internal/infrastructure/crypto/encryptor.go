// Package crypto encrypts credential fields at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize   = 32
	nonceSize = 12
	prefix    = "enc:v1:"
)

var (
	ErrNoKey             = errors.New("credential encryption key not configured")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptFailed usually means the master key changed since the row
	// was written.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Encryptor seals and opens credential strings with one process-wide key.
type Encryptor struct {
	key []byte
}

// NewEncryptor accepts either a base64 (std or urlsafe) encoding of a raw
// 32-byte key, or an arbitrary passphrase that is derived to a key via
// SHA-256.
func NewEncryptor(rawKey string) (*Encryptor, error) {
	value := strings.TrimSpace(rawKey)
	if value == "" {
		return nil, ErrNoKey
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if decoded, err := enc.DecodeString(value); err == nil && len(decoded) == keySize {
			return &Encryptor{key: decoded}, nil
		}
	}

	digest := sha256.Sum256([]byte(value))
	return &Encryptor{key: digest[:]}, nil
}

// Encrypt seals plaintext into "enc:v1:" + base64(nonce + ciphertext).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a string produced by Encrypt.
func (e *Encryptor) Decrypt(token string) (string, error) {
	if !strings.HasPrefix(token, prefix) {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(token[len(prefix):])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
