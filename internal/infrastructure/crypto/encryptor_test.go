package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e, err := NewEncryptor("passphrase derived key")
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	for _, plaintext := range []string{"", "api-key-1234", "pass with spaces\nand newline"} {
		token, err := e.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if !strings.HasPrefix(token, "enc:v1:") {
			t.Fatalf("token %q missing version prefix", token)
		}
		if strings.Contains(token, plaintext) && plaintext != "" {
			t.Fatalf("token leaks plaintext: %q", token)
		}
		got, err := e.Decrypt(token)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptNoncesDiffer(t *testing.T) {
	e, _ := NewEncryptor("key")
	a, _ := e.Encrypt("same input")
	b, _ := e.Encrypt("same input")
	if a == b {
		t.Fatalf("two encryptions of the same input must not match")
	}
}

func TestBase64KeyAccepted(t *testing.T) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	e, err := NewEncryptor(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("base64 key rejected: %v", err)
	}
	token, err := e.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got, err := e.Decrypt(token); err != nil || got != "hello" {
		t.Fatalf("Decrypt = %q %v", got, err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	if _, err := NewEncryptor("   "); !errors.Is(err, ErrNoKey) {
		t.Fatalf("err = %v, want ErrNoKey", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	a, _ := NewEncryptor("key a")
	b, _ := NewEncryptor("key b")

	token, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(token); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("err = %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptMalformedToken(t *testing.T) {
	e, _ := NewEncryptor("key")
	for _, token := range []string{
		"",
		"plain text",
		"enc:v0:AAAA",
		"enc:v1:not base64 !!!",
		"enc:v1:" + base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		if _, err := e.Decrypt(token); !errors.Is(err, ErrInvalidCiphertext) {
			t.Fatalf("Decrypt(%q) = %v, want ErrInvalidCiphertext", token, err)
		}
	}
}
