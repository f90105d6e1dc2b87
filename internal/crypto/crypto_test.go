package crypto_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/gopost/engine/internal/crypto"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestNewCipher_KeyLength(t *testing.T) {
	if _, err := crypto.NewCipher([]byte("short")); !errors.Is(err, crypto.ErrInvalidKey) {
		t.Errorf("NewCipher(short key) error = %v, want ErrInvalidKey", err)
	}
	if _, err := crypto.NewCipher(testKey()); err != nil {
		t.Errorf("NewCipher(32-byte key) error = %v, want nil", err)
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	testCases := []string{
		`{"access_token":"abc","token_type":"bearer"}`,
		"https://hook.make.com/abc123",
		"",
		strings.Repeat("x", 100),
	}

	for _, plaintext := range testCases {
		encoded, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if !strings.Contains(encoded, ":") {
			t.Fatalf("Encrypt(%q) = %q, want iv:ciphertext format", plaintext, encoded)
		}

		decoded, err := c.Decrypt(encoded)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", encoded, err)
		}
		if decoded != plaintext {
			t.Errorf("round trip = %q, want %q", decoded, plaintext)
		}
	}
}

func TestCipher_Decrypt_Malformed(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	testCases := []struct {
		name    string
		encoded string
	}{
		{"no separator", "deadbeef"},
		{"bad iv hex", "zz:deadbeef"},
		{"short iv", "dead:deadbeefdeadbeefdeadbeefdeadbeef"},
		{"empty ciphertext", "00000000000000000000000000000000:"},
		{"unaligned ciphertext", "00000000000000000000000000000000:dead"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, decErr := c.Decrypt(tc.encoded); !errors.Is(decErr, crypto.ErrMalformedCiphertext) {
				t.Errorf("Decrypt(%q) error = %v, want ErrMalformedCiphertext", tc.encoded, decErr)
			}
		})
	}
}
