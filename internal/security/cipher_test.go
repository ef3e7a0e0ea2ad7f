package security

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		key       string
		want      string
		wantErr   error
	}{
		{"xor", "xor", "secret", "xor", nil},
		{"aes", "aes", "secret", "aes", nil},
		{"aes-gcm alias", "AES-GCM", "secret", "aes", nil},
		{"empty key", "aes", "", "", ErrEmptyKey},
		{"unknown", "rot13", "secret", "", ErrUnknownAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.algorithm, tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewCipher() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCipher() error = %v", err)
			}
			if c.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", c.Name(), tt.want)
			}
		})
	}
}

func TestXORPreservesLength(t *testing.T) {
	c := NewXORCipher([]byte("k3y"))
	plain := []byte("high score: 4200")

	enc, _ := c.Encrypt(plain)
	if len(enc) != len(plain) {
		t.Errorf("Expected length %d, got %d", len(plain), len(enc))
	}
	if bytes.Equal(enc, plain) {
		t.Error("Expected ciphertext to differ from plaintext")
	}
	dec, _ := c.Decrypt(enc)
	if !bytes.Equal(dec, plain) {
		t.Errorf("Expected %q, got %q", plain, dec)
	}
}

func TestAESNonceIsRandom(t *testing.T) {
	c, err := NewAESCipher([]byte("secret"))
	if err != nil {
		t.Fatalf("NewAESCipher() error = %v", err)
	}

	a, _ := c.Encrypt([]byte("same"))
	b, _ := c.Encrypt([]byte("same"))
	if bytes.Equal(a, b) {
		t.Error("Expected two encryptions of the same plaintext to differ")
	}
}

func TestAESRejectsTampering(t *testing.T) {
	c, _ := NewAESCipher([]byte("secret"))

	enc, _ := c.Encrypt([]byte("inventory"))
	enc[len(enc)-1] ^= 0xFF
	if _, err := c.Decrypt(enc); err == nil {
		t.Error("Expected error decrypting tampered ciphertext")
	}

	if _, err := c.Decrypt([]byte{1, 2, 3}); !errors.Is(err, ErrCiphertextShort) {
		t.Errorf("Expected ErrCiphertextShort, got %v", err)
	}
}

func TestAESWrongKey(t *testing.T) {
	a, _ := NewAESCipher([]byte("one"))
	b, _ := NewAESCipher([]byte("two"))

	enc, _ := a.Encrypt([]byte("payload"))
	if _, err := b.Decrypt(enc); err == nil {
		t.Error("Expected error decrypting with a different key")
	}
}

func TestCipherProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	for _, algorithm := range []string{"xor", "aes"} {
		c, err := NewCipher(algorithm, "property-key")
		if err != nil {
			t.Fatalf("NewCipher(%s) error = %v", algorithm, err)
		}
		properties.Property(algorithm+" decrypt(encrypt(b)) == b", prop.ForAll(
			func(plain []byte) bool {
				enc, err := c.Encrypt(plain)
				if err != nil {
					return false
				}
				dec, err := c.Decrypt(enc)
				return err == nil && bytes.Equal(dec, plain)
			},
			gen.SliceOf(gen.UInt8()),
		))
	}

	properties.TestingRun(t)
}
