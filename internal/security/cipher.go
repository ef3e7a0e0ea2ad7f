package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyKey         = errors.New("security: encryption key is empty")
	ErrUnknownAlgorithm = errors.New("security: unknown encryption algorithm")
	ErrCiphertextShort  = errors.New("security: ciphertext shorter than nonce")
)

// Cipher transforms payloads before they reach the storage medium.
type Cipher interface {
	Name() string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// NewCipher returns the cipher for algorithm keyed by key.
func NewCipher(algorithm, key string) (Cipher, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "xor":
		return NewXORCipher([]byte(key)), nil
	case "aes", "aes-gcm":
		return NewAESCipher([]byte(key))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

// XORCipher is the lightweight obfuscation hook. It preserves length and is
// its own inverse.
type XORCipher struct {
	key []byte
}

func NewXORCipher(key []byte) *XORCipher {
	return &XORCipher{key: append([]byte(nil), key...)}
}

func (x *XORCipher) Name() string { return "xor" }

func (x *XORCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return x.apply(plaintext), nil
}

func (x *XORCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return x.apply(ciphertext), nil
}

func (x *XORCipher) apply(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ x.key[i%len(x.key)]
	}
	return out
}

// AESCipher encrypts with AES-256-GCM. The key is the SHA-256 digest of the
// configured secret and every ciphertext carries its random nonce as prefix.
type AESCipher struct {
	gcm cipher.AEAD
}

func NewAESCipher(secret []byte) (*AESCipher, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKey
	}
	key := sha256.Sum256(secret)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AES block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESCipher{gcm: gcm}, nil
}

func (a *AESCipher) Name() string { return "aes" }

func (a *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize(), a.gcm.NonceSize()+len(plaintext)+a.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (a *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	size := a.gcm.NonceSize()
	if len(ciphertext) < size {
		return nil, ErrCiphertextShort
	}
	plaintext, err := a.gcm.Open(nil, ciphertext[:size], ciphertext[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
