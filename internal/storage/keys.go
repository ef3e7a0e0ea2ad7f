package storage

import (
	"fmt"
	"strings"
	"unicode"
)

const maxFileKeyLength = 200

var reservedFileNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// ValidateKey rejects keys no medium can hold.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: key contains NUL", ErrInvalidKey)
	}
	return nil
}

// ValidateFileKey additionally rejects keys that would escape the provider's
// flat directory or collide with reserved device names.
func ValidateFileKey(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(key) > maxFileKeyLength {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalidKey, maxFileKeyLength)
	}
	if key == "." || key == ".." || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q contains a relative path element", ErrInvalidKey, key)
	}
	if strings.ContainsAny(key, `/\:*?"<>|`) {
		return fmt.Errorf("%w: %q contains a path separator or reserved character", ErrInvalidKey, key)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidKey, key)
		}
	}
	if strings.TrimSpace(key) != key || strings.HasSuffix(key, ".") {
		return fmt.Errorf("%w: %q has leading/trailing space or trailing dot", ErrInvalidKey, key)
	}
	base, _, _ := strings.Cut(strings.ToLower(key), ".")
	if reservedFileNames[base] {
		return fmt.Errorf("%w: %q is a reserved file name", ErrInvalidKey, key)
	}
	return nil
}

// Namespace applies the configured key prefix.
type Namespace string

func (n Namespace) Apply(key string) string { return string(n) + key }

// Strip removes the prefix from a physical key.
func (n Namespace) Strip(physical string) (string, bool) {
	return strings.CutPrefix(physical, string(n))
}
