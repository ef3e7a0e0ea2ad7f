// Package serializer converts typed values to bytes and back.
//
// Every binary form is wrapped in the envelope. Text forms are the standard
// base64 encoding of the byte form. Optional codecs register themselves in a
// Registry; when none can be constructed for a format the registry hands out
// the baseline serializer instead.
package serializer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"persistence-engine/internal/compression"
	"persistence-engine/internal/config"
)

var (
	// ErrCodecUnavailable is returned by constructors whose runtime codec is absent.
	ErrCodecUnavailable = errors.New("serializer: codec unavailable")
	ErrInvalidTarget    = errors.New("serializer: unmarshal target must be a non-nil pointer")
	ErrDecompress       = errors.New("serializer: payload decompression failed")
)

type Serializer interface {
	Format() Format
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	MarshalText(v any) (string, error)
	UnmarshalText(text string, v any) error
	IsValid(data []byte) bool
	EstimatedSize(v any) int
}

// Options configures the codecs built by a Registry.
type Options struct {
	// Compressor is applied to baseline payloads. Nil disables compression.
	Compressor compression.Compressor
	Pretty     bool
}

// OptionsFromConfig derives codec options from the serialization and
// compression sections.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{Pretty: cfg.Serialization.PrettyPrint}
	if cfg.Compression.Enabled {
		c, err := compression.New(cfg.Compression.Algorithm, cfg.Compression.Level)
		if err != nil {
			return Options{}, err
		}
		opts.Compressor = c
	}
	return opts, nil
}

func ToBytes[T any](s Serializer, v T) ([]byte, error) {
	return s.Marshal(v)
}

func FromBytes[T any](s Serializer, data []byte) (T, error) {
	var v T
	err := s.Unmarshal(data, &v)
	return v, err
}

func ToText[T any](s Serializer, v T) (string, error) {
	return s.MarshalText(v)
}

func FromText[T any](s Serializer, text string) (T, error) {
	var v T
	err := s.UnmarshalText(text, &v)
	return v, err
}

func marshalText(s Serializer, v any) (string, error) {
	data, err := s.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func unmarshalText(s Serializer, text string, v any) error {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("invalid base64 text: %w", err)
	}
	return s.Unmarshal(data, v)
}

func estimatedSize(s Serializer, v any) int {
	data, err := s.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
