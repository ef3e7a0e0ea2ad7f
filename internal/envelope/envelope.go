// Package envelope implements the versioned, length-prefixed wrapper every
// binary payload is stored in.
//
// Layout (little endian):
//
//	[u32 version][u8 compressed][u32 length][length bytes payload]
//
// Only version 1 exists. Any other version is rejected; there is no
// compatibility table.
package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Version    uint32 = 1
	HeaderSize        = 9
)

var (
	ErrTruncated          = errors.New("envelope: buffer shorter than header")
	ErrUnsupportedVersion = errors.New("envelope: unsupported version")
	ErrLengthMismatch     = errors.New("envelope: declared length exceeds buffer")
	ErrInvalidFlag        = errors.New("envelope: invalid compression flag")
)

// Header is the decoded fixed-size prefix of an envelope.
type Header struct {
	Version    uint32
	Compressed bool
	Length     uint32
}

// Encode wraps payload.
func Encode(payload []byte, compressed bool) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], Version)
	if compressed {
		out[4] = 1
	}
	binary.LittleEndian.PutUint32(out[5:9], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// ReadHeader parses and validates the header without touching the payload.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrTruncated, len(data))
	}

	h := Header{
		Version: binary.LittleEndian.Uint32(data[0:4]),
		Length:  binary.LittleEndian.Uint32(data[5:9]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	switch data[4] {
	case 0:
	case 1:
		h.Compressed = true
	default:
		return Header{}, fmt.Errorf("%w: %d", ErrInvalidFlag, data[4])
	}

	if uint64(h.Length) > uint64(len(data)-HeaderSize) {
		return Header{}, fmt.Errorf("%w: declared %d, available %d", ErrLengthMismatch, h.Length, len(data)-HeaderSize)
	}
	return h, nil
}

// Decode returns the payload and its compression flag. The payload aliases data.
// Bytes after the declared length are ignored.
func Decode(data []byte) ([]byte, bool, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, false, err
	}
	return data[HeaderSize : HeaderSize+int(h.Length)], h.Compressed, nil
}

// Valid reports whether data carries a well-formed envelope.
func Valid(data []byte) bool {
	_, err := ReadHeader(data)
	return err == nil
}
