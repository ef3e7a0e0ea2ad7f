package envelope

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEncodeLayout(t *testing.T) {
	out := Encode([]byte{0xAA, 0xBB}, true)

	if len(out) != HeaderSize+2 {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize+2, len(out))
	}
	if v := binary.LittleEndian.Uint32(out[0:4]); v != 1 {
		t.Errorf("Expected version 1, got %d", v)
	}
	if out[4] != 1 {
		t.Errorf("Expected compressed flag 1, got %d", out[4])
	}
	if l := binary.LittleEndian.Uint32(out[5:9]); l != 2 {
		t.Errorf("Expected length 2, got %d", l)
	}
	if !bytes.Equal(out[9:], []byte{0xAA, 0xBB}) {
		t.Errorf("Unexpected payload %x", out[9:])
	}
}

func TestRoundTripBoundarySizes(t *testing.T) {
	for _, size := range []int{0, 1, 7, 8, 9, 10, 255, 4096} {
		for _, compressed := range []bool{false, true} {
			payload := bytes.Repeat([]byte{byte(size)}, size)

			got, flag, err := Decode(Encode(payload, compressed))
			if err != nil {
				t.Fatalf("size %d: Decode() error = %v", size, err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("size %d: payload mismatch", size)
			}
			if flag != compressed {
				t.Errorf("size %d: compressed = %v, want %v", size, flag, compressed)
			}
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := Encode([]byte("hello"), false)

	wrongVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(wrongVersion[0:4], 2)

	badFlag := append([]byte(nil), valid...)
	badFlag[4] = 7

	tooLong := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(tooLong[5:9], 6)

	huge := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(huge[5:9], 0xFFFFFFFF)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"nil", nil, ErrTruncated},
		{"seven byte header", valid[:7], ErrTruncated},
		{"eight bytes", valid[:8], ErrTruncated},
		{"wrong version", wrongVersion, ErrUnsupportedVersion},
		{"bad flag", badFlag, ErrInvalidFlag},
		{"length past end", tooLong, ErrLengthMismatch},
		{"max length", huge, ErrLengthMismatch},
		{"header only with declared payload", valid[:HeaderSize], ErrLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
			if Valid(tt.data) {
				t.Error("Valid() = true for malformed input")
			}
		})
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	data := append(Encode([]byte("abc"), false), 0x01, 0x02)

	got, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
}

func TestEnvelopeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decode(encode(b, c)) == (b, c)", prop.ForAll(
		func(payload []byte, compressed bool) bool {
			got, flag, err := Decode(Encode(payload, compressed))
			return err == nil && bytes.Equal(got, payload) && flag == compressed
		},
		gen.SliceOf(gen.UInt8()),
		gen.Bool(),
	))

	properties.Property("decode never panics on arbitrary input", prop.ForAll(
		func(data []byte) bool {
			_, _, _ = Decode(data)
			return true
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("every strict prefix of an envelope is rejected", prop.ForAll(
		func(payload []byte, cut int) bool {
			encoded := Encode(payload, false)
			if cut >= len(encoded) {
				cut = len(encoded) - 1
			}
			_, _, err := Decode(encoded[:cut])
			return err != nil
		},
		gen.SliceOf(gen.UInt8()).SuchThat(func(b []byte) bool { return len(b) > 0 }),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}
