package compression

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var algorithms = []string{"none", "gzip", "deflate", "zstd", "s2", "lz4"}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"short":      []byte("x"),
		"repetitive": bytes.Repeat([]byte("save-slot-"), 500),
		"binary":     {0x00, 0xFF, 0x10, 0x00, 0x00, 0x7F},
	}

	for _, algorithm := range algorithms {
		for _, level := range []int{0, 1, 6, 9} {
			c, err := New(algorithm, level)
			if err != nil {
				t.Fatalf("New(%s, %d) error = %v", algorithm, level, err)
			}
			for name, input := range inputs {
				compressed, err := c.Compress(input)
				if err != nil {
					t.Fatalf("%s/%s: Compress() error = %v", algorithm, name, err)
				}
				out, err := c.Decompress(compressed)
				if err != nil {
					t.Fatalf("%s/%s: Decompress() error = %v", algorithm, name, err)
				}
				if !bytes.Equal(out, input) {
					t.Errorf("%s/%s level %d: round trip mismatch", algorithm, name, level)
				}
			}
		}
	}
}

func TestCompressionShrinksRepetitiveInput(t *testing.T) {
	input := bytes.Repeat([]byte("aaaaaaaaaa"), 1000)
	for _, algorithm := range algorithms[1:] {
		c, _ := New(algorithm, 6)
		out, err := c.Compress(input)
		if err != nil {
			t.Fatalf("%s: Compress() error = %v", algorithm, err)
		}
		if len(out) >= len(input) {
			t.Errorf("%s: expected compressed size < %d, got %d", algorithm, len(input), len(out))
		}
	}
}

func TestLZ4AliasUsesS2(t *testing.T) {
	c, err := New("lz4", 0)
	if err != nil {
		t.Fatalf("New(lz4) error = %v", err)
	}
	if c.Name() != "s2" {
		t.Errorf("Expected lz4 alias to resolve to s2, got %s", c.Name())
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := New("brotli", 5)
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestDecompressGarbage(t *testing.T) {
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}
	for _, algorithm := range []string{"gzip", "zstd", "s2"} {
		c, _ := New(algorithm, 0)
		if _, err := c.Decompress(garbage); err == nil {
			t.Errorf("%s: expected error decompressing garbage", algorithm)
		}
	}
}

func TestPackRecordsAlgorithm(t *testing.T) {
	input := bytes.Repeat([]byte("inventory "), 100)
	for _, algorithm := range algorithms {
		for _, level := range []int{0, 9} {
			c, _ := New(algorithm, level)
			packed, err := Pack(c, input)
			if err != nil {
				t.Fatalf("%s: Pack() error = %v", algorithm, err)
			}
			name, err := Algorithm(packed)
			if err != nil || name != c.Name() {
				t.Errorf("%s: Algorithm() = %q, %v", algorithm, name, err)
			}
			out, err := Unpack(packed)
			if err != nil {
				t.Fatalf("%s: Unpack() error = %v", algorithm, err)
			}
			if !bytes.Equal(out, input) {
				t.Errorf("%s level %d: round trip mismatch", algorithm, level)
			}
		}
	}
}

func TestUnpackRejectsBadFrames(t *testing.T) {
	for name, frame := range map[string][]byte{
		"empty":      nil,
		"unknown id": {0x42, 0x00},
		"bad zstd":   {idZstd, 0xde, 0xad},
	} {
		if _, err := Unpack(frame); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Unpack(nil); !errors.Is(err, ErrFrame) {
		t.Errorf("Expected ErrFrame, got %v", err)
	}
}

func TestCompressionProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	for _, algorithm := range algorithms {
		c, err := New(algorithm, 3)
		if err != nil {
			t.Fatalf("New(%s) error = %v", algorithm, err)
		}
		properties.Property(algorithm+" decompress(compress(b)) == b", prop.ForAll(
			func(input []byte) bool {
				compressed, err := c.Compress(input)
				if err != nil {
					return false
				}
				out, err := c.Decompress(compressed)
				return err == nil && bytes.Equal(out, input)
			},
			gen.SliceOf(gen.UInt8()),
		))
	}

	properties.TestingRun(t)
}
