// Package compression provides the byte-level compressors used by the
// baseline serializer and the binary-file provider.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrUnknownAlgorithm = errors.New("compression: unknown algorithm")
	ErrFrame            = errors.New("compression: unreadable frame")
)

// Frame ids. Compressed payloads start with one of these so the reader never
// depends on its own configuration to pick a codec.
const (
	idNone byte = iota
	idGzip
	idDeflate
	idZstd
	idS2
)

type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// New returns the compressor for algorithm. Level follows the 0-9 scale of the
// configuration; 0 selects each codec's default.
func New(algorithm string, level int) (Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "none":
		return None{}, nil
	case "gzip":
		return &Gzip{level: flateLevel(level)}, nil
	case "deflate":
		return &Deflate{level: flateLevel(level)}, nil
	case "zstd":
		return newZstd(level)
	case "s2", "lz4":
		return &S2{level: level}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

// Pack compresses data with c and prefixes the algorithm id.
func Pack(c Compressor, data []byte) ([]byte, error) {
	id, err := frameID(c)
	if err != nil {
		return nil, err
	}
	out, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	return append([]byte{id}, out...), nil
}

// Unpack reverses Pack using the codec named by the frame id.
func Unpack(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrFrame)
	}
	c, err := decoderFor(data[0])
	if err != nil {
		return nil, err
	}
	return c.Decompress(data[1:])
}

// Algorithm reports the codec name recorded in a packed frame.
func Algorithm(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty", ErrFrame)
	}
	c, err := decoderFor(data[0])
	if err != nil {
		return "", err
	}
	return c.Name(), nil
}

func frameID(c Compressor) (byte, error) {
	switch c.(type) {
	case None, *None:
		return idNone, nil
	case *Gzip:
		return idGzip, nil
	case *Deflate:
		return idDeflate, nil
	case *Zstd:
		return idZstd, nil
	case *S2:
		return idS2, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, c.Name())
	}
}

var sharedZstd = sync.OnceValues(func() (*Zstd, error) { return newZstd(0) })

func decoderFor(id byte) (Compressor, error) {
	switch id {
	case idNone:
		return None{}, nil
	case idGzip:
		return &Gzip{}, nil
	case idDeflate:
		return &Deflate{}, nil
	case idZstd:
		return sharedZstd()
	case idS2:
		return &S2{}, nil
	default:
		return nil, fmt.Errorf("%w: algorithm id %d", ErrFrame, id)
	}
}

func flateLevel(level int) int {
	if level <= 0 || level > 9 {
		return flate.DefaultCompression
	}
	return level
}

// None passes data through unchanged.
type None struct{}

func (None) Name() string                           { return "none" }
func (None) Compress(data []byte) ([]byte, error)   { return data, nil }
func (None) Decompress(data []byte) ([]byte, error) { return data, nil }

type Gzip struct {
	level int
}

func (g *Gzip) Name() string { return "gzip" }

func (g *Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Gzip) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

type Deflate struct {
	level int
}

func (d *Deflate) Name() string { return "deflate" }

func (d *Deflate) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, d.level)
	if err != nil {
		return nil, fmt.Errorf("deflate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Deflate) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate read: %w", err)
	}
	return out, nil
}

// Zstd keeps one encoder and decoder; EncodeAll/DecodeAll are safe for concurrent use.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstd(level int) (*Zstd, error) {
	opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Zstd{encoder: enc, decoder: dec}, nil
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// S2 is the LZ4-style block codec: very fast, moderate ratio.
type S2 struct {
	level int
}

func (s *S2) Name() string { return "s2" }

func (s *S2) Compress(data []byte) ([]byte, error) {
	switch {
	case s.level >= 8:
		return s2.EncodeBest(nil, data), nil
	case s.level >= 5:
		return s2.EncodeBetter(nil, data), nil
	default:
		return s2.Encode(nil, data), nil
	}
}

func (s *S2) Decompress(data []byte) ([]byte, error) {
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2 decode: %w", err)
	}
	return out, nil
}
