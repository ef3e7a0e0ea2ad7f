package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"persistence-engine/internal/compression"
	"persistence-engine/internal/envelope"
)

// Baseline is always available and serves the JSON and Binary formats.
// Primitives are written in their locale-independent text form, strings
// quoted, everything else as JSON. The result is wrapped in the envelope,
// compressed first when a compressor is configured. Reading follows the
// algorithm recorded in the payload, not the local compressor.
type Baseline struct {
	format     Format
	compressor compression.Compressor
	pretty     bool
}

// NewBaseline returns the baseline serializer reporting format. Only the
// Binary format applies opts.Compressor.
func NewBaseline(format Format, opts Options) *Baseline {
	b := &Baseline{format: format, pretty: opts.Pretty}
	if format != JSON {
		b.compressor = opts.Compressor
	}
	return b
}

func (b *Baseline) Format() Format { return b.format }

func (b *Baseline) Marshal(v any) ([]byte, error) {
	payload, err := b.encode(v)
	if err != nil {
		return nil, err
	}

	if b.compressor == nil {
		return envelope.Encode(payload, false), nil
	}
	compressed, err := compression.Pack(b.compressor, payload)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return envelope.Encode(compressed, true), nil
}

func (b *Baseline) Unmarshal(data []byte, v any) error {
	payload, compressed, err := envelope.Decode(data)
	if err != nil {
		return err
	}

	if compressed {
		payload, err = compression.Unpack(payload)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecompress, err)
		}
	}
	return decodePrimitive(payload, v)
}

func (b *Baseline) MarshalText(v any) (string, error)      { return marshalText(b, v) }
func (b *Baseline) UnmarshalText(text string, v any) error { return unmarshalText(b, text, v) }
func (b *Baseline) EstimatedSize(v any) int                { return estimatedSize(b, v) }

func (b *Baseline) IsValid(data []byte) bool {
	payload, compressed, err := envelope.Decode(data)
	if err != nil {
		return false
	}
	if compressed {
		if _, err := compression.Unpack(payload); err != nil {
			return false
		}
	}
	return true
}

func (b *Baseline) encode(v any) ([]byte, error) {
	if text, ok := encodePrimitive(v); ok {
		return []byte(text), nil
	}

	var (
		data []byte
		err  error
	)
	if b.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

func encodePrimitive(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	default:
		return "", false
	}
}

func decodePrimitive(payload []byte, v any) error {
	text := string(bytes.TrimSpace(payload))

	var err error
	switch p := v.(type) {
	case nil:
		return ErrInvalidTarget
	case *string:
		*p, err = strconv.Unquote(text)
	case *bool:
		*p, err = strconv.ParseBool(text)
	case *int:
		var n int64
		n, err = strconv.ParseInt(text, 10, strconv.IntSize)
		*p = int(n)
	case *int8:
		var n int64
		n, err = strconv.ParseInt(text, 10, 8)
		*p = int8(n)
	case *int16:
		var n int64
		n, err = strconv.ParseInt(text, 10, 16)
		*p = int16(n)
	case *int32:
		var n int64
		n, err = strconv.ParseInt(text, 10, 32)
		*p = int32(n)
	case *int64:
		*p, err = strconv.ParseInt(text, 10, 64)
	case *uint:
		var n uint64
		n, err = strconv.ParseUint(text, 10, strconv.IntSize)
		*p = uint(n)
	case *uint8:
		var n uint64
		n, err = strconv.ParseUint(text, 10, 8)
		*p = uint8(n)
	case *uint16:
		var n uint64
		n, err = strconv.ParseUint(text, 10, 16)
		*p = uint16(n)
	case *uint32:
		var n uint64
		n, err = strconv.ParseUint(text, 10, 32)
		*p = uint32(n)
	case *uint64:
		*p, err = strconv.ParseUint(text, 10, 64)
	case *float32:
		var f float64
		f, err = strconv.ParseFloat(text, 32)
		*p = float32(f)
	case *float64:
		*p, err = strconv.ParseFloat(text, 64)
	default:
		err = json.Unmarshal(payload, v)
	}
	if err != nil {
		return fmt.Errorf("decode into %T: %w", v, err)
	}
	return nil
}

