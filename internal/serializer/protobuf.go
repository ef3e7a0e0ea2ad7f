//go:build !noprotobuf

package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"persistence-engine/internal/envelope"
)

func init() {
	registerBuiltin(HighPerfBinaryB, "protobuf", NewProtobuf)
}

// Protobuf is the second high-performance binary codec. proto.Message values
// are written as-is; anything else is normalised through JSON into a
// structpb.Value first. structpb numbers are doubles, so integers beyond
// ±2^53 are carried as digit strings under bigIntKey.
type Protobuf struct{}

func NewProtobuf(Options) (Serializer, error) {
	return &Protobuf{}, nil
}

func (p *Protobuf) Format() Format { return HighPerfBinaryB }

func (p *Protobuf) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		value, err := toStructValue(v)
		if err != nil {
			return nil, err
		}
		msg = value
	}

	payload, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protobuf encode %T: %w", v, err)
	}
	return envelope.Encode(payload, false), nil
}

func (p *Protobuf) Unmarshal(data []byte, v any) error {
	payload, _, err := envelope.Decode(data)
	if err != nil {
		return err
	}

	if msg, ok := v.(proto.Message); ok {
		if err := proto.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("protobuf decode into %T: %w", v, err)
		}
		return nil
	}

	var value structpb.Value
	if err := proto.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("protobuf decode: %w", err)
	}
	raw, err := json.Marshal(untagIntegers(value.AsInterface()))
	if err != nil {
		return fmt.Errorf("protobuf normalise: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("protobuf decode into %T: %w", v, err)
	}
	return nil
}

func (p *Protobuf) MarshalText(v any) (string, error)      { return marshalText(p, v) }
func (p *Protobuf) UnmarshalText(text string, v any) error { return unmarshalText(p, text, v) }
func (p *Protobuf) EstimatedSize(v any) int                { return estimatedSize(p, v) }

func (p *Protobuf) IsValid(data []byte) bool {
	payload, _, err := envelope.Decode(data)
	if err != nil {
		return false
	}
	var value structpb.Value
	return proto.Unmarshal(payload, &value) == nil
}

func toStructValue(v any) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protobuf normalise %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("protobuf normalise %T: %w", v, err)
	}
	value, err := structpb.NewValue(tagIntegers(generic))
	if err != nil {
		return nil, fmt.Errorf("protobuf value %T: %w", v, err)
	}
	return value, nil
}

const (
	bigIntKey   = "\x00int"
	maxExactInt = 1 << 53
)

func tagIntegers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = tagIntegers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = tagIntegers(e)
		}
		return x
	case json.Number:
		if !fitsFloat(x) {
			return map[string]any{bigIntKey: string(x)}
		}
		f, err := x.Float64()
		if err != nil {
			return string(x)
		}
		return f
	default:
		return v
	}
}

func untagIntegers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if digits, ok := x[bigIntKey].(string); ok {
				return json.Number(digits)
			}
		}
		for k, e := range x {
			x[k] = untagIntegers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = untagIntegers(e)
		}
		return x
	default:
		return v
	}
}

// fitsFloat reports whether n survives a float64 round trip unchanged.
func fitsFloat(n json.Number) bool {
	if strings.ContainsAny(string(n), ".eE") {
		return true
	}
	i, err := n.Int64()
	return err == nil && i >= -maxExactInt && i <= maxExactInt
}
