//go:build !nocbor

package serializer

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"persistence-engine/internal/envelope"
)

func init() {
	registerBuiltin(HighPerfBinaryA, "cbor", NewCBOR)
}

// CBOR is the first high-performance binary codec.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR(Options) (Serializer, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("%w: cbor encoder: %v", ErrCodecUnavailable, err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("%w: cbor decoder: %v", ErrCodecUnavailable, err)
	}
	return &CBOR{enc: enc, dec: dec}, nil
}

func (c *CBOR) Format() Format { return HighPerfBinaryA }

func (c *CBOR) Marshal(v any) ([]byte, error) {
	payload, err := c.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode %T: %w", v, err)
	}
	return envelope.Encode(payload, false), nil
}

func (c *CBOR) Unmarshal(data []byte, v any) error {
	payload, _, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	if err := c.dec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("cbor decode into %T: %w", v, err)
	}
	return nil
}

func (c *CBOR) MarshalText(v any) (string, error)      { return marshalText(c, v) }
func (c *CBOR) UnmarshalText(text string, v any) error { return unmarshalText(c, text, v) }
func (c *CBOR) EstimatedSize(v any) int                { return estimatedSize(c, v) }

func (c *CBOR) IsValid(data []byte) bool {
	payload, _, err := envelope.Decode(data)
	if err != nil {
		return false
	}
	return c.dec.Wellformed(payload) == nil
}
