package storage

import (
	"context"
	"fmt"

	"persistence-engine/internal/serializer"
)

func pickSerializer(p Provider, s serializer.Serializer) (serializer.Serializer, error) {
	if s != nil {
		return s, nil
	}
	if sp, ok := p.(SerializerProvider); ok {
		if s := sp.Serializer(); s != nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no serializer for %s provider", ErrInvalidData, p.Kind())
}

// SaveValue serializes v with s, or with the provider's preferred serializer
// when s is nil, and saves the bytes.
func SaveValue[T any](ctx context.Context, p Provider, s serializer.Serializer, key string, v T) Result {
	ser, err := pickSerializer(p, s)
	if err != nil {
		return ResultFromError(err)
	}
	data, err := serializer.ToBytes(ser, v)
	if err != nil {
		return InvalidData
	}
	return p.Save(ctx, key, data)
}

// LoadValue loads key and decodes it into a T.
func LoadValue[T any](ctx context.Context, p Provider, s serializer.Serializer, key string) (T, Result) {
	var zero T

	ser, err := pickSerializer(p, s)
	if err != nil {
		return zero, ResultFromError(err)
	}
	data, result := p.Load(ctx, key)
	if !result.OK() {
		return zero, result
	}
	v, err := serializer.FromBytes[T](ser, data)
	if err != nil {
		if r := ResultFromError(err); r != Failed {
			return zero, r
		}
		return zero, InvalidData
	}
	return v, Success
}
