package file

import (
	"context"
	"encoding/json"
	"fmt"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// JSONProvider stores each value as a human-readable <key>.json document.
type JSONProvider struct {
	provider
	root string
	ser  serializer.Serializer
}

// NewJSONProvider returns a provider rooted at root, or at the configured
// JSON path when root is empty.
func NewJSONProvider(sink logging.Sink, root string) *JSONProvider {
	return &JSONProvider{
		provider: provider{kind: storage.JSONFile, sink: sinkOrNop(sink)},
		root:     root,
		ser:      serializer.NewPlainJSON(false),
	}
}

func (p *JSONProvider) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return p.life.Initialize(func() storage.Result {
		p.ser = serializer.NewPlainJSON(cfg.Serialization.PrettyPrint)
		c := jsonCodec{validate: cfg.Storage.ValidateData}
		return p.initialize(ctx, rootFor(p.root, cfg.JSONPath()), cfg.Storage.JSONExtension, cfg.Storage.KeyPrefix, c)
	})
}

// Serializer writes bare JSON so files stay readable.
func (p *JSONProvider) Serializer() serializer.Serializer { return p.ser }

type jsonCodec struct {
	validate bool
}

func (c jsonCodec) encode(data []byte) ([]byte, error) {
	if c.validate && !json.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not a JSON document", storage.ErrInvalidData)
	}
	return data, nil
}

func (c jsonCodec) decode(data []byte) ([]byte, error) {
	if c.validate && !json.Valid(data) {
		return nil, fmt.Errorf("%w: file is not a JSON document", storage.ErrCorrupted)
	}
	return data, nil
}
