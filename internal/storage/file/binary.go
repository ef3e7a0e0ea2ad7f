package file

import (
	"context"
	"fmt"

	"persistence-engine/internal/compression"
	"persistence-engine/internal/config"
	"persistence-engine/internal/envelope"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/security"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// BinaryProvider stores <key>.dat files wrapped in the envelope. Saving runs
// cipher then compression; loading runs the exact reverse.
type BinaryProvider struct {
	provider
	root string
}

func NewBinaryProvider(sink logging.Sink, root string) *BinaryProvider {
	return &BinaryProvider{
		provider: provider{kind: storage.BinaryFile, sink: sinkOrNop(sink)},
		root:     root,
	}
}

func (p *BinaryProvider) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return p.life.Initialize(func() storage.Result {
		c, err := newBinaryCodec(cfg)
		if err != nil {
			return p.fail(ctx, "initialize", "", err)
		}
		return p.initialize(ctx, rootFor(p.root, cfg.BinaryPath()), cfg.Storage.BinaryExtension, cfg.Storage.KeyPrefix, c)
	})
}

// Serializer leaves compression to the provider's own pipeline.
func (p *BinaryProvider) Serializer() serializer.Serializer { return plainSerializer() }

type binaryCodec struct {
	cipher     security.Cipher        // nil when encryption is off
	compressor compression.Compressor // nil when compression is off
}

func newBinaryCodec(cfg *config.Config) (*binaryCodec, error) {
	c := &binaryCodec{}
	if cfg.Encryption.Enabled {
		cipher, err := security.NewCipher(cfg.Encryption.Algorithm, cfg.Encryption.Key)
		if err != nil {
			return nil, err
		}
		c.cipher = cipher
	}
	if cfg.Compression.Enabled {
		compressor, err := compression.New(cfg.Compression.Algorithm, cfg.Compression.Level)
		if err != nil {
			return nil, err
		}
		c.compressor = compressor
	}
	return c, nil
}

func (c *binaryCodec) encode(data []byte) ([]byte, error) {
	payload := data
	if c.cipher != nil {
		encrypted, err := c.cipher.Encrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrEncryption, err)
		}
		payload = encrypted
	}

	if c.compressor == nil {
		return envelope.Encode(payload, false), nil
	}
	compressed, err := compression.Pack(c.compressor, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrCompression, err)
	}
	return envelope.Encode(compressed, true), nil
}

func (c *binaryCodec) decode(data []byte) ([]byte, error) {
	payload, compressed, err := envelope.Decode(data)
	if err != nil {
		return nil, err
	}

	if compressed {
		payload, err = compression.Unpack(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrCompression, err)
		}
	} else {
		payload = append([]byte(nil), payload...)
	}

	if c.cipher != nil {
		plain, err := c.cipher.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrEncryption, err)
		}
		payload = plain
	}
	return payload, nil
}
