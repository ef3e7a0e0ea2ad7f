package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"persistence-engine/internal/config"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// Provider decorates a storage provider with one span per operation.
type Provider struct {
	storage.Provider
	ts *TracingService
}

var (
	_ storage.Provider           = (*Provider)(nil)
	_ storage.SerializerProvider = (*Provider)(nil)
)

// Wrap returns p unchanged when tracing is disabled.
func Wrap(p storage.Provider, ts *TracingService) storage.Provider {
	if !ts.Enabled() {
		return p
	}
	return &Provider{Provider: p, ts: ts}
}

// Unwrap returns the decorated provider.
func (p *Provider) Unwrap() storage.Provider { return p.Provider }

// Serializer forwards the inner provider's preference, if any.
func (p *Provider) Serializer() serializer.Serializer {
	if sp, ok := p.Provider.(storage.SerializerProvider); ok {
		return sp.Serializer()
	}
	return nil
}

func (p *Provider) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "initialize", "")
	result := p.Provider.Initialize(ctx, cfg)
	EndStorageSpan(span, result)
	return result
}

func (p *Provider) Save(ctx context.Context, key string, data []byte) storage.Result {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "save", key)
	span.SetAttributes(attribute.Int("storage.size", len(data)))
	result := p.Provider.Save(ctx, key, data)
	EndStorageSpan(span, result)
	return result
}

func (p *Provider) Load(ctx context.Context, key string) ([]byte, storage.Result) {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "load", key)
	data, result := p.Provider.Load(ctx, key)
	span.SetAttributes(attribute.Int("storage.size", len(data)))
	EndStorageSpan(span, result)
	return data, result
}

func (p *Provider) Delete(ctx context.Context, key string) storage.Result {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "delete", key)
	result := p.Provider.Delete(ctx, key)
	EndStorageSpan(span, result)
	return result
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, storage.Result) {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "exists", key)
	exists, result := p.Provider.Exists(ctx, key)
	span.SetAttributes(attribute.Bool("storage.exists", exists))
	EndStorageSpan(span, result)
	return exists, result
}

func (p *Provider) ListKeys(ctx context.Context) ([]string, storage.Result) {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "list_keys", "")
	keys, result := p.Provider.ListKeys(ctx)
	span.SetAttributes(attribute.Int("storage.key_count", len(keys)))
	EndStorageSpan(span, result)
	return keys, result
}

func (p *Provider) Clear(ctx context.Context) storage.Result {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "clear", "")
	result := p.Provider.Clear(ctx)
	EndStorageSpan(span, result)
	return result
}

func (p *Provider) Statistics(ctx context.Context) (storage.Statistics, storage.Result) {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "statistics", "")
	stats, result := p.Provider.Statistics(ctx)
	EndStorageSpan(span, result)
	return stats, result
}

func (p *Provider) Dispose(ctx context.Context) storage.Result {
	ctx, span := p.ts.InstrumentStorageOperation(ctx, p.Kind(), "dispose", "")
	result := p.Provider.Dispose(ctx)
	EndStorageSpan(span, result)
	return result
}
