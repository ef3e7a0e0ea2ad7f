package monitoring

import (
	"context"
	"time"

	"persistence-engine/internal/config"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// Provider counts and times every operation of the wrapped provider.
type Provider struct {
	storage.Provider
	metrics *Metrics
}

var (
	_ storage.Provider           = (*Provider)(nil)
	_ storage.SerializerProvider = (*Provider)(nil)
)

// Instrument returns p unchanged when m is nil.
func Instrument(p storage.Provider, m *Metrics) storage.Provider {
	if m == nil {
		return p
	}
	return &Provider{Provider: p, metrics: m}
}

// Unwrap returns the decorated provider.
func (p *Provider) Unwrap() storage.Provider { return p.Provider }

func (p *Provider) Serializer() serializer.Serializer {
	if sp, ok := p.Provider.(storage.SerializerProvider); ok {
		return sp.Serializer()
	}
	return nil
}

func (p *Provider) observe(operation string, start time.Time, result storage.Result) {
	p.metrics.ObserveOperation(p.Kind(), operation, result, time.Since(start))
}

func (p *Provider) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	start := time.Now()
	result := p.Provider.Initialize(ctx, cfg)
	p.observe("initialize", start, result)
	return result
}

func (p *Provider) Save(ctx context.Context, key string, data []byte) storage.Result {
	start := time.Now()
	result := p.Provider.Save(ctx, key, data)
	p.observe("save", start, result)
	if result.OK() {
		p.metrics.ObserveBytes(p.Kind(), "in", len(data))
	}
	return result
}

func (p *Provider) Load(ctx context.Context, key string) ([]byte, storage.Result) {
	start := time.Now()
	data, result := p.Provider.Load(ctx, key)
	p.observe("load", start, result)
	if result.OK() {
		p.metrics.ObserveBytes(p.Kind(), "out", len(data))
	}
	return data, result
}

func (p *Provider) Delete(ctx context.Context, key string) storage.Result {
	start := time.Now()
	result := p.Provider.Delete(ctx, key)
	p.observe("delete", start, result)
	return result
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, storage.Result) {
	start := time.Now()
	exists, result := p.Provider.Exists(ctx, key)
	p.observe("exists", start, result)
	return exists, result
}

func (p *Provider) ListKeys(ctx context.Context) ([]string, storage.Result) {
	start := time.Now()
	keys, result := p.Provider.ListKeys(ctx)
	p.observe("list_keys", start, result)
	return keys, result
}

func (p *Provider) Clear(ctx context.Context) storage.Result {
	start := time.Now()
	result := p.Provider.Clear(ctx)
	p.observe("clear", start, result)
	return result
}

// Statistics is not counted; the metrics endpoint calls it on every scrape.
func (p *Provider) Statistics(ctx context.Context) (storage.Statistics, storage.Result) {
	return p.Provider.Statistics(ctx)
}

func (p *Provider) Dispose(ctx context.Context) storage.Result {
	start := time.Now()
	result := p.Provider.Dispose(ctx)
	p.observe("dispose", start, result)
	return result
}
