package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// ManagedKeysEntry is the reserved key, under the configured prefix, holding
// the JSON array of managed keys.
const ManagedKeysEntry = "__managed_keys__"

// Provider is the key-value storage provider. Because backends cannot
// enumerate, it tracks every key it writes in a managed set persisted next to
// the data; ListKeys and Clear only ever consult that set.
type Provider struct {
	life  storage.Lifecycle
	touch storage.Touch
	sink  logging.Sink

	backend  Backend
	injected bool
	registry *serializer.Registry
	ser      serializer.Serializer
	ns       storage.Namespace

	mu   sync.Mutex
	keys map[string]struct{}
}

var (
	_ storage.Provider           = (*Provider)(nil)
	_ storage.SerializerProvider = (*Provider)(nil)
)

type Option func(*Provider)

// WithBackend uses b instead of opening the configured backend.
func WithBackend(b Backend) Option {
	return func(p *Provider) {
		p.backend = b
		p.injected = true
	}
}

// WithRegistry resolves the typed-value serializer from r.
func WithRegistry(r *serializer.Registry) Option {
	return func(p *Provider) { p.registry = r }
}

func NewProvider(sink logging.Sink, opts ...Option) *Provider {
	if sink == nil {
		sink = logging.Nop()
	}
	p := &Provider{sink: sink, keys: make(map[string]struct{})}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() storage.Kind { return storage.KeyValue }

// Serializer returns the configured default-format serializer.
func (p *Provider) Serializer() serializer.Serializer { return p.ser }

func (p *Provider) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return p.life.Initialize(func() storage.Result {
		opts, err := serializer.OptionsFromConfig(cfg)
		if err != nil {
			return p.fail(ctx, "initialize", "", err)
		}
		if p.registry == nil {
			p.registry = serializer.DefaultRegistry(p.sink, opts)
		}
		format, err := serializer.ParseFormat(cfg.Serialization.DefaultFormat)
		if err != nil {
			return p.fail(ctx, "initialize", "", err)
		}
		p.ser = p.registry.Get(format)

		if !p.injected {
			backend, err := OpenBackend(cfg)
			if err != nil {
				return p.fail(ctx, "initialize", "", err)
			}
			p.backend = backend
		}
		p.ns = storage.Namespace(cfg.Storage.KeyPrefix)

		keys, err := p.readIndex(ctx)
		if err != nil {
			if !p.injected {
				_ = p.backend.Close()
				p.backend = nil
			}
			return p.fail(ctx, "initialize", "", err)
		}
		p.mu.Lock()
		p.keys = keys
		p.mu.Unlock()

		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "Key-value provider initialized",
			"backend", p.backend.Name(),
			"managed_keys", len(keys),
			"prefix", cfg.Storage.KeyPrefix,
		)
		return storage.Success
	})
}

func (p *Provider) Save(ctx context.Context, key string, data []byte) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := p.checkKey(key); err != nil {
		return p.fail(ctx, "save", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	start := time.Now()
	if err := p.backend.Set(ctx, p.ns.Apply(key), data); err != nil {
		return p.fail(ctx, "save", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, tracked := p.keys[key]; !tracked {
		p.keys[key] = struct{}{}
		if err := p.writeIndexLocked(ctx); err != nil {
			return p.fail(ctx, "save", key, fmt.Errorf("update managed keys: %w", err))
		}
	}

	p.touch.Modified()
	p.logOperation(ctx, "save", key, start, storage.Success)
	return storage.Success
}

func (p *Provider) Load(ctx context.Context, key string) ([]byte, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()
	if err := p.checkKey(key); err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}

	data, err := p.backend.Get(ctx, p.ns.Apply(key))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, storage.NotFound
	}
	if err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}
	p.touch.Accessed()
	return data, storage.Success
}

func (p *Provider) Delete(ctx context.Context, key string) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := p.checkKey(key); err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	physical := p.ns.Apply(key)
	exists, err := p.backend.Has(ctx, physical)
	if err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	if exists {
		if err := p.backend.Delete(ctx, physical); err != nil {
			return p.fail(ctx, "delete", key, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, tracked := p.keys[key]
	if tracked {
		delete(p.keys, key)
		if err := p.writeIndexLocked(ctx); err != nil {
			return p.fail(ctx, "delete", key, fmt.Errorf("update managed keys: %w", err))
		}
	}
	if !exists && !tracked {
		return storage.NotFound
	}

	p.touch.Modified()
	return storage.Success
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return false, storage.NotInitialized
	}
	defer done()
	if err := p.checkKey(key); err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}

	exists, err := p.backend.Has(ctx, p.ns.Apply(key))
	if err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}
	return exists, storage.Success
}

func (p *Provider) ListKeys(ctx context.Context) ([]string, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedKeysLocked(), storage.Success
}

// Clear deletes every managed key. Keys written by other processes without
// going through a provider are not touched.
func (p *Provider) Clear(ctx context.Context) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var failed int
	for _, key := range p.sortedKeysLocked() {
		if err := p.backend.Delete(ctx, p.ns.Apply(key)); err != nil {
			p.sink.LogException(ctx, slog.LevelError, logging.CategoryStorage, "Failed to clear key", err, "key", key)
			failed++
			continue
		}
		delete(p.keys, key)
	}

	if err := p.writeIndexLocked(ctx); err != nil {
		return p.fail(ctx, "clear", "", fmt.Errorf("update managed keys: %w", err))
	}
	p.touch.Modified()

	if failed > 0 {
		return storage.PartialSuccess
	}
	return storage.Success
}

func (p *Provider) Statistics(ctx context.Context) (storage.Statistics, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return storage.Statistics{}, storage.NotInitialized
	}
	defer done()

	p.mu.Lock()
	keys := p.sortedKeysLocked()
	p.mu.Unlock()

	stats := storage.Statistics{
		Kind:                storage.KeyValue,
		ItemCount:           int64(len(keys)),
		AvailableSpaceBytes: -1,
		Healthy:             true,
	}
	for _, key := range keys {
		size, err := p.backend.Size(ctx, p.ns.Apply(key))
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			stats.Healthy = false
			p.sink.LogException(ctx, slog.LevelWarn, logging.CategoryStorage, "Failed to size key", err, "key", key)
			continue
		}
		stats.TotalSizeBytes += size
	}
	p.touch.Apply(&stats)
	return stats, storage.Success
}

func (p *Provider) Dispose(ctx context.Context) storage.Result {
	return p.life.Dispose(func() storage.Result {
		if p.injected {
			return storage.Success
		}
		if err := p.backend.Close(); err != nil {
			return p.fail(ctx, "dispose", "", err)
		}
		p.backend = nil
		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "Key-value provider disposed")
		return storage.Success
	})
}

func (p *Provider) checkKey(key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if key == ManagedKeysEntry {
		return fmt.Errorf("%w: %s is reserved", storage.ErrInvalidKey, key)
	}
	return nil
}

func (p *Provider) readIndex(ctx context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	raw, err := p.backend.Get(ctx, p.ns.Apply(ManagedKeysEntry))
	if errors.Is(err, ErrKeyNotFound) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read managed keys: %w", err)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: managed keys index: %v", storage.ErrCorrupted, err)
	}
	for _, key := range list {
		keys[key] = struct{}{}
	}
	return keys, nil
}

func (p *Provider) writeIndexLocked(ctx context.Context) error {
	physical := p.ns.Apply(ManagedKeysEntry)
	if len(p.keys) == 0 {
		return p.backend.Delete(ctx, physical)
	}
	raw, err := json.Marshal(p.sortedKeysLocked())
	if err != nil {
		return err
	}
	return p.backend.Set(ctx, physical, raw)
}

func (p *Provider) sortedKeysLocked() []string {
	keys := make([]string, 0, len(p.keys))
	for key := range p.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (p *Provider) fail(ctx context.Context, op, key string, err error) storage.Result {
	result := storage.ResultFromError(err)
	p.sink.LogException(ctx, slog.LevelError, logging.CategoryStorage, "Key-value operation failed", err,
		"operation", op,
		"key", key,
		"result", result.String(),
	)
	return result
}

func (p *Provider) logOperation(ctx context.Context, op, key string, start time.Time, result storage.Result) {
	logging.Operation(ctx, p.sink, storage.KeyValue.String(), op, key, time.Since(start), result.String())
}

// String names the provider and its backend, for diagnostics.
func (p *Provider) String() string {
	var b strings.Builder
	b.WriteString("keyvalue")
	if p.backend != nil {
		b.WriteString("(" + p.backend.Name() + ")")
	}
	return b.String()
}
