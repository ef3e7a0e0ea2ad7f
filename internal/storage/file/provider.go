package file

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"persistence-engine/internal/logging"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// codec transforms bytes on their way to and from disk.
type codec interface {
	encode(data []byte) ([]byte, error)
	decode(data []byte) ([]byte, error)
}

// provider holds everything the JSON and binary providers share.
type provider struct {
	kind  storage.Kind
	life  storage.Lifecycle
	touch storage.Touch
	sink  logging.Sink

	store *fileStore
	codec codec
	ns    storage.Namespace
}

func (p *provider) Kind() storage.Kind { return p.kind }

func (p *provider) initialize(ctx context.Context, root, ext, prefix string, c codec) storage.Result {
	store, err := newFileStore(root, ext)
	if err != nil {
		return p.fail(ctx, "initialize", "", err)
	}
	p.store = store
	p.codec = c
	p.ns = storage.Namespace(prefix)

	p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "File provider initialized",
		"kind", p.kind.String(),
		"root", root,
		"extension", ext,
	)
	return storage.Success
}

func (p *provider) Save(ctx context.Context, key string, data []byte) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateFileKey(key); err != nil {
		return p.fail(ctx, "save", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	start := time.Now()
	encoded, err := p.codec.encode(data)
	if err != nil {
		return p.fail(ctx, "save", key, err)
	}
	if err := p.store.write(ctx, p.ns.Apply(key), encoded); err != nil {
		return p.fail(ctx, "save", key, err)
	}

	p.touch.Modified()
	logging.Operation(ctx, p.sink, p.kind.String(), "save", key, time.Since(start), storage.Success.String())
	return storage.Success
}

func (p *provider) Load(ctx context.Context, key string) ([]byte, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateFileKey(key); err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}

	raw, err := p.store.read(ctx, p.ns.Apply(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.NotFound
	}
	if err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}

	data, err := p.codec.decode(raw)
	if err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}
	p.touch.Accessed()
	return data, storage.Success
}

func (p *provider) Delete(ctx context.Context, key string) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateFileKey(key); err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	err := p.store.remove(ctx, p.ns.Apply(key))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.NotFound
	}
	if err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	p.touch.Modified()
	return storage.Success
}

func (p *provider) Exists(ctx context.Context, key string) (bool, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return false, storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateFileKey(key); err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}

	exists, err := p.store.exists(ctx, p.ns.Apply(key))
	if err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}
	return exists, storage.Success
}

func (p *provider) ListKeys(ctx context.Context) ([]string, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()

	entries, err := p.entries(ctx)
	if err != nil {
		return nil, p.fail(ctx, "list", "", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.key)
	}
	sort.Strings(keys)
	return keys, storage.Success
}

func (p *provider) Clear(ctx context.Context) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	entries, err := p.entries(ctx)
	if err != nil {
		return p.fail(ctx, "clear", "", err)
	}

	var failed int
	for _, e := range entries {
		err := p.store.remove(ctx, p.ns.Apply(e.key))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			p.sink.LogException(ctx, slog.LevelError, logging.CategoryStorage, "Failed to remove file", err,
				"kind", p.kind.String(),
				"key", e.key,
			)
			failed++
		}
	}
	p.touch.Modified()

	switch {
	case failed == 0:
		return storage.Success
	case failed == len(entries):
		return storage.Failed
	default:
		return storage.PartialSuccess
	}
}

func (p *provider) Statistics(ctx context.Context) (storage.Statistics, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return storage.Statistics{}, storage.NotInitialized
	}
	defer done()

	stats := storage.Statistics{Kind: p.kind, Healthy: true}
	entries, err := p.entries(ctx)
	if err != nil {
		stats.Healthy = false
		return stats, p.fail(ctx, "statistics", "", err)
	}

	p.touch.Apply(&stats)
	for _, e := range entries {
		stats.ItemCount++
		stats.TotalSizeBytes += e.size
		if e.modTime.After(stats.LastModified) {
			stats.LastModified = e.modTime
		}
	}
	stats.AvailableSpaceBytes = availableSpace(p.store.root)
	return stats, storage.Success
}

func (p *provider) Dispose(ctx context.Context) storage.Result {
	return p.life.Dispose(func() storage.Result {
		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "File provider disposed", "kind", p.kind.String())
		return storage.Success
	})
}

// entries lists files under the configured prefix with the prefix stripped.
func (p *provider) entries(ctx context.Context) ([]entry, error) {
	all, err := p.store.list(ctx)
	if err != nil {
		return nil, err
	}
	if p.ns == "" {
		return all, nil
	}
	filtered := all[:0]
	for _, e := range all {
		if key, ok := p.ns.Strip(e.key); ok && key != "" {
			e.key = key
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (p *provider) fail(ctx context.Context, op, key string, err error) storage.Result {
	result := storage.ResultFromError(err)
	p.sink.LogException(ctx, slog.LevelError, logging.CategoryStorage, "File operation failed", err,
		"kind", p.kind.String(),
		"operation", op,
		"key", key,
		"result", result.String(),
	)
	return result
}

func sinkOrNop(sink logging.Sink) logging.Sink {
	if sink == nil {
		return logging.Nop()
	}
	return sink
}

var (
	_ storage.Provider           = (*JSONProvider)(nil)
	_ storage.Provider           = (*BinaryProvider)(nil)
	_ storage.SerializerProvider = (*JSONProvider)(nil)
	_ storage.SerializerProvider = (*BinaryProvider)(nil)
)

// rootFor prefers an explicit root over the configured data path.
func rootFor(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// plainSerializer is the typed-value codec of providers that do their own
// compression and encryption.
func plainSerializer() serializer.Serializer {
	return serializer.NewBaseline(serializer.Binary, serializer.Options{})
}
