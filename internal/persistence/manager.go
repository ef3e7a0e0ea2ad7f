// Package persistence is the façade callers use: one Manager routes every
// operation to the provider registered for a storage kind.
package persistence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/monitoring"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
	"persistence-engine/internal/storage/file"
	"persistence-engine/internal/storage/kv"
	"persistence-engine/internal/storage/remote"
	"persistence-engine/internal/storage/sqlstore"
	"persistence-engine/internal/tracing"
)

// Manager owns the provider map. It is built once and shared by handle; the
// map is only populated by Initialize and Register.
type Manager struct {
	initMu sync.Mutex
	ready  atomic.Bool

	mu        sync.RWMutex
	cfg       *config.Config
	providers map[storage.Kind]storage.Provider
	preset    map[storage.Kind]storage.Provider
	registry  *serializer.Registry
	sink      logging.Sink
	tracing   *tracing.TracingService
	metrics   *monitoring.Metrics
}

type Option func(*Manager)

func WithSink(sink logging.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithProvider replaces the built-in provider for kind. It is initialized
// together with the built-ins.
func WithProvider(kind storage.Kind, p storage.Provider) Option {
	return func(m *Manager) { m.preset[kind] = p }
}

func WithRegistry(r *serializer.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithTracing opens a span around every provider operation when ts is
// enabled.
func WithTracing(ts *tracing.TracingService) Option {
	return func(m *Manager) { m.tracing = ts }
}

// WithMetrics counts and times every provider operation.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// wrap applies the cache (when enabled), metrics and tracing wrappers,
// tracing outermost.
func (m *Manager) wrap(cfg *config.Config, p storage.Provider) storage.Provider {
	if cfg.Cache.Enabled {
		p = storage.NewCached(p, cfg.Cache)
	}
	return tracing.Wrap(monitoring.Instrument(p, m.metrics), m.tracing)
}

func New(opts ...Option) *Manager {
	m := &Manager{
		providers: make(map[storage.Kind]storage.Provider),
		preset:    make(map[storage.Kind]storage.Provider),
		sink:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize registers and initializes the built-in providers, plus the
// remote provider when enabled. A provider that fails to initialize is
// logged and left unusable; the others still come up. A nil cfg uses
// defaults. Later calls return Success until Shutdown.
func (m *Manager) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	if m.ready.Load() {
		return storage.Success
	}
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.ready.Load() {
		return storage.Success
	}

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		m.sink.LogException(ctx, slog.LevelError, logging.CategoryPersistence, "Invalid persistence configuration", err)
		return storage.InvalidData
	}
	if m.registry == nil {
		opts, err := serializer.OptionsFromConfig(cfg)
		if err != nil {
			m.sink.LogException(ctx, slog.LevelError, logging.CategoryPersistence, "Invalid serializer options", err)
			return storage.InvalidData
		}
		m.registry = serializer.DefaultRegistry(m.sink, opts)
	}

	providers := m.builtins(cfg)
	kinds := sortedKinds(providers)
	for _, kind := range kinds {
		providers[kind] = m.wrap(cfg, providers[kind])
	}

	// Each provider owns a separate resource, so they come up concurrently.
	results := make([]storage.Result, len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		p := providers[kind]
		g.Go(func() error {
			results[i] = p.Initialize(ctx, cfg)
			if !results[i].OK() {
				m.sink.Log(ctx, slog.LevelError, logging.CategoryPersistence, "Provider failed to initialize",
					"kind", kind.String(),
					"result", results[i].String(),
				)
			}
			return nil
		})
	}
	g.Wait()

	m.mu.Lock()
	m.cfg = cfg
	for kind, p := range providers {
		m.providers[kind] = p
	}
	m.mu.Unlock()
	m.ready.Store(true)

	overall := storage.Aggregate(results...)
	m.sink.Log(ctx, slog.LevelInfo, logging.CategoryPersistence, "Persistence initialized",
		"providers", len(providers),
		"default_kind", cfg.Storage.DefaultKind,
		"result", overall.String(),
	)
	return overall
}

func (m *Manager) builtins(cfg *config.Config) map[storage.Kind]storage.Provider {
	providers := map[storage.Kind]storage.Provider{
		storage.KeyValue:   kv.NewProvider(m.sink, kv.WithRegistry(m.registry)),
		storage.JSONFile:   file.NewJSONProvider(m.sink, ""),
		storage.BinaryFile: file.NewBinaryProvider(m.sink, ""),
		storage.Database:   sqlstore.NewProvider(m.sink),
	}
	if cfg.Remote.Enabled {
		providers[storage.Cloud] = remote.NewProvider(m.sink)
	}
	for kind, p := range m.preset {
		providers[kind] = p
	}
	return providers
}

func innermost(p storage.Provider) storage.Provider {
	for {
		u, ok := p.(interface{ Unwrap() storage.Provider })
		if !ok {
			return p
		}
		p = u.Unwrap()
	}
}

func sortedKinds(providers map[storage.Kind]storage.Provider) []storage.Kind {
	kinds := make([]storage.Kind, 0, len(providers))
	for kind := range providers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Register installs p for kind, replacing any provider already there. After
// Initialize, p is initialized with the current configuration and the
// replaced provider is disposed.
func (m *Manager) Register(ctx context.Context, kind storage.Kind, p storage.Provider) storage.Result {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if !m.ready.Load() {
		m.preset[kind] = p
		return storage.Success
	}

	m.mu.RLock()
	cfg := m.cfg
	old := m.providers[kind]
	m.mu.RUnlock()

	wrapped := m.wrap(cfg, p)
	result := wrapped.Initialize(ctx, cfg)
	m.mu.Lock()
	m.providers[kind] = wrapped
	m.mu.Unlock()

	if old != nil && innermost(old) != p {
		old.Dispose(ctx)
	}
	m.sink.Log(ctx, slog.LevelInfo, logging.CategoryPersistence, "Provider registered",
		"kind", kind.String(),
		"result", result.String(),
	)
	return result
}

// Ready reports whether Initialize has run.
func (m *Manager) Ready() bool { return m.ready.Load() }

// Config returns the active configuration, or nil before Initialize.
func (m *Manager) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Registry() *serializer.Registry { return m.registry }

// Kinds lists the registered kinds in order.
func (m *Manager) Kinds() []storage.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKinds(m.providers)
}

// Provider resolves the provider for the first of kinds, or for the
// configured default kind when none is given.
func (m *Manager) Provider(kinds ...storage.Kind) (storage.Provider, storage.Result) {
	if !m.ready.Load() {
		return nil, storage.NotInitialized
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var kind storage.Kind
	if len(kinds) > 0 {
		kind = kinds[0]
	} else {
		k, err := storage.ParseKind(m.cfg.Storage.DefaultKind)
		if err != nil {
			return nil, storage.UnsupportedStorageType
		}
		kind = k
	}

	p, ok := m.providers[kind]
	if !ok {
		return nil, storage.UnsupportedStorageType
	}
	return p, storage.Success
}

func (m *Manager) SaveBytes(ctx context.Context, key string, data []byte, kinds ...storage.Kind) storage.Result {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return result
	}
	return p.Save(ctx, key, data)
}

func (m *Manager) LoadBytes(ctx context.Context, key string, kinds ...storage.Kind) ([]byte, storage.Result) {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return nil, result
	}
	return p.Load(ctx, key)
}

func (m *Manager) Delete(ctx context.Context, key string, kinds ...storage.Kind) storage.Result {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return result
	}
	return p.Delete(ctx, key)
}

func (m *Manager) Exists(ctx context.Context, key string, kinds ...storage.Kind) (bool, storage.Result) {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return false, result
	}
	return p.Exists(ctx, key)
}

func (m *Manager) ListKeys(ctx context.Context, kinds ...storage.Kind) ([]string, storage.Result) {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return nil, result
	}
	return p.ListKeys(ctx)
}

func (m *Manager) Clear(ctx context.Context, kinds ...storage.Kind) storage.Result {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return result
	}
	return p.Clear(ctx)
}

func (m *Manager) Statistics(ctx context.Context, kinds ...storage.Kind) (storage.Statistics, storage.Result) {
	p, result := m.Provider(kinds...)
	if !result.OK() {
		return storage.Statistics{}, result
	}
	return p.Statistics(ctx)
}

// snapshot copies the provider map for fan-out operations.
func (m *Manager) snapshot() map[storage.Kind]storage.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[storage.Kind]storage.Provider, len(m.providers))
	for kind, p := range m.providers {
		out[kind] = p
	}
	return out
}

// ClearAll clears every registered kind concurrently. The result is Failed
// if any provider failed, else Success.
func (m *Manager) ClearAll(ctx context.Context) storage.Result {
	if !m.ready.Load() {
		return storage.NotInitialized
	}
	providers := m.snapshot()
	kinds := sortedKinds(providers)
	results := make([]storage.Result, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			results[i] = providers[kind].Clear(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return storage.Aggregate(results...)
}

// StatisticsAll collects statistics from every registered kind concurrently.
// Kinds whose provider did not succeed are omitted from the map.
func (m *Manager) StatisticsAll(ctx context.Context) (map[storage.Kind]storage.Statistics, storage.Result) {
	if !m.ready.Load() {
		return nil, storage.NotInitialized
	}
	providers := m.snapshot()
	kinds := sortedKinds(providers)
	stats := make([]storage.Statistics, len(kinds))
	results := make([]storage.Result, len(kinds))

	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			stats[i], results[i] = providers[kind].Statistics(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[storage.Kind]storage.Statistics, len(kinds))
	for i, kind := range kinds {
		if results[i].OK() {
			out[kind] = stats[i]
		}
	}
	return out, storage.Aggregate(results...)
}

// Shutdown disposes every provider. The manager may be initialized again
// afterwards; built-in providers are rebuilt then, while a provider passed
// with WithProvider stays disposed and its kind answers NotInitialized.
func (m *Manager) Shutdown(ctx context.Context) storage.Result {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if !m.ready.Load() {
		return storage.Success
	}

	providers := m.snapshot()
	results := make([]storage.Result, 0, len(providers))
	for _, kind := range sortedKinds(providers) {
		results = append(results, providers[kind].Dispose(ctx))
	}

	m.mu.Lock()
	m.providers = make(map[storage.Kind]storage.Provider)
	m.mu.Unlock()
	m.ready.Store(false)
	m.registry.Reset()

	m.sink.Log(ctx, slog.LevelInfo, logging.CategoryPersistence, "Persistence shut down")
	return storage.Aggregate(results...)
}
