package kv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
	"persistence-engine/internal/testutil"
)

type settings struct {
	Volume     int    `json:"volume"`
	Fullscreen bool   `json:"fullscreen"`
	Language   string `json:"language"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.Data = t.TempDir()
	cfg.KeyValue.InMemory = true
	return cfg
}

func newInitialized(t *testing.T, backend Backend, prefix string) *Provider {
	t.Helper()
	cfg := testConfig(t)
	cfg.Storage.KeyPrefix = prefix

	p := NewProvider(logging.Nop(), WithBackend(backend))
	require.Equal(t, storage.Success, p.Initialize(context.Background(), cfg))
	return p
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(nil, WithBackend(NewMemoryBackend()))

	assert.Equal(t, storage.NotInitialized, p.Save(ctx, "k", []byte("v")))
	_, r := p.Load(ctx, "k")
	assert.Equal(t, storage.NotInitialized, r)
	_, r = p.Exists(ctx, "k")
	assert.Equal(t, storage.NotInitialized, r)
	_, r = p.ListKeys(ctx)
	assert.Equal(t, storage.NotInitialized, r)
	assert.Equal(t, storage.NotInitialized, p.Delete(ctx, "k"))
	assert.Equal(t, storage.NotInitialized, p.Clear(ctx))
	_, r = p.Statistics(ctx)
	assert.Equal(t, storage.NotInitialized, r)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	defer p.Dispose(ctx)

	require.Equal(t, storage.Success, p.Save(ctx, "slot", []byte{0x01, 0x02}))
	data, r := p.Load(ctx, "slot")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, []byte{0x01, 0x02}, data)

	_, r = p.Load(ctx, "missing")
	assert.Equal(t, storage.NotFound, r)
}

func TestTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	defer p.Dispose(ctx)

	want := settings{Volume: 7, Fullscreen: true, Language: "en"}
	require.Equal(t, storage.Success, storage.SaveValue(ctx, p, nil, "settings", want))

	got, r := storage.LoadValue[settings](ctx, p, nil, "settings")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, want, got)

	require.Equal(t, storage.Success, storage.SaveValue(ctx, p, nil, "volume", 0.75))
	volume, r := storage.LoadValue[float64](ctx, p, nil, "volume")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, 0.75, volume)
}

func TestKeyManagement(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	defer p.Dispose(ctx)

	require.Equal(t, storage.Success, p.Save(ctx, "a", []byte("1")))
	require.Equal(t, storage.Success, p.Save(ctx, "b", []byte("2")))
	require.Equal(t, storage.Success, p.Save(ctx, "a", []byte("3")))

	keys, r := p.ListKeys(ctx)
	require.Equal(t, storage.Success, r)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.Equal(t, storage.Success, p.Delete(ctx, "a"))

	keys, _ = p.ListKeys(ctx)
	assert.Equal(t, []string{"b"}, keys)
	exists, r := p.Exists(ctx, "a")
	require.Equal(t, storage.Success, r)
	assert.False(t, exists)

	assert.Equal(t, storage.NotFound, p.Delete(ctx, "a"))
}

func TestManagedKeysSurviveRestart(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	p := newInitialized(t, backend, "game_")
	require.Equal(t, storage.Success, p.Save(ctx, "volume", []byte("7")))
	require.Equal(t, storage.Success, p.Save(ctx, "language", []byte(`"en"`)))
	require.Equal(t, storage.Success, p.Dispose(ctx))

	raw, err := backend.Get(ctx, "game_"+ManagedKeysEntry)
	require.NoError(t, err)
	var index []string
	require.NoError(t, json.Unmarshal(raw, &index))
	assert.Equal(t, []string{"language", "volume"}, index)

	p = newInitialized(t, backend, "game_")
	defer p.Dispose(ctx)
	keys, _ := p.ListKeys(ctx)
	assert.Equal(t, []string{"language", "volume"}, keys)

	has, _ := backend.Has(ctx, "game_volume")
	assert.True(t, has, "prefix must be applied to physical keys")
}

func TestClearRemovesOnlyManagedKeys(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(ctx, "foreign", []byte("x")))

	p := newInitialized(t, backend, "")
	defer p.Dispose(ctx)
	require.Equal(t, storage.Success, p.Save(ctx, "a", []byte("1")))
	require.Equal(t, storage.Success, p.Save(ctx, "b", []byte("2")))

	require.Equal(t, storage.Success, p.Clear(ctx))

	keys, _ := p.ListKeys(ctx)
	assert.Empty(t, keys)
	has, _ := backend.Has(ctx, "a")
	assert.False(t, has)
	has, _ = backend.Has(ctx, "foreign")
	assert.True(t, has)
	has, _ = backend.Has(ctx, ManagedKeysEntry)
	assert.False(t, has, "empty index should be removed")
}

func TestReservedAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	defer p.Dispose(ctx)

	assert.Equal(t, storage.InvalidData, p.Save(ctx, ManagedKeysEntry, []byte("[]")))
	assert.Equal(t, storage.InvalidData, p.Save(ctx, "", []byte("x")))
}

func TestCorruptIndexFailsInitialize(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(ctx, ManagedKeysEntry, []byte("{not json")))

	p := NewProvider(nil, WithBackend(backend))
	assert.Equal(t, storage.Corrupted, p.Initialize(ctx, testConfig(t)))
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	defer p.Dispose(ctx)

	require.Equal(t, storage.Success, p.Save(ctx, "a", []byte("123")))
	require.Equal(t, storage.Success, p.Save(ctx, "b", []byte("45")))

	stats, r := p.Statistics(ctx)
	require.Equal(t, storage.Success, r)
	assert.Equal(t, storage.KeyValue, stats.Kind)
	assert.EqualValues(t, 2, stats.ItemCount)
	assert.EqualValues(t, 5, stats.TotalSizeBytes)
	assert.True(t, stats.Healthy)
	assert.False(t, stats.LastModified.IsZero())
}

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	defer p.Dispose(ctx)

	require.Equal(t, storage.Success, p.Save(ctx, "a", []byte("1")))
	assert.Equal(t, storage.Success, p.Initialize(ctx, testConfig(t)))
	keys, _ := p.ListKeys(ctx)
	assert.Equal(t, []string{"a"}, keys)
}

func TestDisposeThenNotInitialized(t *testing.T) {
	ctx := context.Background()
	p := newInitialized(t, NewMemoryBackend(), "")
	require.Equal(t, storage.Success, p.Dispose(ctx))

	_, r := p.Load(ctx, "a")
	assert.Equal(t, storage.NotInitialized, r)
	assert.Equal(t, storage.NotInitialized, p.Initialize(ctx, testConfig(t)))
	assert.Equal(t, storage.NotInitialized, p.Save(ctx, "a", []byte("1")))
}

func TestConfiguredBadgerBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.KeyValue.InMemory = false

	p := NewProvider(logging.Nop())
	require.Equal(t, storage.Success, p.Initialize(ctx, cfg))
	require.Equal(t, storage.Success, p.Save(ctx, "slot", []byte("persisted")))
	require.Equal(t, storage.Success, p.Dispose(ctx))
	assert.Equal(t, "keyvalue", p.String())

	p = NewProvider(logging.Nop())
	require.Equal(t, storage.Success, p.Initialize(ctx, cfg))
	defer p.Dispose(ctx)
	assert.Equal(t, "keyvalue(badger)", p.String())

	data, r := p.Load(ctx, "slot")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, "persisted", string(data))
	keys, _ := p.ListKeys(ctx)
	assert.Equal(t, []string{"slot"}, keys)
}

func TestSerializerFollowsDefaultFormat(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Serialization.DefaultFormat = "cbor"

	p := NewProvider(nil, WithBackend(NewMemoryBackend()))
	require.Equal(t, storage.Success, p.Initialize(ctx, cfg))
	defer p.Dispose(ctx)
	assert.Equal(t, serializer.HighPerfBinaryA, p.Serializer().Format())

	degraded := NewProvider(nil,
		WithBackend(NewMemoryBackend()),
		WithRegistry(serializer.NewRegistry(nil, serializer.Options{})),
	)
	require.Equal(t, storage.Success, degraded.Initialize(ctx, cfg))
	defer degraded.Dispose(ctx)
	assert.Equal(t, serializer.Binary, degraded.Serializer().Format())
}

func TestProviderContract(t *testing.T) {
	for _, prefix := range []string{"", "save_"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			testutil.ProviderContract(t, newInitialized(t, NewMemoryBackend(), prefix))
		})
	}
}
