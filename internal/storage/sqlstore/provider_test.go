package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persistence-engine/internal/config"
	"persistence-engine/internal/database"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/storage"
	"persistence-engine/internal/testutil"
)

type character struct {
	Name  string         `json:"name"`
	Level int            `json:"level"`
	Stats map[string]int `json:"stats"`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.Data = t.TempDir()
	return cfg
}

func newSQLite(t *testing.T, dialect database.Dialect) *database.Provider {
	t.Helper()
	db := database.New(dialect, filepath.Join(t.TempDir(), "store.db"))
	t.Cleanup(func() { db.Close() })
	return db
}

func initialized(t *testing.T, cfg *config.Config, opts ...Option) *Provider {
	t.Helper()
	p := NewProvider(logging.Nop(), opts...)
	require.Equal(t, storage.Success, p.Initialize(context.Background(), cfg))
	t.Cleanup(func() { p.Dispose(context.Background()) })
	return p
}

func TestCreatesTableLazily(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t, database.SQLite{})
	require.NoError(t, db.Open(ctx))

	exists, err := db.TableExists(ctx, "persistence_data")
	require.NoError(t, err)
	require.False(t, exists)

	initialized(t, testConfig(t), WithDatabase(db))

	exists, err = db.TableExists(ctx, "persistence_data")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestScenarioUpsertKeepsOneRow(t *testing.T) {
	for _, dialect := range []database.Dialect{database.SQLite{}, database.SQLiteReplace{}} {
		t.Run(dialect.Name(), func(t *testing.T) {
			ctx := context.Background()
			db := newSQLite(t, dialect)
			p := initialized(t, testConfig(t), WithDatabase(db))

			require.Equal(t, storage.Success, storage.SaveValue(ctx, p, nil, "x", 1))
			require.Equal(t, storage.Success, storage.SaveValue(ctx, p, nil, "x", 2))

			got, r := storage.LoadValue[int](ctx, p, nil, "x")
			require.Equal(t, storage.Success, r)
			assert.Equal(t, 2, got)

			rows, err := db.QueryInt(ctx, `SELECT COUNT(*) FROM persistence_data WHERE "key" = ?`, "x")
			require.NoError(t, err)
			assert.Equal(t, 1, rows)
		})
	}
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t, database.SQLite{})
	p := initialized(t, testConfig(t), WithDatabase(db))

	require.Equal(t, storage.Success, p.Save(ctx, "slot", []byte("a")))
	first, err := db.QueryString(ctx, `SELECT created_at FROM persistence_data WHERE "key" = ?`, "slot")
	require.NoError(t, err)

	require.Equal(t, storage.Success, p.Save(ctx, "slot", []byte("b")))
	second, err := db.QueryString(ctx, `SELECT created_at FROM persistence_data WHERE "key" = ?`, "slot")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRoundTripTypedValues(t *testing.T) {
	ctx := context.Background()
	p := initialized(t, testConfig(t))

	hero := character{Name: "Ilsa", Level: 12, Stats: map[string]int{"str": 14, "dex": 17}}
	require.Equal(t, storage.Success, storage.SaveValue(ctx, p, nil, "hero", hero))
	got, r := storage.LoadValue[character](ctx, p, nil, "hero")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, hero, got)

	require.Equal(t, storage.Success, storage.SaveValue(ctx, p, nil, "ratio", 0.75))
	ratio, r := storage.LoadValue[float64](ctx, p, nil, "ratio")
	require.Equal(t, storage.Success, r)
	assert.InDelta(t, 0.75, ratio, 1e-12)

	require.Equal(t, storage.Success, p.Save(ctx, "empty", nil))
	data, r := p.Load(ctx, "empty")
	require.Equal(t, storage.Success, r)
	assert.Empty(t, data)
}

func TestKeyOperations(t *testing.T) {
	ctx := context.Background()
	p := initialized(t, testConfig(t))

	_, r := p.Load(ctx, "missing")
	assert.Equal(t, storage.NotFound, r)
	assert.Equal(t, storage.NotFound, p.Delete(ctx, "missing"))
	assert.Equal(t, storage.InvalidData, p.Save(ctx, "", []byte("x")))

	for _, key := range []string{"c", "a", "b"} {
		require.Equal(t, storage.Success, p.Save(ctx, key, []byte(key)))
	}
	keys, r := p.ListKeys(ctx)
	require.Equal(t, storage.Success, r)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.Equal(t, storage.Success, p.Delete(ctx, "b"))
	exists, r := p.Exists(ctx, "b")
	require.Equal(t, storage.Success, r)
	assert.False(t, exists)

	require.Equal(t, storage.Success, p.Clear(ctx))
	keys, _ = p.ListKeys(ctx)
	assert.Empty(t, keys)
}

func TestKeyPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t, database.SQLite{})

	cfgA := testConfig(t)
	cfgA.Storage.KeyPrefix = "a:"
	cfgB := cfgA.Clone()
	cfgB.Storage.KeyPrefix = "b:"

	a := initialized(t, cfgA, WithDatabase(db))
	b := initialized(t, cfgB, WithDatabase(db))

	require.Equal(t, storage.Success, a.Save(ctx, "save", []byte("alpha")))
	require.Equal(t, storage.Success, b.Save(ctx, "save", []byte("beta!")))

	keys, _ := a.ListKeys(ctx)
	assert.Equal(t, []string{"save"}, keys)

	require.Equal(t, storage.Success, a.Clear(ctx))
	_, r := a.Load(ctx, "save")
	assert.Equal(t, storage.NotFound, r)

	data, r := b.Load(ctx, "save")
	require.Equal(t, storage.Success, r)
	assert.Equal(t, []byte("beta!"), data)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	p := initialized(t, testConfig(t))

	require.Equal(t, storage.Success, p.Save(ctx, "a", []byte("1234")))
	require.Equal(t, storage.Success, p.Save(ctx, "b", []byte("567890")))

	stats, r := p.Statistics(ctx)
	require.Equal(t, storage.Success, r)
	assert.Equal(t, storage.Database, stats.Kind)
	assert.EqualValues(t, 2, stats.ItemCount)
	assert.EqualValues(t, 10, stats.TotalSizeBytes)
	assert.EqualValues(t, -1, stats.AvailableSpaceBytes)
	assert.True(t, stats.Healthy)
	assert.False(t, stats.LastModified.IsZero())
}

func TestStatisticsHonoursKeyPrefix(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t, database.SQLite{})

	cfgA := testConfig(t)
	cfgA.Storage.KeyPrefix = "a_"
	cfgB := cfgA.Clone()
	cfgB.Storage.KeyPrefix = "ab"

	a := initialized(t, cfgA, WithDatabase(db))
	b := initialized(t, cfgB, WithDatabase(db))
	plain := initialized(t, testConfig(t), WithDatabase(db))

	require.Equal(t, storage.Success, a.Save(ctx, "one", []byte("123")))
	require.Equal(t, storage.Success, a.Save(ctx, "two", []byte("45")))
	require.Equal(t, storage.Success, b.Save(ctx, "one", []byte("6789")))

	stats, r := a.Statistics(ctx)
	require.Equal(t, storage.Success, r)
	assert.EqualValues(t, 2, stats.ItemCount)
	assert.EqualValues(t, 5, stats.TotalSizeBytes)

	stats, r = b.Statistics(ctx)
	require.Equal(t, storage.Success, r)
	assert.EqualValues(t, 1, stats.ItemCount)
	assert.EqualValues(t, 4, stats.TotalSizeBytes)

	stats, r = plain.Statistics(ctx)
	require.Equal(t, storage.Success, r)
	assert.EqualValues(t, 3, stats.ItemCount)
	assert.EqualValues(t, 9, stats.TotalSizeBytes)
}

func TestNotInitialized(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(nil)

	_, r := p.Load(ctx, "x")
	assert.Equal(t, storage.NotInitialized, r)
	assert.Equal(t, storage.NotInitialized, p.Save(ctx, "x", nil))
	_, r = p.Statistics(ctx)
	assert.Equal(t, storage.NotInitialized, r)
}

func TestClosedConnectionMapsToNotInitialized(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t, database.SQLite{})
	p := initialized(t, testConfig(t), WithDatabase(db))

	require.NoError(t, db.Close())
	_, r := p.Load(ctx, "x")
	assert.Equal(t, storage.NotInitialized, r)
	assert.Equal(t, storage.NotInitialized, p.Save(ctx, "x", []byte("1")))
}

func TestDisposeClosesOwnedConnection(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	p := NewProvider(nil)
	require.Equal(t, storage.Success, p.Initialize(ctx, cfg))
	require.Equal(t, storage.Success, p.Save(ctx, "kept", []byte("1")))
	require.Equal(t, storage.Success, p.Dispose(ctx))
	require.Equal(t, storage.Success, p.Dispose(ctx))

	_, r := p.Load(ctx, "kept")
	assert.Equal(t, storage.NotInitialized, r)

	assert.Equal(t, storage.NotInitialized, p.Initialize(ctx, cfg), "disposal is terminal")

	reopened := initialized(t, cfg)
	exists, _ := reopened.Exists(ctx, "kept")
	assert.True(t, exists, "data survives a reopen")
}

func TestInjectedConnectionSurvivesDispose(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t, database.SQLite{})
	p := NewProvider(nil, WithDatabase(db))
	require.Equal(t, storage.Success, p.Initialize(ctx, testConfig(t)))
	require.Equal(t, storage.Success, p.Dispose(ctx))
	assert.True(t, db.Connected())
}

func TestInitializeFailsOnBadDialect(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Dialect = "oracle"
	p := NewProvider(nil)
	assert.Equal(t, storage.Failed, p.Initialize(context.Background(), cfg))
}

func TestPrepareUsesDialectPlaceholders(t *testing.T) {
	s := prepare(database.Postgres{}, "persistence_data", "")
	assert.Equal(t, `SELECT "data" FROM "persistence_data" WHERE "key" = $1`, s.load)
	assert.Equal(t, `SELECT COUNT(*), COALESCE(SUM(LENGTH("data")), 0) FROM "persistence_data"`, s.stats)
	assert.Empty(t, s.statsArgs)

	s = prepare(database.MySQL{}, "persistence_data", "é:")
	assert.Equal(t, "SELECT COUNT(*), COALESCE(SUM(LENGTH(`data`)), 0) FROM `persistence_data` WHERE SUBSTR(`key`, 1, 2) = ? AND `key` <> ?", s.stats)
	assert.Equal(t, []any{"é:", "é:"}, s.statsArgs)
	assert.Contains(t, s.upsert, `ON CONFLICT ("key") DO UPDATE SET "data" = EXCLUDED."data", "updated_at" = EXCLUDED."updated_at"`)
}

func TestProviderContract(t *testing.T) {
	for _, dialect := range []database.Dialect{database.SQLite{}, database.SQLiteReplace{}} {
		t.Run(dialect.Name(), func(t *testing.T) {
			testutil.ProviderContract(t, initialized(t, testConfig(t), WithDatabase(newSQLite(t, dialect))))
		})
	}
}
