// Package sqlstore implements the database storage provider: one table of
// key, data, created_at and updated_at columns behind a database.Provider.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"persistence-engine/internal/config"
	"persistence-engine/internal/database"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

const (
	colKey     = "key"
	colData    = "data"
	colCreated = "created_at"
	colUpdated = "updated_at"
)

// Schema returns the table layout for name.
func Schema(name string) database.TableSchema {
	return database.TableSchema{
		Name: name,
		Columns: []database.Column{
			{Name: colKey, Kind: database.KeyText, PrimaryKey: true},
			{Name: colData, Kind: database.Blob, NotNull: true},
			{Name: colCreated, Kind: database.Timestamp, NotNull: true},
			{Name: colUpdated, Kind: database.Timestamp, NotNull: true},
		},
	}
}

type statements struct {
	upsert, load, exists, delete, keys, sizes, clear string

	stats     string
	statsArgs []any
}

// prepare builds the statements for table. With a key prefix, the statistics
// query only counts rows under it.
func prepare(d database.Dialect, table, prefix string) statements {
	t := d.Quote(table)
	k := d.Quote(colKey)
	ph := d.Placeholder(1)
	s := statements{
		upsert: d.UpsertSQL(table, colKey,
			[]string{colKey, colData, colCreated, colUpdated},
			[]string{colData, colUpdated}),
		load:   fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", d.Quote(colData), t, k, ph),
		exists: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", t, k, ph),
		delete: fmt.Sprintf("DELETE FROM %s WHERE %s = %s", t, k, ph),
		keys:   fmt.Sprintf("SELECT %s FROM %s", k, t),
		sizes:  fmt.Sprintf("SELECT %s, COALESCE(LENGTH(%s), 0) FROM %s", k, d.Quote(colData), t),
		clear:  fmt.Sprintf("DELETE FROM %s", t),
		stats:  fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(LENGTH(%s)), 0) FROM %s", d.Quote(colData), t),
	}
	if prefix != "" {
		s.stats += fmt.Sprintf(" WHERE SUBSTR(%s, 1, %d) = %s AND %s <> %s",
			k, utf8.RuneCountInString(prefix), d.Placeholder(1), k, d.Placeholder(2))
		s.statsArgs = []any{prefix, prefix}
	}
	return s
}

// Provider is the Database storage kind.
type Provider struct {
	life  storage.Lifecycle
	touch storage.Touch
	sink  logging.Sink

	db    *database.Provider
	owned bool
	table string
	sql   statements
	ser   serializer.Serializer
	ns    storage.Namespace
}

var (
	_ storage.Provider           = (*Provider)(nil)
	_ storage.SerializerProvider = (*Provider)(nil)
)

type Option func(*Provider)

// WithDatabase uses db instead of opening the configured database. The
// provider connects it if needed but never closes it.
func WithDatabase(db *database.Provider) Option {
	return func(p *Provider) { p.db = db }
}

func NewProvider(sink logging.Sink, opts ...Option) *Provider {
	if sink == nil {
		sink = logging.Nop()
	}
	p := &Provider{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() storage.Kind { return storage.Database }

// Serializer is the baseline binary codec used for the data column.
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
		p.ser = serializer.NewBaseline(serializer.Binary, opts)

		if p.db == nil {
			db, err := database.NewFromConfig(cfg, p.sink)
			if err != nil {
				return p.fail(ctx, "initialize", "", err)
			}
			p.db = db
			p.owned = true
		}
		if err := p.db.Open(ctx); err != nil {
			return p.abort(ctx, err)
		}

		p.table = cfg.Database.Table
		exists, err := p.db.TableExists(ctx, p.table)
		if err != nil {
			return p.abort(ctx, err)
		}
		if !exists {
			if err := p.db.CreateTable(ctx, Schema(p.table)); err != nil {
				return p.abort(ctx, err)
			}
		}
		p.sql = prepare(p.db.Dialect(), p.table, cfg.Storage.KeyPrefix)
		p.ns = storage.Namespace(cfg.Storage.KeyPrefix)

		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "Database provider initialized",
			"dialect", p.db.Dialect().Name(),
			"table", p.table,
			"table_created", !exists,
		)
		return storage.Success
	})
}

func (p *Provider) abort(ctx context.Context, err error) storage.Result {
	if p.owned {
		_ = p.db.Close()
		p.db = nil
		p.owned = false
	}
	return p.fail(ctx, "initialize", "", err)
}

func (p *Provider) Save(ctx context.Context, key string, data []byte) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return p.fail(ctx, "save", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	start := time.Now()
	now := time.Now().UTC()
	if data == nil {
		data = []byte{}
	}
	if _, err := p.db.Execute(ctx, p.sql.upsert, p.ns.Apply(key), data, now, now); err != nil {
		return p.fail(ctx, "save", key, err)
	}
	p.touch.Modified()
	logging.Operation(ctx, p.sink, storage.Database.String(), "save", key, time.Since(start), storage.Success.String())
	return storage.Success
}

func (p *Provider) Load(ctx context.Context, key string) ([]byte, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}

	data, err := p.db.QueryBytes(ctx, p.sql.load, p.ns.Apply(key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound
	}
	if err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}
	p.touch.Accessed()
	if data == nil {
		data = []byte{}
	}
	return data, storage.Success
}

func (p *Provider) Delete(ctx context.Context, key string) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	n, err := p.db.Execute(ctx, p.sql.delete, p.ns.Apply(key))
	if err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	if n == 0 {
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
	if err := storage.ValidateKey(key); err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}

	n, err := p.db.QueryInt64(ctx, p.sql.exists, p.ns.Apply(key))
	if err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}
	return n > 0, storage.Success
}

// totals is the single row of the statistics query.
type totals struct {
	count, size int64
}

func (t *totals) ScanRow(scan func(dest ...any) error) error {
	return scan(&t.count, &t.size)
}

// row is one (key, size) pair of the sizes query.
type row struct {
	key  string
	size int64
}

func (r *row) ScanRow(scan func(dest ...any) error) error {
	return scan(&r.key, &r.size)
}

// rows returns the rows under the configured prefix with the prefix stripped.
func (p *Provider) rows(ctx context.Context) ([]row, error) {
	all, err := database.QueryRows[row](ctx, p.db, p.sql.sizes)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if key, ok := p.ns.Strip(r.key); ok && key != "" {
			r.key = key
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *Provider) ListKeys(ctx context.Context) ([]string, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()

	rows, err := p.rows(ctx)
	if err != nil {
		return nil, p.fail(ctx, "list", "", err)
	}
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.key)
	}
	sort.Strings(keys)
	return keys, storage.Success
}

// Clear truncates the table, or with a key prefix deletes the prefixed rows in
// one transaction.
func (p *Provider) Clear(ctx context.Context) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	if p.ns == "" {
		if _, err := p.db.Execute(ctx, p.sql.clear); err != nil {
			return p.fail(ctx, "clear", "", err)
		}
		p.touch.Modified()
		return storage.Success
	}

	rows, err := p.rows(ctx)
	if err != nil {
		return p.fail(ctx, "clear", "", err)
	}
	if err := p.deleteAll(ctx, rows); err != nil {
		return p.fail(ctx, "clear", "", err)
	}
	p.touch.Modified()
	return storage.Success
}

func (p *Provider) deleteAll(ctx context.Context, rows []row) error {
	tx, err := p.db.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Close()

	for _, r := range rows {
		if _, err := tx.Execute(ctx, p.sql.delete, p.ns.Apply(r.key)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Provider) Statistics(ctx context.Context) (storage.Statistics, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return storage.Statistics{}, storage.NotInitialized
	}
	defer done()

	stats := storage.Statistics{Kind: storage.Database, AvailableSpaceBytes: -1, Healthy: true}
	sum, err := database.QuerySingle[totals](ctx, p.db, p.sql.stats, p.sql.statsArgs...)
	if err != nil {
		stats.Healthy = false
		return stats, p.fail(ctx, "statistics", "", err)
	}
	stats.ItemCount = sum.count
	stats.TotalSizeBytes = sum.size
	p.touch.Apply(&stats)
	return stats, storage.Success
}

func (p *Provider) Dispose(ctx context.Context) storage.Result {
	return p.life.Dispose(func() storage.Result {
		if p.owned {
			if err := p.db.Close(); err != nil {
				return p.fail(ctx, "dispose", "", err)
			}
			p.db = nil
			p.owned = false
		}
		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "Database provider disposed", "table", p.table)
		return storage.Success
	})
}

func (p *Provider) fail(ctx context.Context, op, key string, err error) storage.Result {
	result := storage.ResultFromError(err)
	if errors.Is(err, database.ErrNotConnected) {
		result = storage.NotInitialized
	}
	p.sink.LogException(ctx, slog.LevelError, logging.CategoryStorage, "Database operation failed", err,
		"operation", op,
		"key", key,
		"result", result.String(),
	)
	return result
}
