// Package database wraps one database/sql connection behind a small,
// dialect-aware API. A Provider owns exactly one connection and serializes
// every call on it.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
)

var (
	ErrNotConnected   = errors.New("database: not connected")
	ErrTxDone         = errors.New("database: transaction already committed or rolled back")
	ErrUnknownDialect = errors.New("database: unknown dialect")
)

// Provider is not safe for concurrent use on the underlying connection; the
// internal lock serializes callers. A Transaction holds that lock until it
// ends, so the goroutine that began it must not call the Provider directly
// before Commit or Rollback.
type Provider struct {
	mu      sync.Mutex
	dialect Dialect
	dsn     string
	timeout time.Duration
	sink    logging.Sink

	stateMu sync.RWMutex
	db      *sql.DB
}

type Option func(*Provider)

func WithSink(sink logging.Sink) Option {
	return func(p *Provider) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithConnectTimeout bounds the ping performed by Open.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

func New(dialect Dialect, dsn string, opts ...Option) *Provider {
	p := &Provider{
		dialect: dialect,
		dsn:     dsn,
		timeout: 10 * time.Second,
		sink:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig resolves the configured dialect and DSN. SQLite files default
// to <data>/<name>.db.
func NewFromConfig(cfg *config.Config, sink logging.Sink) (*Provider, error) {
	dialect, err := LookupDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DatabaseDSN()
	if dialect.Driver() == "sqlite" {
		dsn = sqliteDSN(dsn)
	}
	return New(dialect, dsn, WithSink(sink), WithConnectTimeout(cfg.Database.ConnectTimeout)), nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (p *Provider) Dialect() Dialect { return p.dialect }

func (p *Provider) Connected() bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.db != nil
}

// Open connects. Calling Open on a connected provider is a no-op.
func (p *Provider) Open(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.db != nil {
		return nil
	}
	if p.dialect == nil {
		return fmt.Errorf("%w: none configured", ErrUnknownDialect)
	}

	if p.dialect.Driver() == "sqlite" {
		if dir := sqliteDir(p.dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open(p.dialect.Driver(), p.dsn)
	if err != nil {
		return fmt.Errorf("open %s database: %w", p.dialect.Name(), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %s database: %w", p.dialect.Name(), err)
	}

	p.db = db
	p.sink.Log(ctx, slog.LevelInfo, logging.CategoryDatabase, "Database connected", "dialect", p.dialect.Name())
	return nil
}

func sqliteDir(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Dir(path)
}

// Close disconnects. Closing twice is a no-op.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.sink.Log(context.Background(), slog.LevelInfo, logging.CategoryDatabase, "Database disconnected", "dialect", p.dialect.Name())
	return err
}

// acquire locks the connection. The returned release must be called exactly once.
func (p *Provider) acquire() (*sql.DB, func(), error) {
	p.mu.Lock()
	p.stateMu.RLock()
	db := p.db
	p.stateMu.RUnlock()
	if db == nil {
		p.mu.Unlock()
		return nil, nil, ErrNotConnected
	}
	return db, p.mu.Unlock, nil
}

// Execute runs a statement and returns the number of affected rows.
func (p *Provider) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	db, release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	return execute(ctx, p.sink, db, query, args)
}

// Query runs a query. The connection stays locked until the rows are closed.
func (p *Provider) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	db, release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	rows, err := runQuery(ctx, p.sink, db, query, args)
	if err != nil {
		release()
		return nil, err
	}
	return newRows(rows, release), nil
}

func (p *Provider) queryRow(ctx context.Context, query string, args []any, dest any) error {
	db, release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()
	return scanRow(ctx, p.sink, db, query, args, dest)
}

// BeginTransaction starts a transaction that owns the connection until it ends.
func (p *Provider) BeginTransaction(ctx context.Context) (*Transaction, error) {
	db, release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Transaction{tx: tx, sink: p.sink, dialect: p.dialect, release: release}, nil
}

func (p *Provider) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := p.QueryInt64(ctx, p.dialect.TableExistsSQL(), table)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Column describes one column of a TableSchema.
type Column struct {
	Name       string
	Kind       ColumnKind
	PrimaryKey bool
	NotNull    bool
}

type TableSchema struct {
	Name    string
	Columns []Column
}

// CreateTableSQL renders schema for d.
func CreateTableSQL(d Dialect, schema TableSchema) (string, error) {
	if schema.Name == "" || len(schema.Columns) == 0 {
		return "", fmt.Errorf("table schema needs a name and at least one column")
	}

	defs := make([]string, 0, len(schema.Columns)+1)
	var keys []string
	for _, col := range schema.Columns {
		def := d.Quote(col.Name) + " " + d.ColumnType(col.Kind)
		if col.NotNull || col.PrimaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		if col.PrimaryKey {
			keys = append(keys, d.Quote(col.Name))
		}
	}
	if len(keys) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(schema.Name), strings.Join(defs, ", ")), nil
}

func (p *Provider) CreateTable(ctx context.Context, schema TableSchema) error {
	stmt, err := CreateTableSQL(p.dialect, schema)
	if err != nil {
		return err
	}
	if _, err := p.Execute(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", schema.Name, err)
	}
	p.sink.Log(ctx, slog.LevelInfo, logging.CategoryDatabase, "Table created", "table", schema.Name, "dialect", p.dialect.Name())
	return nil
}

func (p *Provider) DropTable(ctx context.Context, table string) error {
	if _, err := p.Execute(ctx, "DROP TABLE IF EXISTS "+p.dialect.Quote(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

// InsertRow inserts the values of row into columns.
func (p *Provider) InsertRow(ctx context.Context, table string, columns []string, row RowValuer) (int64, error) {
	stmt, args, err := insertSQL(p.dialect, table, columns, row)
	if err != nil {
		return 0, err
	}
	return p.Execute(ctx, stmt, args...)
}

func insertSQL(d Dialect, table string, columns []string, row RowValuer) (string, []any, error) {
	values := row.RowValues()
	if len(values) != len(columns) {
		return "", nil, fmt.Errorf("row has %d values for %d columns", len(values), len(columns))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), quoteAll(d, columns), placeholders(d, len(columns)))
	return stmt, values, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execute(ctx context.Context, sink logging.Sink, e execer, query string, args []any) (int64, error) {
	start := time.Now()
	res, err := e.ExecContext(ctx, query, args...)
	traceStatement(ctx, sink, query, start, err)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func runQuery(ctx context.Context, sink logging.Sink, e execer, query string, args []any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := e.QueryContext(ctx, query, args...)
	traceStatement(ctx, sink, query, start, err)
	return rows, err
}

func scanRow(ctx context.Context, sink logging.Sink, e execer, query string, args []any, dest any) error {
	start := time.Now()
	err := e.QueryRowContext(ctx, query, args...).Scan(dest)
	if errors.Is(err, sql.ErrNoRows) {
		traceStatement(ctx, sink, query, start, nil)
		return err
	}
	traceStatement(ctx, sink, query, start, err)
	return err
}

func traceStatement(ctx context.Context, sink logging.Sink, statement string, start time.Time, err error) {
	if l, ok := sink.(*logging.Logger); ok {
		l.DatabaseStatement(ctx, statement, time.Since(start), err)
		return
	}
	if err != nil {
		sink.LogException(ctx, slog.LevelError, logging.CategoryDatabase, "Database statement failed", err, "statement", statement)
	}
}
