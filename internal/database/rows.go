package database

import (
	"context"
	"database/sql"
	"sync"
)

// RowScanner is implemented by record types read from query results. scan
// has the semantics of sql.Rows.Scan.
type RowScanner interface {
	ScanRow(scan func(dest ...any) error) error
}

// RowValuer is implemented by record types written with InsertRow; values are
// returned in column order.
type RowValuer interface {
	RowValues() []any
}

// Querier is satisfied by both *Provider and *Transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
}

// Rows releases the connection lock when closed.
type Rows struct {
	*sql.Rows
	once    sync.Once
	release func()
}

func newRows(rows *sql.Rows, release func()) *Rows {
	return &Rows{Rows: rows, release: release}
}

func (r *Rows) Close() error {
	err := r.Rows.Close()
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
	return err
}

// QueryRows maps every result row onto a fresh T.
func QueryRows[T any, PT interface {
	*T
	RowScanner
}](ctx context.Context, q Querier, query string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := PT(&v).ScanRow(rows.Scan); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// QuerySingle maps the first result row. It returns sql.ErrNoRows when the
// result is empty.
func QuerySingle[T any, PT interface {
	*T
	RowScanner
}](ctx context.Context, q Querier, query string, args ...any) (T, error) {
	var v T
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return v, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return v, err
		}
		return v, sql.ErrNoRows
	}
	if err := PT(&v).ScanRow(rows.Scan); err != nil {
		return v, err
	}
	return v, rows.Err()
}

// Single-column fast paths. Each returns sql.ErrNoRows for an empty result.

func (p *Provider) QueryString(ctx context.Context, query string, args ...any) (string, error) {
	var v string
	err := p.queryRow(ctx, query, args, &v)
	return v, err
}

func (p *Provider) QueryInt64(ctx context.Context, query string, args ...any) (int64, error) {
	var v int64
	err := p.queryRow(ctx, query, args, &v)
	return v, err
}

func (p *Provider) QueryInt(ctx context.Context, query string, args ...any) (int, error) {
	v, err := p.QueryInt64(ctx, query, args...)
	return int(v), err
}

func (p *Provider) QueryFloat(ctx context.Context, query string, args ...any) (float64, error) {
	var v float64
	err := p.queryRow(ctx, query, args, &v)
	return v, err
}

func (p *Provider) QueryBool(ctx context.Context, query string, args ...any) (bool, error) {
	var v bool
	err := p.queryRow(ctx, query, args, &v)
	return v, err
}

func (p *Provider) QueryBytes(ctx context.Context, query string, args ...any) ([]byte, error) {
	var v []byte
	err := p.queryRow(ctx, query, args, &v)
	return v, err
}
