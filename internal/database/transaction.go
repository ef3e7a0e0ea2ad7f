package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"persistence-engine/internal/logging"
)

// Transaction is bound to its Provider's connection. Commit and Rollback are
// terminal; every later call returns ErrTxDone.
//
//	tx, err := db.BeginTransaction(ctx)
//	if err != nil { ... }
//	defer tx.Close()
//	...
//	return tx.Commit()
type Transaction struct {
	mu      sync.Mutex
	tx      *sql.Tx
	sink    logging.Sink
	dialect Dialect
	release func()
	done    bool
}

func (t *Transaction) Dialect() Dialect { return t.dialect }

func (t *Transaction) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0, ErrTxDone
	}
	return execute(ctx, t.sink, t.tx, query, args)
}

// Query returns rows that must be closed before Commit or Rollback.
func (t *Transaction) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, ErrTxDone
	}
	rows, err := runQuery(ctx, t.sink, t.tx, query, args)
	if err != nil {
		return nil, err
	}
	return newRows(rows, nil), nil
}

func (t *Transaction) InsertRow(ctx context.Context, table string, columns []string, row RowValuer) (int64, error) {
	stmt, args, err := insertSQL(t.dialect, table, columns, row)
	if err != nil {
		return 0, err
	}
	return t.Execute(ctx, stmt, args...)
}

func (t *Transaction) Commit() error {
	return t.finish("commit", (*sql.Tx).Commit)
}

func (t *Transaction) Rollback() error {
	return t.finish("rollback", (*sql.Tx).Rollback)
}

// Close rolls back unless the transaction already ended.
func (t *Transaction) Close() error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return nil
	}
	return t.Rollback()
}

func (t *Transaction) finish(op string, fn func(*sql.Tx) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.release()

	if err := fn(t.tx); err != nil {
		return fmt.Errorf("%s transaction: %w", op, err)
	}
	return nil
}
