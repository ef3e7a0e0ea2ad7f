package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ColumnKind is a portable column type, mapped to a native type per dialect.
type ColumnKind int

const (
	KeyText ColumnKind = iota
	Blob
	Timestamp
	Text
	Integer
)

var columnKindNames = [...]string{
	KeyText:   "key-text",
	Blob:      "blob",
	Timestamp: "timestamp",
	Text:      "text",
	Integer:   "integer",
}

func (k ColumnKind) String() string {
	if k >= 0 && int(k) < len(columnKindNames) {
		return columnKindNames[k]
	}
	return fmt.Sprintf("ColumnKind(%d)", int(k))
}

// Dialect holds everything that differs between SQL engines.
type Dialect interface {
	Name() string
	// Driver is the database/sql driver name.
	Driver() string
	ColumnType(kind ColumnKind) string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// UpsertSQL inserts every insert column, or on a key conflict rewrites only
	// the update columns. Arguments bind in insert-column order.
	UpsertSQL(table, key string, insert, update []string) string
	// TableExistsSQL counts tables named by its single argument.
	TableExistsSQL() string
	Quote(ident string) string
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{}
	aliases    = map[string]string{
		"sqlite3":    "sqlite",
		"postgresql": "postgres",
		"pg":         "postgres",
		"mariadb":    "mysql",
	}
)

func init() {
	RegisterDialect(SQLite{})
	RegisterDialect(SQLiteReplace{})
	RegisterDialect(MySQL{})
	RegisterDialect(Postgres{})
}

// RegisterDialect makes d available to LookupDialect, replacing any dialect
// with the same name.
func RegisterDialect(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[strings.ToLower(d.Name())] = d
}

func LookupDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
	return d, nil
}

// Dialects lists registered dialect names in sorted order.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quoteWith(ident string, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

func placeholders(d Dialect, n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = d.Placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}

func quoteAll(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}

// upsertConflict renders INSERT ... ON CONFLICT (key) DO UPDATE, shared by
// SQLite and PostgreSQL.
func upsertConflict(d Dialect, table, key string, insert, update []string, excluded string) string {
	sets := make([]string, len(update))
	for i, col := range update {
		sets[i] = fmt.Sprintf("%s = %s.%s", d.Quote(col), excluded, d.Quote(col))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		d.Quote(table), quoteAll(d, insert), placeholders(d, len(insert)), d.Quote(key), strings.Join(sets, ", "))
}

// SQLite targets modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Name() string   { return "sqlite" }
func (SQLite) Driver() string { return "sqlite" }

func (SQLite) ColumnType(kind ColumnKind) string {
	switch kind {
	case Blob:
		return "BLOB"
	case Timestamp:
		return "DATETIME"
	case Integer:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (SQLite) Placeholder(int) string { return "?" }

func (d SQLite) UpsertSQL(table, key string, insert, update []string) string {
	return upsertConflict(d, table, key, insert, update, "excluded")
}

func (SQLite) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
}

func (SQLite) Quote(ident string) string { return quoteWith(ident, `"`) }

// SQLiteReplace is SQLite with INSERT OR REPLACE upserts. Replacing deletes the
// old row, so columns outside the insert list reset to their defaults.
type SQLiteReplace struct{ SQLite }

func (SQLiteReplace) Name() string { return "sqlite-replace" }

func (d SQLiteReplace) UpsertSQL(table, _ string, insert, _ []string) string {
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		d.Quote(table), quoteAll(d, insert), placeholders(d, len(insert)))
}

// MySQL targets github.com/go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string   { return "mysql" }
func (MySQL) Driver() string { return "mysql" }

func (MySQL) ColumnType(kind ColumnKind) string {
	switch kind {
	case KeyText:
		return "VARCHAR(255)"
	case Blob:
		return "LONGBLOB"
	case Timestamp:
		return "DATETIME(6)"
	case Integer:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func (MySQL) Placeholder(int) string { return "?" }

func (d MySQL) UpsertSQL(table, _ string, insert, update []string) string {
	sets := make([]string, len(update))
	for i, col := range update {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.Quote(col), d.Quote(col))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.Quote(table), quoteAll(d, insert), placeholders(d, len(insert)), strings.Join(sets, ", "))
}

func (MySQL) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

func (MySQL) Quote(ident string) string { return quoteWith(ident, "`") }

// Postgres targets github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string   { return "postgres" }
func (Postgres) Driver() string { return "postgres" }

func (Postgres) ColumnType(kind ColumnKind) string {
	switch kind {
	case Blob:
		return "BYTEA"
	case Timestamp:
		return "TIMESTAMPTZ"
	case Integer:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d Postgres) UpsertSQL(table, key string, insert, update []string) string {
	return upsertConflict(d, table, key, insert, update, "EXCLUDED")
}

func (Postgres) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
}

func (Postgres) Quote(ident string) string { return quoteWith(ident, `"`) }
