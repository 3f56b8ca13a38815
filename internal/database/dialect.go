package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repositories can run
// standalone or inside an atomic unit.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	Name       string
	DriverName string
}

var (
	SQLite   = Dialect{Name: "sqlite", DriverName: "sqlite3"}
	Postgres = Dialect{Name: "postgres", DriverName: "postgres"}
)

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate is appended to reads that precede a write of the same row.
// SQLite already holds the database write lock from BEGIN IMMEDIATE.
func (d Dialect) ForUpdate() string {
	if d.Name == Postgres.Name {
		return " FOR UPDATE"
	}
	return ""
}

// LockCollections returns the statement that excludes concurrent writers
// from the named tables for the rest of the transaction, or "" when the
// transaction already holds an exclusive write lock.
func (d Dialect) LockCollections(tables ...string) string {
	if d.Name != Postgres.Name || len(tables) == 0 {
		return ""
	}
	return "LOCK TABLE " + strings.Join(tables, ", ") + " IN SHARE ROW EXCLUSIVE MODE"
}

func (d Dialect) columnType(kind ColumnKind) string {
	pg := d.Name == Postgres.Name
	switch kind {
	case KindKey:
		if pg {
			return "BIGINT PRIMARY KEY"
		}
		return "INTEGER PRIMARY KEY"
	case KindAutoKey:
		if pg {
			return "BIGSERIAL PRIMARY KEY"
		}
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case KindInt:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case KindBool:
		return "BOOLEAN"
	case KindTime:
		if pg {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	case KindJSON, KindText:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d Dialect) listTablesQuery() string {
	if d.Name == Postgres.Name {
		return `SELECT tablename FROM pg_tables WHERE schemaname = current_schema() ORDER BY tablename`
	}
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}
