package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

// conn is the query target shared by every repository. It points either at
// the store's pool or at an open transaction.
type conn struct {
	q database.Querier
	d database.Dialect
}

func newConn(store *database.Store) conn {
	return conn{q: store.DB(), d: store.Dialect()}
}

func (c conn) withTx(tx *sql.Tx) conn {
	return conn{q: tx, d: c.d}
}

func (c conn) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.d.Rebind(query), args...)
	return res, database.Translate(err)
}

func (c conn) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.d.Rebind(query), args...)
	return rows, database.Translate(err)
}

func (c conn) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.Rebind(query), args...)
}

// insertReturningID runs an INSERT ... RETURNING id, supported by both
// SQLite (3.35+) and PostgreSQL.
func (c conn) insertReturningID(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := c.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, database.Translate(err)
	}
	return id, nil
}

func (c conn) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := c.queryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, database.Translate(err)
	}
	return n, nil
}

func (c conn) clear(ctx context.Context, table string) error {
	_, err := c.exec(ctx, "DELETE FROM "+table)
	return err
}

// deleteByID removes one row and reports ErrNotFound when nothing matched
func (c conn) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := c.exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

var timeNow = time.Now

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// stamp fills created_at on first write and always refreshes updated_at
func stamp(created, updated *time.Time) {
	now := timeNow().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// within reports whether t lies in [start, end]
func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
