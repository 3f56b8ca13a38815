package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is bumped whenever Collections changes shape
const SchemaVersion = 1

const metaTable = "schema_meta"

// ColumnKind is a backend-neutral column type
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInt
	KindBool
	KindTime
	KindJSON
	KindKey
	KindAutoKey
)

// Column describes one field of a collection
type Column struct {
	Name     string
	Kind     ColumnKind
	Nullable bool
	Default  string
}

// Index describes a secondary index on a collection
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Collection is a named set of records with a primary key and indexes
type Collection struct {
	Name    string
	Columns []Column
	Indexes []Index
}

// Collection names
const (
	VotersTable     = "voters"
	CandidatesTable = "candidates"
	VotesTable      = "votes"
	AdminsTable     = "admins"
	AuditLogsTable  = "audit_logs"
)

// Collections is the declarative schema of the election database
var Collections = []Collection{
	{
		Name: VotersTable,
		Columns: []Column{
			{Name: "id", Kind: KindKey},
			{Name: "username", Kind: KindText},
			{Name: "name", Kind: KindText},
			{Name: "class", Kind: KindText, Default: "''"},
			{Name: "has_voted", Kind: KindBool, Default: "FALSE"},
			{Name: "vote_candidate_id", Kind: KindInt, Nullable: true},
			{Name: "vote_time", Kind: KindTime, Nullable: true},
			{Name: "created_at", Kind: KindTime},
			{Name: "updated_at", Kind: KindTime},
		},
		Indexes: []Index{
			{Name: "idx_voters_username", Columns: []string{"username"}, Unique: true},
			{Name: "idx_voters_class", Columns: []string{"class"}},
			{Name: "idx_voters_has_voted", Columns: []string{"has_voted"}},
			{Name: "idx_voters_vote_time", Columns: []string{"vote_time"}},
		},
	},
	{
		Name: CandidatesTable,
		Columns: []Column{
			{Name: "id", Kind: KindKey},
			{Name: "number", Kind: KindInt},
			{Name: "chairman_name", Kind: KindText},
			{Name: "vice_chairman_name", Kind: KindText, Default: "''"},
			{Name: "chairman_class", Kind: KindText, Default: "''"},
			{Name: "motto", Kind: KindText, Default: "''"},
			{Name: "vision", Kind: KindText, Default: "''"},
			{Name: "mission", Kind: KindJSON, Default: "'[]'"},
			{Name: "tags", Kind: KindJSON, Default: "'[]'"},
			{Name: "image_chairman", Kind: KindText, Default: "''"},
			{Name: "image_vice_chairman", Kind: KindText, Default: "''"},
			{Name: "votes", Kind: KindInt, Default: "0"},
			{Name: "created_at", Kind: KindTime},
			{Name: "updated_at", Kind: KindTime},
		},
		Indexes: []Index{
			{Name: "idx_candidates_number", Columns: []string{"number"}, Unique: true},
			{Name: "idx_candidates_votes", Columns: []string{"votes"}},
			{Name: "idx_candidates_chairman_name", Columns: []string{"chairman_name"}},
		},
	},
	{
		Name: VotesTable,
		Columns: []Column{
			{Name: "id", Kind: KindAutoKey},
			{Name: "voter_id", Kind: KindInt},
			{Name: "candidate_id", Kind: KindInt},
			{Name: "timestamp", Kind: KindTime},
			{Name: "voter_name", Kind: KindText, Default: "''"},
			{Name: "candidate_name", Kind: KindText, Default: "''"},
			{Name: "candidate_number", Kind: KindInt, Default: "0"},
			{Name: "voter_class", Kind: KindText, Default: "''"},
		},
		Indexes: []Index{
			{Name: "idx_votes_voter_id", Columns: []string{"voter_id"}, Unique: true},
			{Name: "idx_votes_candidate_id", Columns: []string{"candidate_id"}},
			{Name: "idx_votes_timestamp", Columns: []string{"timestamp"}},
			{Name: "idx_votes_voter_name", Columns: []string{"voter_name"}},
		},
	},
	{
		Name: AdminsTable,
		Columns: []Column{
			{Name: "id", Kind: KindKey},
			{Name: "username", Kind: KindText},
			{Name: "password", Kind: KindText},
			{Name: "name", Kind: KindText, Default: "''"},
			{Name: "role", Kind: KindText, Default: "'admin'"},
			{Name: "permissions", Kind: KindJSON, Default: "'[]'"},
			{Name: "email", Kind: KindText, Default: "''"},
			{Name: "phone", Kind: KindText, Default: "''"},
			{Name: "created_at", Kind: KindTime},
			{Name: "updated_at", Kind: KindTime},
		},
		Indexes: []Index{
			{Name: "idx_admins_username", Columns: []string{"username"}, Unique: true},
			{Name: "idx_admins_role", Columns: []string{"role"}},
		},
	},
	{
		Name: AuditLogsTable,
		Columns: []Column{
			{Name: "id", Kind: KindAutoKey},
			{Name: "action", Kind: KindText},
			{Name: "user_id", Kind: KindText, Default: "''"},
			{Name: "user_name", Kind: KindText, Default: "''"},
			{Name: "details", Kind: KindText, Default: "''"},
			{Name: "timestamp", Kind: KindTime},
			{Name: "ip_address", Kind: KindText, Default: "''"},
		},
		Indexes: []Index{
			{Name: "idx_audit_action", Columns: []string{"action"}},
			{Name: "idx_audit_timestamp", Columns: []string{"timestamp"}},
			{Name: "idx_audit_user_id", Columns: []string{"user_id"}},
		},
	},
}

// CollectionNames lists the collections in creation order
func CollectionNames() []string {
	names := make([]string, len(Collections))
	for i, c := range Collections {
		names[i] = c.Name
	}
	return names
}

func createTableSQL(d Dialect, c Collection) string {
	cols := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		def := col.Name + " " + d.columnType(col.Kind)
		if col.Kind != KindKey && col.Kind != KindAutoKey {
			if !col.Nullable {
				def += " NOT NULL"
			}
			if col.Default != "" {
				def += " DEFAULT " + col.Default
			}
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", c.Name, strings.Join(cols, ",\n    "))
}

func createIndexSQL(c Collection, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, idx.Name, c.Name, strings.Join(idx.Columns, ", "))
}

// RunMigrations creates every collection and index that does not exist yet
// and records the schema version. Existing data is left untouched, so it is
// safe to run on every start.
func RunMigrations(ctx context.Context, store *Store) error {
	err := store.InTx(ctx, func(tx *sql.Tx) error {
		return Migrate(ctx, tx, store.Dialect())
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}

	store.log.Debug("schema ready", "version", SchemaVersion)
	return nil
}

// Migrate applies the schema inside tx, for callers that rebuild the store
// as part of a larger unit.
func Migrate(ctx context.Context, tx *sql.Tx, d Dialect) error {
	migrations := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)", metaTable),
	}
	for _, c := range Collections {
		migrations = append(migrations, createTableSQL(d, c))
		for _, idx := range c.Indexes {
			migrations = append(migrations, createIndexSQL(c, idx))
		}
	}

	for i, migration := range migrations {
		if _, err := tx.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	_, err := tx.ExecContext(ctx, d.Rebind(fmt.Sprintf(
		`INSERT INTO %s (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, metaTable)),
		"version", strconv.Itoa(SchemaVersion))
	return err
}

// SchemaVersionOf returns the recorded schema version, or 0 when the store
// has never been migrated.
func SchemaVersionOf(ctx context.Context, q Querier, d Dialect) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, d.Rebind(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", metaTable)), "version").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		if tables, lerr := listTables(ctx, q, d); lerr == nil && !contains(tables, metaTable) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(value)
}

// Health summarises the state of the store
type Health struct {
	Healthy       bool           `json:"healthy"`
	SchemaVersion int            `json:"schema_version"`
	Collections   []string       `json:"collections"`
	Missing       []string       `json:"missing,omitempty"`
	Counts        map[string]int `json:"counts"`
	Error         string         `json:"error,omitempty"`
}

// CheckHealth reports whether the store is reachable and every collection
// exists, with a record count per collection. It never fails; problems are
// described in the result.
func CheckHealth(ctx context.Context, store *Store) Health {
	h := Health{Counts: make(map[string]int)}

	if err := store.Ping(ctx); err != nil {
		h.Error = err.Error()
		return h
	}

	d := store.Dialect()
	tables, err := listTables(ctx, store.DB(), d)
	if err != nil {
		h.Error = err.Error()
		return h
	}

	for _, name := range CollectionNames() {
		if !contains(tables, name) {
			h.Missing = append(h.Missing, name)
			continue
		}
		h.Collections = append(h.Collections, name)

		var n int
		if err := store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
			h.Error = fmt.Sprintf("count %s: %v", name, err)
			return h
		}
		h.Counts[name] = n
	}

	if version, err := SchemaVersionOf(ctx, store.DB(), d); err == nil {
		h.SchemaVersion = version
	}

	h.Healthy = len(h.Missing) == 0 && h.SchemaVersion == SchemaVersion
	if !h.Healthy && h.Error == "" {
		h.Error = fmt.Sprintf("schema incomplete: missing %v, version %d", h.Missing, h.SchemaVersion)
	}
	return h
}

func listTables(ctx context.Context, q Querier, d Dialect) ([]string, error) {
	rows, err := q.QueryContext(ctx, d.listTablesQuery())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
