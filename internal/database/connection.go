package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store is an open handle on the election database. It is created with Open
// and must be closed by its owner.
type Store struct {
	db      *sql.DB
	reader  *sql.DB
	dialect Dialect
	cfg     config.DatabaseConfig
	log     *logger.Logger
}

// Open creates a new database connection based on configuration. It does not
// create collections; call RunMigrations for that.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}

	var dialect Dialect
	switch cfg.Type {
	case "postgres":
		dialect = Postgres
	case "sqlite", "":
		cfg.Type = "sqlite"
		dialect = SQLite
	default:
		return nil, fmt.Errorf("%w: unsupported database type: %s", ErrSchema, cfg.Type)
	}

	db, err := sql.Open(dialect.DriverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrSchema, err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrSchema, err)
	}

	// Set connection pool settings
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	reader, err := openReader(db, dialect, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		reader:  reader,
		dialect: dialect,
		cfg:     cfg,
		log:     log.WithComponent("store"),
	}, nil
}

// openReader returns the pool used by ReadTx. PostgreSQL honours READ ONLY
// transactions on the main pool; SQLite needs its own pool because the lock
// mode is fixed per connection string.
func openReader(db *sql.DB, dialect Dialect, cfg config.DatabaseConfig) (*sql.DB, error) {
	if dialect != SQLite || inMemory(cfg.Path) {
		return db, nil
	}
	reader, err := sql.Open(dialect.DriverName, cfg.ReadDSN())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open read pool: %w", ErrSchema, err)
	}
	if cfg.MaxOpenConns > 0 {
		reader.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	reader.SetConnMaxLifetime(cfg.MaxLifetime)
	return reader, nil
}

func inMemory(path string) bool {
	return path == "" || strings.HasPrefix(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the backend
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Config returns the configuration the store was opened with
func (s *Store) Config() config.DatabaseConfig {
	return s.cfg
}

// Ping verifies the connection is still usable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool
func (s *Store) Close() error {
	if s.reader != nil && s.reader != s.db {
		_ = s.reader.Close()
	}
	return s.db.Close()
}

// InTx runs fn as one atomic unit. The transaction commits when fn returns
// nil and rolls back otherwise. Errors outside the sentinel taxonomy are
// reported as ErrTransactionAborted.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrTransactionAborted, err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Warning("rollback failed", "error", rbErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrTransactionAborted, err)
	}
	committed = true
	return nil
}

// ReadTx runs fn in a read-only transaction that sees one consistent
// snapshot. It never takes the write lock, so vote casting proceeds while
// it runs. Any write attempted by fn fails.
func (s *Store) ReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: begin read: %w", ErrTransactionAborted, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	return nil
}

// classify keeps taxonomy errors as they are and folds everything else into
// ErrTransactionAborted.
func classify(err error) error {
	err = Translate(err)
	for _, sentinel := range []error{ErrNotFound, ErrDuplicateKey, ErrValidation, ErrTransactionAborted, ErrSchema} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
}

// Savepoint runs fn inside a nested savepoint of tx. When fn fails only its
// own writes are undone and the enclosing transaction stays usable.
func Savepoint(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return Translate(err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, Translate(rbErr))
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return Translate(err)
}

// Destroy drops every collection, leaving an empty database. This is the
// equivalent of deleting the whole store before a restore or repair.
func (s *Store) Destroy(ctx context.Context) error {
	return s.InTx(ctx, func(tx *sql.Tx) error {
		return DropCollections(ctx, tx)
	})
}

// DropCollections drops every collection inside tx
func DropCollections(ctx context.Context, tx *sql.Tx) error {
	for i := len(Collections) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+Collections[i].Name); err != nil {
			return fmt.Errorf("drop %s: %w", Collections[i].Name, err)
		}
	}
	_, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+metaTable)
	return err
}

// RemoveFiles deletes the SQLite database file and its WAL side files. It
// is the last resort when the file is too damaged to open at all.
func RemoveFiles(cfg config.DatabaseConfig) error {
	if cfg.Type != "sqlite" && cfg.Type != "" {
		return nil
	}
	path := cfg.Path
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
