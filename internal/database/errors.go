package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Sentinel errors shared by the store, the repositories and the services
// built on top of them. Callers test for them with errors.Is.
var (
	// ErrNotFound is returned when a keyed lookup matches no record.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned by Add when the primary key or a unique
	// index already holds the value.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrSchema is returned when the store cannot be opened or its
	// collections cannot be created or upgraded.
	ErrSchema = errors.New("schema error")

	// ErrTransactionAborted is returned when an atomic unit failed in the
	// driver, timed out or could not take its lock. None of its writes
	// were applied.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrValidation is returned for malformed records on add or restore.
	ErrValidation = errors.New("validation error")
)

// IsUniqueViolation reports whether err is a primary key or unique index
// violation from either supported driver.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

// isLockFailure reports driver errors that mean the unit never got to run
// to completion: busy/locked databases, serialization failures, deadlines.
func isLockFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrTxDone) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return true
		}
	}

	return false
}

// Translate maps raw driver errors onto the sentinel taxonomy, keeping the
// original error in the chain.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrValidation), errors.Is(err, ErrTransactionAborted):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	case isLockFailure(err):
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	default:
		return err
	}
}
