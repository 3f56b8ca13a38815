package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

const auditColumns = `id, action, user_id, user_name, details, timestamp, ip_address`

type AuditLogRepository struct {
	conn
}

func NewAuditLogRepository(store *database.Store) *AuditLogRepository {
	return &AuditLogRepository{conn: newConn(store)}
}

// WithTx returns a copy of the repository bound to tx
func (r *AuditLogRepository) WithTx(tx *sql.Tx) *AuditLogRepository {
	return &AuditLogRepository{conn: r.withTx(tx)}
}

func scanAudit(row rowScanner) (*database.AuditEntry, error) {
	var e database.AuditEntry
	if err := row.Scan(&e.ID, &e.Action, &e.UserID, &e.UserName, &e.Details, &e.Timestamp, &e.IPAddress); err != nil {
		return nil, database.Translate(err)
	}
	e.Timestamp = utc(e.Timestamp)
	return &e, nil
}

// Add appends an audit log entry. The id is assigned by the store and the
// timestamp defaults to now.
func (r *AuditLogRepository) Add(ctx context.Context, e *database.AuditEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = timeNow()
	}
	e.Timestamp = utc(e.Timestamp)

	id, err := r.insertReturningID(ctx, `
        INSERT INTO audit_logs (action, user_id, user_name, details, timestamp, ip_address)
        VALUES (?, ?, ?, ?, ?, ?)`,
		e.Action, e.UserID, e.UserName, e.Details, e.Timestamp, e.IPAddress)
	if err != nil {
		return fmt.Errorf("add audit entry %s: %w", e.Action, err)
	}
	e.ID = id
	return nil
}

// Get retrieves an audit entry by id
func (r *AuditLogRepository) Get(ctx context.Context, id int64) (*database.AuditEntry, error) {
	return scanAudit(r.queryRow(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = ?`, id))
}

// AuditFilter narrows Query. Zero values match everything.
type AuditFilter struct {
	Action    database.AuditAction
	UserID    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs newest first with pagination and filtering
func (r *AuditLogRepository) Query(ctx context.Context, f AuditFilter) ([]*database.AuditEntry, error) {
	query := `
        SELECT ` + auditColumns + `
        FROM audit_logs
        WHERE 1=1
    `
	args := []interface{}{}

	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}

	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*database.AuditEntry
	skipped := 0
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		if f.StartTime != nil && e.Timestamp.Before(f.StartTime.UTC()) {
			continue
		}
		if f.EndTime != nil && e.Timestamp.After(f.EndTime.UTC()) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		entries = append(entries, e)
		if f.Limit > 0 && len(entries) == f.Limit {
			break
		}
	}
	return entries, database.Translate(rows.Err())
}

// All returns every entry newest first
func (r *AuditLogRepository) All(ctx context.Context) ([]*database.AuditEntry, error) {
	return r.Query(ctx, AuditFilter{})
}

// GetByAction returns entries tagged with action, newest first
func (r *AuditLogRepository) GetByAction(ctx context.Context, action database.AuditAction) ([]*database.AuditEntry, error) {
	return r.Query(ctx, AuditFilter{Action: action})
}

// Clear removes every audit entry. This is the explicit log-clear.
func (r *AuditLogRepository) Clear(ctx context.Context) error {
	return r.clear(ctx, database.AuditLogsTable)
}

// Count returns the number of audit entries
func (r *AuditLogRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, database.AuditLogsTable)
}
