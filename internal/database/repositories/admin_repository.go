package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

const adminColumns = `id, username, password, name, role, permissions, email, phone, created_at, updated_at`

type AdminRepository struct {
	conn
}

func NewAdminRepository(store *database.Store) *AdminRepository {
	return &AdminRepository{conn: newConn(store)}
}

// WithTx returns a copy of the repository bound to tx
func (r *AdminRepository) WithTx(tx *sql.Tx) *AdminRepository {
	return &AdminRepository{conn: r.withTx(tx)}
}

func scanAdmin(row rowScanner) (*database.Admin, error) {
	var a database.Admin
	err := row.Scan(&a.ID, &a.Username, &a.Password, &a.Name, &a.Role, &a.Permissions,
		&a.Email, &a.Phone, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	a.CreatedAt = utc(a.CreatedAt)
	a.UpdatedAt = utc(a.UpdatedAt)
	return &a, nil
}

// Get retrieves an admin by id
func (r *AdminRepository) Get(ctx context.Context, id int64) (*database.Admin, error) {
	return scanAdmin(r.queryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = ?`, id))
}

// GetByUsername looks an admin up by exact username
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*database.Admin, error) {
	return scanAdmin(r.queryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE username = ?`, username))
}

// GetByRole returns every admin with the given role
func (r *AdminRepository) GetByRole(ctx context.Context, role string) ([]*database.Admin, error) {
	return r.list(ctx, `SELECT `+adminColumns+` FROM admins WHERE role = ? ORDER BY id`, role)
}

// All returns every admin ordered by id
func (r *AdminRepository) All(ctx context.Context) ([]*database.Admin, error) {
	return r.list(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY id`)
}

func (r *AdminRepository) list(ctx context.Context, query string, args ...interface{}) ([]*database.Admin, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []*database.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, database.Translate(rows.Err())
}

// NextID returns one past the highest admin id in use
func (r *AdminRepository) NextID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := r.queryRow(ctx, `SELECT MAX(id) FROM admins`).Scan(&max); err != nil {
		return 0, database.Translate(err)
	}
	return max.Int64 + 1, nil
}

func (r *AdminRepository) insert(ctx context.Context, a *database.Admin, upsert bool) error {
	if err := a.Validate(); err != nil {
		return err
	}
	stamp(&a.CreatedAt, &a.UpdatedAt)

	query := `
        INSERT INTO admins (` + adminColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if upsert {
		query += `
        ON CONFLICT (id) DO UPDATE SET
            username = excluded.username,
            password = excluded.password,
            name = excluded.name,
            role = excluded.role,
            permissions = excluded.permissions,
            email = excluded.email,
            phone = excluded.phone,
            updated_at = excluded.updated_at`
	}

	_, err := r.exec(ctx, query, a.ID, a.Username, a.Password, a.Name, a.Role, a.Permissions,
		a.Email, a.Phone, utc(a.CreatedAt), utc(a.UpdatedAt))
	return err
}

// Add inserts a new admin; username and id must be unused
func (r *AdminRepository) Add(ctx context.Context, a *database.Admin) error {
	if err := r.insert(ctx, a, false); err != nil {
		return fmt.Errorf("add admin %s: %w", a.Username, err)
	}
	return nil
}

// Put inserts or replaces an admin
func (r *AdminRepository) Put(ctx context.Context, a *database.Admin) error {
	if err := r.insert(ctx, a, true); err != nil {
		return fmt.Errorf("put admin %s: %w", a.Username, err)
	}
	return nil
}

// Delete removes an admin
func (r *AdminRepository) Delete(ctx context.Context, id int64) error {
	if err := r.deleteByID(ctx, database.AdminsTable, id); err != nil {
		return fmt.Errorf("admin %d: %w", id, err)
	}
	return nil
}

// Clear removes every admin
func (r *AdminRepository) Clear(ctx context.Context) error {
	return r.clear(ctx, database.AdminsTable)
}

// Count returns the number of admins
func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, database.AdminsTable)
}
