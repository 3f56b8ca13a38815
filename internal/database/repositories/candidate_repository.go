package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

const candidateColumns = `id, number, chairman_name, vice_chairman_name, chairman_class, motto, vision,
        mission, tags, image_chairman, image_vice_chairman, votes, created_at, updated_at`

type CandidateRepository struct {
	conn
}

func NewCandidateRepository(store *database.Store) *CandidateRepository {
	return &CandidateRepository{conn: newConn(store)}
}

// WithTx returns a copy of the repository bound to tx
func (r *CandidateRepository) WithTx(tx *sql.Tx) *CandidateRepository {
	return &CandidateRepository{conn: r.withTx(tx)}
}

func scanCandidate(row rowScanner) (*database.Candidate, error) {
	var c database.Candidate
	err := row.Scan(
		&c.ID, &c.Number, &c.ChairmanName, &c.ViceChairmanName, &c.ChairmanClass, &c.Motto, &c.Vision,
		&c.Mission, &c.Tags, &c.ImageChairman, &c.ImageViceChairman, &c.Votes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, database.Translate(err)
	}
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = utc(c.UpdatedAt)
	return &c, nil
}

// Get retrieves a candidate by id
func (r *CandidateRepository) Get(ctx context.Context, id int64) (*database.Candidate, error) {
	return scanCandidate(r.queryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id))
}

// GetForUpdate reads a candidate whose tally is about to change
func (r *CandidateRepository) GetForUpdate(ctx context.Context, id int64) (*database.Candidate, error) {
	return scanCandidate(r.queryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ?`+r.d.ForUpdate(), id))
}

// GetByNumber looks a candidate up by ballot number
func (r *CandidateRepository) GetByNumber(ctx context.Context, number int) (*database.Candidate, error) {
	return scanCandidate(r.queryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE number = ?`, number))
}

// All returns every candidate in ballot order
func (r *CandidateRepository) All(ctx context.Context) ([]*database.Candidate, error) {
	rows, err := r.query(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY number, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*database.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, database.Translate(rows.Err())
}

func (r *CandidateRepository) insert(ctx context.Context, c *database.Candidate, upsert bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	stamp(&c.CreatedAt, &c.UpdatedAt)

	query := `
        INSERT INTO candidates (` + candidateColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if upsert {
		query += `
        ON CONFLICT (id) DO UPDATE SET
            number = excluded.number,
            chairman_name = excluded.chairman_name,
            vice_chairman_name = excluded.vice_chairman_name,
            chairman_class = excluded.chairman_class,
            motto = excluded.motto,
            vision = excluded.vision,
            mission = excluded.mission,
            tags = excluded.tags,
            image_chairman = excluded.image_chairman,
            image_vice_chairman = excluded.image_vice_chairman,
            votes = excluded.votes,
            updated_at = excluded.updated_at`
	}

	_, err := r.exec(ctx, query,
		c.ID, c.Number, c.ChairmanName, c.ViceChairmanName, c.ChairmanClass, c.Motto, c.Vision,
		c.Mission, c.Tags, c.ImageChairman, c.ImageViceChairman, c.Votes, utc(c.CreatedAt), utc(c.UpdatedAt))
	return err
}

// Add inserts a candidate record as given. Restores rely on the tally being
// kept; use Register for a brand new candidate.
func (r *CandidateRepository) Add(ctx context.Context, c *database.Candidate) error {
	if err := r.insert(ctx, c, false); err != nil {
		return fmt.Errorf("add candidate %d: %w", c.ID, err)
	}
	return nil
}

// Register adds a new candidate with an empty tally
func (r *CandidateRepository) Register(ctx context.Context, c *database.Candidate) error {
	c.Votes = 0
	return r.Add(ctx, c)
}

// Put inserts or replaces a candidate
func (r *CandidateRepository) Put(ctx context.Context, c *database.Candidate) error {
	if err := r.insert(ctx, c, true); err != nil {
		return fmt.Errorf("put candidate %d: %w", c.ID, err)
	}
	return nil
}

// Update replaces a candidate's profile fields while keeping its tally
func (r *CandidateRepository) Update(ctx context.Context, c *database.Candidate) error {
	current, err := r.GetForUpdate(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Votes = current.Votes
	c.CreatedAt = current.CreatedAt
	return r.Put(ctx, c)
}

// ResetTallies sets every candidate's vote count to zero
func (r *CandidateRepository) ResetTallies(ctx context.Context) error {
	_, err := r.exec(ctx, `UPDATE candidates SET votes = 0, updated_at = ?`, utc(timeNow()))
	return err
}

// Delete removes a candidate
func (r *CandidateRepository) Delete(ctx context.Context, id int64) error {
	if err := r.deleteByID(ctx, database.CandidatesTable, id); err != nil {
		return fmt.Errorf("candidate %d: %w", id, err)
	}
	return nil
}

// Clear removes every candidate
func (r *CandidateRepository) Clear(ctx context.Context) error {
	return r.clear(ctx, database.CandidatesTable)
}

// Count returns the number of candidates
func (r *CandidateRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, database.CandidatesTable)
}
