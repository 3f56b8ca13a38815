package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

const voteColumns = `id, voter_id, candidate_id, timestamp, voter_name, candidate_name, candidate_number, voter_class`

// VoteRepository reads and appends the vote ledger
type VoteRepository struct {
	conn
}

func NewVoteRepository(store *database.Store) *VoteRepository {
	return &VoteRepository{conn: newConn(store)}
}

// WithTx returns a copy of the repository bound to tx
func (r *VoteRepository) WithTx(tx *sql.Tx) *VoteRepository {
	return &VoteRepository{conn: r.withTx(tx)}
}

func scanVote(row rowScanner) (*database.VoteRecord, error) {
	var v database.VoteRecord
	err := row.Scan(&v.ID, &v.VoterID, &v.CandidateID, &v.Timestamp,
		&v.VoterName, &v.CandidateName, &v.CandidateNumber, &v.VoterClass)
	if err != nil {
		return nil, database.Translate(err)
	}
	v.Timestamp = utc(v.Timestamp)
	return &v, nil
}

func (r *VoteRepository) list(ctx context.Context, query string, args ...interface{}) ([]*database.VoteRecord, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []*database.VoteRecord
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, database.Translate(rows.Err())
}

// Get retrieves a ledger entry by id
func (r *VoteRepository) Get(ctx context.Context, id int64) (*database.VoteRecord, error) {
	return scanVote(r.queryRow(ctx, `SELECT `+voteColumns+` FROM votes WHERE id = ?`, id))
}

// GetByVoterID returns the single ledger entry of a voter
func (r *VoteRepository) GetByVoterID(ctx context.Context, voterID int64) (*database.VoteRecord, error) {
	return scanVote(r.queryRow(ctx, `SELECT `+voteColumns+` FROM votes WHERE voter_id = ?`, voterID))
}

// GetByCandidateID returns every ledger entry for a candidate
func (r *VoteRepository) GetByCandidateID(ctx context.Context, candidateID int64) ([]*database.VoteRecord, error) {
	return r.list(ctx, `SELECT `+voteColumns+` FROM votes WHERE candidate_id = ? ORDER BY id`, candidateID)
}

// All returns the ledger in cast order
func (r *VoteRepository) All(ctx context.Context) ([]*database.VoteRecord, error) {
	return r.list(ctx, `SELECT `+voteColumns+` FROM votes ORDER BY id`)
}

// GetByTimeRange returns entries whose timestamp lies in [start, end]
func (r *VoteRepository) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*database.VoteRecord, error) {
	all, err := r.list(ctx, `SELECT `+voteColumns+` FROM votes ORDER BY timestamp, id`)
	if err != nil {
		return nil, err
	}

	start, end = start.UTC(), end.UTC()
	var out []*database.VoteRecord
	for _, v := range all {
		if within(v.Timestamp, start, end) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Add appends a ledger entry. The id is always assigned by the store and
// written back to v. A second entry for the same voter fails with
// ErrDuplicateKey.
func (r *VoteRepository) Add(ctx context.Context, v *database.VoteRecord) error {
	if err := v.Validate(); err != nil {
		return err
	}
	v.Timestamp = utc(v.Timestamp)

	id, err := r.insertReturningID(ctx, `
        INSERT INTO votes (voter_id, candidate_id, timestamp, voter_name, candidate_name, candidate_number, voter_class)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.VoterID, v.CandidateID, v.Timestamp, v.VoterName, v.CandidateName, v.CandidateNumber, v.VoterClass)
	if err != nil {
		return fmt.Errorf("add vote for voter %d: %w", v.VoterID, err)
	}
	v.ID = id
	return nil
}

// Delete removes a ledger entry
func (r *VoteRepository) Delete(ctx context.Context, id int64) error {
	if err := r.deleteByID(ctx, database.VotesTable, id); err != nil {
		return fmt.Errorf("vote %d: %w", id, err)
	}
	return nil
}

// DeleteByVoterID removes the entry of a voter, reporting whether one existed
func (r *VoteRepository) DeleteByVoterID(ctx context.Context, voterID int64) (bool, error) {
	res, err := r.exec(ctx, `DELETE FROM votes WHERE voter_id = ?`, voterID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear empties the ledger
func (r *VoteRepository) Clear(ctx context.Context) error {
	return r.clear(ctx, database.VotesTable)
}

// Count returns the number of ledger entries
func (r *VoteRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, database.VotesTable)
}

// CountByCandidate returns the ledger size per candidate id
func (r *VoteRepository) CountByCandidate(ctx context.Context) (map[int64]int, error) {
	rows, err := r.query(ctx, `SELECT candidate_id, COUNT(*) FROM votes GROUP BY candidate_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
