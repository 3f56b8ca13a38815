package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
)

const voterColumns = `id, username, name, class, has_voted, vote_candidate_id, vote_time, created_at, updated_at`

type VoterRepository struct {
	conn
}

func NewVoterRepository(store *database.Store) *VoterRepository {
	return &VoterRepository{conn: newConn(store)}
}

// WithTx returns a copy of the repository bound to tx
func (r *VoterRepository) WithTx(tx *sql.Tx) *VoterRepository {
	return &VoterRepository{conn: r.withTx(tx)}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVoter(row rowScanner) (*database.Voter, error) {
	var (
		voter       database.Voter
		candidateID sql.NullInt64
		voteTime    sql.NullTime
	)
	err := row.Scan(
		&voter.ID, &voter.Username, &voter.Name, &voter.Class, &voter.HasVoted,
		&candidateID, &voteTime, &voter.CreatedAt, &voter.UpdatedAt,
	)
	if err != nil {
		return nil, database.Translate(err)
	}
	voter.VoteCandidateID = int64Ptr(candidateID)
	voter.VoteTime = timePtr(voteTime)
	voter.CreatedAt = utc(voter.CreatedAt)
	voter.UpdatedAt = utc(voter.UpdatedAt)
	return &voter, nil
}

func (r *VoterRepository) list(ctx context.Context, query string, args ...interface{}) ([]*database.Voter, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var voters []*database.Voter
	for rows.Next() {
		voter, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		voters = append(voters, voter)
	}
	return voters, database.Translate(rows.Err())
}

// Get retrieves a voter by id
func (r *VoterRepository) Get(ctx context.Context, id int64) (*database.Voter, error) {
	return scanVoter(r.queryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE id = ?`, id))
}

// GetForUpdate reads a voter that the current transaction is about to
// rewrite, locking the row where the backend supports it.
func (r *VoterRepository) GetForUpdate(ctx context.Context, id int64) (*database.Voter, error) {
	return scanVoter(r.queryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE id = ?`+r.d.ForUpdate(), id))
}

// GetByUsername looks a voter up by normalised username
func (r *VoterRepository) GetByUsername(ctx context.Context, username string) (*database.Voter, error) {
	return scanVoter(r.queryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE username = ?`,
		database.NormalizeUsername(username)))
}

// GetByClass returns every voter in a class
func (r *VoterRepository) GetByClass(ctx context.Context, class string) ([]*database.Voter, error) {
	return r.list(ctx, `SELECT `+voterColumns+` FROM voters WHERE class = ? ORDER BY id`, class)
}

// GetByHasVoted filters voters on the has_voted flag
func (r *VoterRepository) GetByHasVoted(ctx context.Context, hasVoted bool) ([]*database.Voter, error) {
	return r.list(ctx, `SELECT `+voterColumns+` FROM voters WHERE has_voted = ? ORDER BY id`, hasVoted)
}

// GetVoted returns voters who have cast a vote
func (r *VoterRepository) GetVoted(ctx context.Context) ([]*database.Voter, error) {
	return r.GetByHasVoted(ctx, true)
}

// GetNotVoted returns voters who have not cast a vote
func (r *VoterRepository) GetNotVoted(ctx context.Context) ([]*database.Voter, error) {
	return r.GetByHasVoted(ctx, false)
}

// All returns every voter ordered by id
func (r *VoterRepository) All(ctx context.Context) ([]*database.Voter, error) {
	return r.list(ctx, `SELECT `+voterColumns+` FROM voters ORDER BY id`)
}

// Add inserts a new voter. It fails with ErrDuplicateKey when the id or
// username is already taken.
func (r *VoterRepository) Add(ctx context.Context, voter *database.Voter) error {
	voter.Username = database.NormalizeUsername(voter.Username)
	if err := voter.Validate(); err != nil {
		return err
	}
	stamp(&voter.CreatedAt, &voter.UpdatedAt)

	_, err := r.exec(ctx, `
        INSERT INTO voters (`+voterColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, voter.ID, voter.Username, voter.Name, voter.Class, voter.HasVoted,
		nullableInt(voter.VoteCandidateID), nullableTime(voter.VoteTime),
		utc(voter.CreatedAt), utc(voter.UpdatedAt))
	if err != nil {
		return fmt.Errorf("add voter %d: %w", voter.ID, err)
	}
	return nil
}

// Put inserts or replaces a voter
func (r *VoterRepository) Put(ctx context.Context, voter *database.Voter) error {
	voter.Username = database.NormalizeUsername(voter.Username)
	if err := voter.Validate(); err != nil {
		return err
	}
	stamp(&voter.CreatedAt, &voter.UpdatedAt)

	_, err := r.exec(ctx, `
        INSERT INTO voters (`+voterColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            username = excluded.username,
            name = excluded.name,
            class = excluded.class,
            has_voted = excluded.has_voted,
            vote_candidate_id = excluded.vote_candidate_id,
            vote_time = excluded.vote_time,
            updated_at = excluded.updated_at
    `, voter.ID, voter.Username, voter.Name, voter.Class, voter.HasVoted,
		nullableInt(voter.VoteCandidateID), nullableTime(voter.VoteTime),
		utc(voter.CreatedAt), utc(voter.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put voter %d: %w", voter.ID, err)
	}
	return nil
}

// VoterPatch holds the fields an administrator may edit. Nil fields are left
// unchanged. Vote fields are only touched when ClearVote is set.
type VoterPatch struct {
	Username  *string
	Name      *string
	Class     *string
	ClearVote bool
}

// Update applies an administrative edit and returns the stored voter
func (r *VoterRepository) Update(ctx context.Context, id int64, patch VoterPatch) (*database.Voter, error) {
	voter, err := r.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Username != nil {
		voter.Username = *patch.Username
	}
	if patch.Name != nil {
		voter.Name = *patch.Name
	}
	if patch.Class != nil {
		voter.Class = *patch.Class
	}
	if patch.ClearVote {
		voter.ClearVote()
	}
	if err := r.Put(ctx, voter); err != nil {
		return nil, err
	}
	return voter, nil
}

// ClearAllVotes returns every voter to the not-voted state
func (r *VoterRepository) ClearAllVotes(ctx context.Context) (int64, error) {
	res, err := r.exec(ctx, `
        UPDATE voters
        SET has_voted = ?, vote_candidate_id = NULL, vote_time = NULL, updated_at = ?
        WHERE has_voted = ? OR vote_candidate_id IS NOT NULL OR vote_time IS NOT NULL
    `, false, utc(timeNow()), true)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes a voter
func (r *VoterRepository) Delete(ctx context.Context, id int64) error {
	if err := r.deleteByID(ctx, database.VotersTable, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("voter %d: %w", id, err)
		}
		return err
	}
	return nil
}

// Clear removes every voter
func (r *VoterRepository) Clear(ctx context.Context) error {
	return r.clear(ctx, database.VotersTable)
}

// Count returns the number of voters
func (r *VoterRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, database.VotersTable)
}

// CountVoted returns the number of voters with has_voted set
func (r *VoterRepository) CountVoted(ctx context.Context) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM voters WHERE has_voted = ?`, true).Scan(&n); err != nil {
		return 0, database.Translate(err)
	}
	return n, nil
}
