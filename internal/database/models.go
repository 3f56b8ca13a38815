package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AuditAction tags an AuditEntry
type AuditAction string

const (
	ActionVoteCast        AuditAction = "VOTE_CAST"
	ActionResetAllVotes   AuditAction = "RESET_ALL_VOTES"
	ActionResetSingleVote AuditAction = "RESET_SINGLE_VOTE"
	ActionAdminLogin      AuditAction = "ADMIN_LOGIN"
	ActionAdminAdded      AuditAction = "ADMIN_ADDED"
	ActionAdminUpdated    AuditAction = "ADMIN_UPDATED"
	ActionAdminDeleted    AuditAction = "ADMIN_DELETED"
	ActionDatabaseBackup  AuditAction = "DATABASE_BACKUP"
	ActionDatabaseRestore AuditAction = "DATABASE_RESTORE"
	ActionDatabaseRepair  AuditAction = "DATABASE_REPAIR"
)

// StringList is an ordered list of strings stored as a JSON text column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// Contains reports whether s is in the list
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Voter represents an eligible participant with at most one vote
type Voter struct {
	ID              int64      `db:"id" json:"id"`
	Username        string     `db:"username" json:"username"`
	Name            string     `db:"name" json:"name"`
	Class           string     `db:"class" json:"class"`
	HasVoted        bool       `db:"has_voted" json:"has_voted"`
	VoteCandidateID *int64     `db:"vote_candidate_id" json:"vote_candidate_id"`
	VoteTime        *time.Time `db:"vote_time" json:"vote_time"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// NormalizeUsername lower-cases and trims a voter username
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ClearVote removes the vote fields, restoring the not-voted state
func (v *Voter) ClearVote() {
	v.HasVoted = false
	v.VoteCandidateID = nil
	v.VoteTime = nil
}

// MarkVoted records a vote for candidateID at the given time
func (v *Voter) MarkVoted(candidateID int64, at time.Time) {
	v.HasVoted = true
	v.VoteCandidateID = &candidateID
	v.VoteTime = &at
}

// Validate checks required fields and the has_voted invariant
func (v *Voter) Validate() error {
	if v.ID <= 0 {
		return fmt.Errorf("%w: voter id must be positive", ErrValidation)
	}
	if NormalizeUsername(v.Username) == "" {
		return fmt.Errorf("%w: voter %d has no username", ErrValidation, v.ID)
	}
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: voter %d has no name", ErrValidation, v.ID)
	}
	if v.HasVoted != (v.VoteCandidateID != nil) || v.HasVoted != (v.VoteTime != nil) {
		return fmt.Errorf("%w: voter %d vote fields disagree with has_voted", ErrValidation, v.ID)
	}
	return nil
}

// Candidate represents a ballot option with a running vote tally
type Candidate struct {
	ID                int64      `db:"id" json:"id"`
	Number            int        `db:"number" json:"number"`
	ChairmanName      string     `db:"chairman_name" json:"chairman_name"`
	ViceChairmanName  string     `db:"vice_chairman_name" json:"vice_chairman_name"`
	ChairmanClass     string     `db:"chairman_class" json:"chairman_class"`
	Motto             string     `db:"motto" json:"motto"`
	Vision            string     `db:"vision" json:"vision"`
	Mission           StringList `db:"mission" json:"mission"`
	Tags              StringList `db:"tags" json:"tags"`
	ImageChairman     string     `db:"image_chairman" json:"image_chairman"`
	ImageViceChairman string     `db:"image_vice_chairman" json:"image_vice_chairman"`
	Votes             int        `db:"votes" json:"votes"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks required fields
func (c *Candidate) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: candidate id must be positive", ErrValidation)
	}
	if c.Number <= 0 {
		return fmt.Errorf("%w: candidate %d needs a ballot number", ErrValidation, c.ID)
	}
	if strings.TrimSpace(c.ChairmanName) == "" {
		return fmt.Errorf("%w: candidate %d has no chairman name", ErrValidation, c.ID)
	}
	if c.Votes < 0 {
		return fmt.Errorf("%w: candidate %d has a negative tally", ErrValidation, c.ID)
	}
	return nil
}

// VoteRecord is an immutable ledger entry for one cast vote. The name,
// number and class fields are snapshots taken at cast time.
type VoteRecord struct {
	ID              int64     `db:"id" json:"id"`
	VoterID         int64     `db:"voter_id" json:"voter_id"`
	CandidateID     int64     `db:"candidate_id" json:"candidate_id"`
	Timestamp       time.Time `db:"timestamp" json:"timestamp"`
	VoterName       string    `db:"voter_name" json:"voter_name"`
	CandidateName   string    `db:"candidate_name" json:"candidate_name"`
	CandidateNumber int       `db:"candidate_number" json:"candidate_number"`
	VoterClass      string    `db:"voter_class" json:"voter_class"`
}

// Validate checks required fields
func (r *VoteRecord) Validate() error {
	if r.VoterID <= 0 || r.CandidateID <= 0 {
		return fmt.Errorf("%w: vote record needs voter and candidate ids", ErrValidation)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: vote record for voter %d has no timestamp", ErrValidation, r.VoterID)
	}
	return nil
}

// Admin represents an election committee account
type Admin struct {
	ID          int64      `db:"id" json:"id"`
	Username    string     `db:"username" json:"username"`
	Password    string     `db:"password" json:"password"` // compared verbatim
	Name        string     `db:"name" json:"name"`
	Role        string     `db:"role" json:"role"`
	Permissions StringList `db:"permissions" json:"permissions"`
	Email       string     `db:"email" json:"email"`
	Phone       string     `db:"phone" json:"phone"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Validate checks required fields
func (a *Admin) Validate() error {
	if a.ID <= 0 {
		return fmt.Errorf("%w: admin id must be positive", ErrValidation)
	}
	if strings.TrimSpace(a.Username) == "" {
		return fmt.Errorf("%w: admin %d has no username", ErrValidation, a.ID)
	}
	return nil
}

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID        int64       `db:"id" json:"id"`
	Action    AuditAction `db:"action" json:"action"`
	UserID    string      `db:"user_id" json:"user_id"`
	UserName  string      `db:"user_name" json:"user_name"`
	Details   string      `db:"details" json:"details"`
	Timestamp time.Time   `db:"timestamp" json:"timestamp"`
	IPAddress string      `db:"ip_address" json:"ip_address"`
}

// Validate checks required fields
func (e *AuditEntry) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: audit entry has no action", ErrValidation)
	}
	return nil
}
