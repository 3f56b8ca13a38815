// Package election owns every mutation of the vote state. Each operation
// runs as one atomic unit over voters, candidates, votes and audit_logs, so
// the has_voted flags, the candidate tallies and the vote ledger always
// agree once the unit has committed.
package election

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/notify"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// Status is the outcome of a successful operation
type Status string

const (
	StatusSuccess      Status = "success"
	StatusAlreadyVoted Status = "already_voted"
	StatusNotVoted     Status = "not_voted"
)

// Actor is recorded on the audit entries of administrative operations
type Actor struct {
	ID        string
	Name      string
	IPAddress string
}

// DefaultActor is used when the caller does not identify itself
func DefaultActor() Actor {
	return Actor{ID: "admin", Name: "System Admin", IPAddress: "localhost"}
}

// CastResult describes a cast attempt. An already-voted voter is reported
// through Status, not as an error.
type CastResult struct {
	Status    Status
	Voter     *database.Voter
	Candidate *database.Candidate
	Record    *database.VoteRecord
	Votes     int
	Timestamp time.Time
	Message   string
}

// ResetResult describes a single or bulk reset
type ResetResult struct {
	Status Status
	Voter  *database.Voter
	// PreviousCandidateID is the candidate the reset vote was for
	PreviousCandidateID *int64
	VotersReset         int64
	Message             string
}

// Coordinator runs the vote-affecting operations
type Coordinator struct {
	store      *database.Store
	voters     *repositories.VoterRepository
	candidates *repositories.CandidateRepository
	votes      *repositories.VoteRepository
	audit      *repositories.AuditLogRepository
	bridge     notify.Bridge
	log        *logger.Logger
	actor      Actor
	now        func() time.Time
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithActor sets the identity recorded on administrative audit entries
func WithActor(a Actor) Option {
	return func(c *Coordinator) { c.actor = a }
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator over store. A nil bridge disables
// change notifications.
func NewCoordinator(store *database.Store, bridge notify.Bridge, log *logger.Logger, opts ...Option) *Coordinator {
	if bridge == nil {
		bridge = notify.NewNopBridge()
	}
	if log == nil {
		log = logger.NewNop()
	}
	c := &Coordinator{
		store:      store,
		voters:     repositories.NewVoterRepository(store),
		candidates: repositories.NewCandidateRepository(store),
		votes:      repositories.NewVoteRepository(store),
		audit:      repositories.NewAuditLogRepository(store),
		bridge:     bridge,
		log:        log.WithComponent("election"),
		actor:      DefaultActor(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// As returns a coordinator that records audit entries for actor
func (c *Coordinator) As(actor Actor) *Coordinator {
	cp := *c
	if actor.IPAddress == "" {
		actor.IPAddress = c.actor.IPAddress
	}
	cp.actor = actor
	return &cp
}

// unit bundles the repositories bound to one transaction
type unit struct {
	tx         *sql.Tx
	voters     *repositories.VoterRepository
	candidates *repositories.CandidateRepository
	votes      *repositories.VoteRepository
	audit      *repositories.AuditLogRepository
}

func (c *Coordinator) inUnit(ctx context.Context, fn func(u *unit) error) error {
	return c.store.InTx(ctx, func(tx *sql.Tx) error {
		return fn(&unit{
			tx:         tx,
			voters:     c.voters.WithTx(tx),
			candidates: c.candidates.WithTx(tx),
			votes:      c.votes.WithTx(tx),
			audit:      c.audit.WithTx(tx),
		})
	})
}

// recordAudit appends entry inside the unit. A failure only undoes the audit
// write and is logged; it never aborts the operation.
func (c *Coordinator) recordAudit(ctx context.Context, u *unit, entry *database.AuditEntry) {
	err := database.Savepoint(ctx, u.tx, "audit_entry", func() error {
		return u.audit.Add(ctx, entry)
	})
	if err != nil {
		c.log.Warning("audit log skipped", "action", entry.Action, "error", err)
		return
	}
	c.log.AuditLogger(string(entry.Action), entry.UserID, "election", entry.Details)
}

func voterLookup(voterID int64, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: id %d", ErrVoterNotFound, voterID)
	}
	return err
}

// CastVote records one vote of voterID for candidateID. A voter that has
// already voted gets a StatusAlreadyVoted result and nothing is written.
func (c *Coordinator) CastVote(ctx context.Context, voterID, candidateID int64) (*CastResult, error) {
	start := time.Now()
	var result *CastResult

	err := c.inUnit(ctx, func(u *unit) error {
		voter, err := u.voters.GetForUpdate(ctx, voterID)
		if err != nil {
			return voterLookup(voterID, err)
		}

		if voter.HasVoted {
			result = &CastResult{
				Status:  StatusAlreadyVoted,
				Voter:   voter,
				Message: MsgAlreadyVoted,
			}
			if voter.VoteTime != nil {
				result.Timestamp = *voter.VoteTime
			}
			return nil
		}

		candidate, err := u.candidates.GetForUpdate(ctx, candidateID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("%w: id %d", ErrCandidateNotFound, candidateID)
			}
			return err
		}

		now := c.now().UTC()
		voter.MarkVoted(candidate.ID, now)
		if err := u.voters.Put(ctx, voter); err != nil {
			return err
		}

		candidate.Votes++
		if err := u.candidates.Put(ctx, candidate); err != nil {
			return err
		}

		record := &database.VoteRecord{
			VoterID:         voter.ID,
			CandidateID:     candidate.ID,
			Timestamp:       now,
			VoterName:       voter.Name,
			CandidateName:   candidate.ChairmanName,
			CandidateNumber: candidate.Number,
			VoterClass:      voter.Class,
		}
		if err := u.votes.Add(ctx, record); err != nil {
			return err
		}

		c.recordAudit(ctx, u, &database.AuditEntry{
			Action:    database.ActionVoteCast,
			UserID:    fmt.Sprint(voter.ID),
			UserName:  voter.Name,
			Details:   fmt.Sprintf("Voted for candidate %d - %s", candidate.Number, candidate.ChairmanName),
			Timestamp: now,
			IPAddress: c.actor.IPAddress,
		})

		result = &CastResult{
			Status:    StatusSuccess,
			Voter:     voter,
			Candidate: candidate,
			Record:    record,
			Votes:     candidate.Votes,
			Timestamp: now,
			Message:   MsgVoteRecorded,
		}
		return nil
	})

	c.log.PerformanceLogger("cast_vote", time.Since(start), err == nil)
	if err != nil {
		c.log.StructuredError(err, map[string]interface{}{
			"operation":    "cast_vote",
			"voter_id":     voterID,
			"candidate_id": candidateID,
		})
		return nil, err
	}

	if result.Status == StatusSuccess {
		c.log.VotingLogger("vote_cast", voterID, candidateID, result.Message)
		newID := result.Candidate.ID
		c.publish(ctx, notify.EventVoteChanged, notify.VoteChanged{VoterID: voterID, NewCandidateID: &newID})
		c.publish(ctx, notify.EventVoterUpdated, notify.VoterUpdated{
			VoterID: voterID,
			Changes: map[string]interface{}{"has_voted": true, "vote_candidate_id": newID},
		})
	} else {
		c.log.VotingLogger("vote_rejected", voterID, candidateID, result.Message)
	}
	return result, nil
}

// ResetSingleVote returns a voter to the not-voted state, removes the
// voter's ledger entry and takes the vote off the candidate's tally. The
// tally never drops below zero. Resetting a voter who has not voted is a
// successful no-op.
func (c *Coordinator) ResetSingleVote(ctx context.Context, voterID int64) (*ResetResult, error) {
	var result *ResetResult

	err := c.inUnit(ctx, func(u *unit) error {
		voter, err := u.voters.GetForUpdate(ctx, voterID)
		if err != nil {
			return voterLookup(voterID, err)
		}

		if !voter.HasVoted {
			result = &ResetResult{Status: StatusNotVoted, Voter: voter, Message: MsgVoterNotVoted}
			return nil
		}

		previous := voter.VoteCandidateID
		voter.ClearVote()
		if err := u.voters.Put(ctx, voter); err != nil {
			return err
		}

		if previous != nil {
			candidate, err := u.candidates.GetForUpdate(ctx, *previous)
			switch {
			case errors.Is(err, database.ErrNotFound):
				c.log.Warning("reset vote references a missing candidate", "voter_id", voterID, "candidate_id", *previous)
			case err != nil:
				return err
			default:
				if candidate.Votes > 0 {
					candidate.Votes--
				}
				if err := u.candidates.Put(ctx, candidate); err != nil {
					return err
				}
			}
		}

		found, err := u.votes.DeleteByVoterID(ctx, voterID)
		if err != nil {
			return err
		}
		if !found {
			c.log.Warning("reset vote found no ledger entry", "voter_id", voterID)
		}

		c.recordAudit(ctx, u, &database.AuditEntry{
			Action:    database.ActionResetSingleVote,
			UserID:    c.actor.ID,
			UserName:  c.actor.Name,
			Details:   fmt.Sprintf("Reset vote for voter: %s (ID: %d)", voter.Name, voter.ID),
			Timestamp: c.now().UTC(),
			IPAddress: c.actor.IPAddress,
		})

		result = &ResetResult{
			Status:              StatusSuccess,
			Voter:               voter,
			PreviousCandidateID: previous,
			VotersReset:         1,
			Message:             MsgVoteReset,
		}
		return nil
	})
	if err != nil {
		c.log.StructuredError(err, map[string]interface{}{"operation": "reset_single_vote", "voter_id": voterID})
		return nil, err
	}

	if result.Status == StatusSuccess {
		c.log.VotingLogger("vote_reset", voterID, 0, result.Message)
		c.publish(ctx, notify.EventVoteChanged, notify.VoteChanged{VoterID: voterID, OldCandidateID: result.PreviousCandidateID})
		c.publish(ctx, notify.EventVoterUpdated, notify.VoterUpdated{
			VoterID: voterID,
			Changes: map[string]interface{}{"has_voted": false, "vote_candidate_id": nil},
		})
	}
	return result, nil
}

// ResetAllVotes clears every vote in one unit: all voters become not-voted,
// all tallies drop to zero and the ledger is emptied.
func (c *Coordinator) ResetAllVotes(ctx context.Context) (*ResetResult, error) {
	var result *ResetResult

	err := c.inUnit(ctx, func(u *unit) error {
		if lock := c.store.Dialect().LockCollections(
			database.VotersTable, database.CandidatesTable, database.VotesTable,
		); lock != "" {
			if _, err := u.tx.ExecContext(ctx, lock); err != nil {
				return database.Translate(err)
			}
		}

		n, err := u.voters.ClearAllVotes(ctx)
		if err != nil {
			return err
		}
		if err := u.candidates.ResetTallies(ctx); err != nil {
			return err
		}
		if err := u.votes.Clear(ctx); err != nil {
			return err
		}

		c.recordAudit(ctx, u, &database.AuditEntry{
			Action:    database.ActionResetAllVotes,
			UserID:    c.actor.ID,
			UserName:  c.actor.Name,
			Details:   "Reset all voting data",
			Timestamp: c.now().UTC(),
			IPAddress: c.actor.IPAddress,
		})

		result = &ResetResult{Status: StatusSuccess, VotersReset: n, Message: MsgAllVotesReset}
		return nil
	})
	if err != nil {
		c.log.StructuredError(err, map[string]interface{}{"operation": "reset_all_votes"})
		return nil, err
	}

	c.log.Info("all votes reset", "voters_reset", result.VotersReset)
	c.publish(ctx, notify.EventDatabaseUpdate, notify.DatabaseUpdate{Reason: "reset_all_votes"})
	return result, nil
}

// VotingStatus is a voter together with the vote they cast, if any
type VotingStatus struct {
	Voter     *database.Voter
	HasVoted  bool
	Record    *database.VoteRecord
	Candidate *database.Candidate
}

// VotingStatus reports whether a voter has voted and for whom. The ledger
// entry and candidate are looked up only for voters who have voted and may
// be nil if they have since been removed.
func (c *Coordinator) VotingStatus(ctx context.Context, voterID int64) (*VotingStatus, error) {
	voter, err := c.voters.Get(ctx, voterID)
	if err != nil {
		return nil, voterLookup(voterID, err)
	}

	status := &VotingStatus{Voter: voter, HasVoted: voter.HasVoted}
	if !voter.HasVoted {
		return status, nil
	}

	record, err := c.votes.GetByVoterID(ctx, voterID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	status.Record = record

	if voter.VoteCandidateID != nil {
		candidate, err := c.candidates.Get(ctx, *voter.VoteCandidateID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		status.Candidate = candidate
	}
	return status, nil
}

// Mismatch is a candidate whose stored tally disagrees with the ledger
type Mismatch struct {
	CandidateID int64
	Tally       int
	Ledger      int
}

// CheckConsistency compares every candidate tally with the number of ledger
// entries for that candidate.
func (c *Coordinator) CheckConsistency(ctx context.Context) ([]Mismatch, error) {
	var mismatches []Mismatch
	err := c.inUnit(ctx, func(u *unit) error {
		candidates, err := u.candidates.All(ctx)
		if err != nil {
			return err
		}
		counts, err := u.votes.CountByCandidate(ctx)
		if err != nil {
			return err
		}
		for _, cand := range candidates {
			if cand.Votes != counts[cand.ID] {
				mismatches = append(mismatches, Mismatch{CandidateID: cand.ID, Tally: cand.Votes, Ledger: counts[cand.ID]})
			}
		}
		return nil
	})
	return mismatches, err
}

// publish is called only after the unit has committed. Failures are logged
// and otherwise ignored.
func (c *Coordinator) publish(ctx context.Context, t notify.EventType, payload interface{}) {
	e, err := notify.NewEvent(t, payload)
	if err == nil {
		err = c.bridge.Notify(ctx, e)
	}
	if err != nil {
		c.log.Warning("change notification dropped", "event", t, "error", err)
	}
}
