// Package backup exports, restores and repairs the whole election data set.
// Restore replays the same repository Add calls used by normal writes, so
// a snapshot goes through the usual validation on its way back in.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/seed"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/stats"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// Metadata describes where and when a snapshot was taken
type Metadata struct {
	ExportDate time.Time `json:"export_date"`
	System     string    `json:"system"`
	Version    string    `json:"version"`
}

// Snapshot is the full data set
type Snapshot struct {
	Metadata   Metadata               `json:"metadata"`
	Statistics *stats.ElectionStats   `json:"statistics"`
	Voters     []*database.Voter      `json:"voters"`
	Candidates []*database.Candidate  `json:"candidates"`
	Votes      []*database.VoteRecord `json:"votes"`
	AuditLogs  []*database.AuditEntry `json:"audit_logs"`
	Admins     []*database.Admin      `json:"admins,omitempty"`
}

// File is the on-disk backup format
type File struct {
	Timestamp time.Time `json:"timestamp"`
	Data      *Snapshot `json:"data"`
}

// Validate checks every record of the snapshot and the relations between
// them without touching the store: unique keys, ledger references and the
// agreement of tallies and has_voted flags with the ledger.
func (s *Snapshot) Validate() error {
	if err := s.validateRecords(); err != nil {
		return err
	}
	if err := s.validateKeys(); err != nil {
		return err
	}
	return s.validateLedger()
}

func (s *Snapshot) validateRecords() error {
	for _, v := range s.Voters {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	for _, c := range s.Candidates {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, v := range s.Votes {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	for _, a := range s.Admins {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	for _, e := range s.AuditLogs {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Snapshot) validateKeys() error {
	voterIDs := make(map[int64]bool, len(s.Voters))
	usernames := make(map[string]bool, len(s.Voters))
	for _, v := range s.Voters {
		name := database.NormalizeUsername(v.Username)
		if voterIDs[v.ID] || usernames[name] {
			return invalid("duplicate voter %d (%s)", v.ID, name)
		}
		voterIDs[v.ID], usernames[name] = true, true
	}

	candidateIDs := make(map[int64]bool, len(s.Candidates))
	numbers := make(map[int]bool, len(s.Candidates))
	for _, c := range s.Candidates {
		if candidateIDs[c.ID] || numbers[c.Number] {
			return invalid("duplicate candidate %d (number %d)", c.ID, c.Number)
		}
		candidateIDs[c.ID], numbers[c.Number] = true, true
	}

	adminIDs := make(map[int64]bool, len(s.Admins))
	adminNames := make(map[string]bool, len(s.Admins))
	for _, a := range s.Admins {
		if adminIDs[a.ID] || adminNames[a.Username] {
			return invalid("duplicate admin %d (%s)", a.ID, a.Username)
		}
		adminIDs[a.ID], adminNames[a.Username] = true, true
	}
	return nil
}

// validateLedger requires exactly one ledger row per voted voter, pointing
// at the candidate the voter record names, and candidate tallies equal to
// the ledger counts.
func (s *Snapshot) validateLedger() error {
	voters := make(map[int64]*database.Voter, len(s.Voters))
	for _, v := range s.Voters {
		voters[v.ID] = v
	}
	tallies := make(map[int64]int, len(s.Candidates))
	for _, c := range s.Candidates {
		tallies[c.ID] = 0
	}

	seen := make(map[int64]bool, len(s.Votes))
	for _, r := range s.Votes {
		if seen[r.VoterID] {
			return invalid("voter %d has more than one ledger entry", r.VoterID)
		}
		seen[r.VoterID] = true

		v, ok := voters[r.VoterID]
		if !ok {
			return invalid("ledger entry for unknown voter %d", r.VoterID)
		}
		if _, ok := tallies[r.CandidateID]; !ok {
			return invalid("ledger entry for unknown candidate %d", r.CandidateID)
		}
		if !v.HasVoted || *v.VoteCandidateID != r.CandidateID {
			return invalid("voter %d disagrees with its ledger entry", r.VoterID)
		}
		tallies[r.CandidateID]++
	}

	for _, v := range s.Voters {
		if v.HasVoted && !seen[v.ID] {
			return invalid("voter %d has voted but has no ledger entry", v.ID)
		}
	}
	for _, c := range s.Candidates {
		if c.Votes != tallies[c.ID] {
			return invalid("candidate %d tally %d does not match %d ledger entries", c.ID, c.Votes, tallies[c.ID])
		}
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", database.ErrValidation, fmt.Sprintf(format, args...))
}

// Service runs backup, restore and repair against one store
type Service struct {
	store *database.Store
	cfg   config.ElectionConfig
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store *database.Store, cfg config.ElectionConfig, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.IPAddress == "" {
		cfg.IPAddress = "localhost"
	}
	return &Service{store: store, cfg: cfg, log: log.WithComponent("backup"), now: time.Now}
}

// Export reads every collection from one read-only snapshot
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Metadata: Metadata{
			ExportDate: s.now().UTC(),
			System:     s.cfg.System,
			Version:    s.cfg.Version,
		},
	}

	err := s.store.ReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Voters, err = repositories.NewVoterRepository(s.store).WithTx(tx).All(ctx); err != nil {
			return err
		}
		if snap.Candidates, err = repositories.NewCandidateRepository(s.store).WithTx(tx).All(ctx); err != nil {
			return err
		}
		if snap.Votes, err = repositories.NewVoteRepository(s.store).WithTx(tx).All(ctx); err != nil {
			return err
		}
		if snap.AuditLogs, err = repositories.NewAuditLogRepository(s.store).WithTx(tx).All(ctx); err != nil {
			return err
		}
		snap.Admins, err = repositories.NewAdminRepository(s.store).WithTx(tx).All(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	snap.Statistics = stats.Compute(snap.Voters, snap.Candidates, snap.Votes)
	return snap, nil
}

// Backup writes the current data set to w as indented JSON and records a
// DATABASE_BACKUP audit entry.
func (s *Service) Backup(ctx context.Context, w io.Writer) (*Snapshot, error) {
	snap, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	if err := WriteSnapshot(w, snap, s.now().UTC()); err != nil {
		return nil, err
	}

	s.record(ctx, database.ActionDatabaseBackup, "Database backup created")
	return snap, nil
}

// WriteSnapshot encodes snap in the backup file format
func WriteSnapshot(w io.Writer, snap *Snapshot, at time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(File{Timestamp: at, Data: snap}); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a backup file. Both the {timestamp, data} wrapper
// and a bare export are accepted.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: backup is not a JSON object: %w", database.ErrValidation, err)
	}
	if data, ok := probe["data"]; ok {
		raw = data
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode backup: %w", database.ErrValidation, err)
	}
	return &snap, nil
}

// Restore replaces the whole store with snap. The snapshot is validated
// first, and dropping, re-creating and refilling the collections happen in
// one unit, so a failure at any step leaves the previous data in place.
// Ledger and audit ids are assigned afresh in their original order.
func (s *Service) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: empty snapshot", database.ErrValidation)
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	err := s.store.InTx(ctx, func(tx *sql.Tx) error {
		if err := database.DropCollections(ctx, tx); err != nil {
			return err
		}
		if err := database.Migrate(ctx, tx, s.store.Dialect()); err != nil {
			return fmt.Errorf("%w: %w", database.ErrSchema, err)
		}
		return s.replay(ctx, tx, snap)
	})
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	s.log.Info("database restored", "voters", len(snap.Voters), "candidates", len(snap.Candidates), "votes", len(snap.Votes))
	s.record(ctx, database.ActionDatabaseRestore, "Database restored from backup")
	return nil
}

func (s *Service) replay(ctx context.Context, tx *sql.Tx, snap *Snapshot) error {
	voters := repositories.NewVoterRepository(s.store).WithTx(tx)
	for _, v := range snap.Voters {
		if err := voters.Add(ctx, v); err != nil {
			return err
		}
	}
	candidates := repositories.NewCandidateRepository(s.store).WithTx(tx)
	for _, c := range snap.Candidates {
		if err := candidates.Add(ctx, c); err != nil {
			return err
		}
	}

	votes := repositories.NewVoteRepository(s.store).WithTx(tx)
	for _, v := range byID(snap.Votes, func(v *database.VoteRecord) int64 { return v.ID }) {
		if err := votes.Add(ctx, v); err != nil {
			return err
		}
	}

	admins := repositories.NewAdminRepository(s.store).WithTx(tx)
	for _, a := range snap.Admins {
		if err := admins.Add(ctx, a); err != nil {
			return err
		}
	}

	audit := repositories.NewAuditLogRepository(s.store).WithTx(tx)
	for _, e := range byID(snap.AuditLogs, func(e *database.AuditEntry) int64 { return e.ID }) {
		if err := audit.Add(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// byID returns a copy of records sorted by id
func byID[T any](records []T, id func(T) int64) []T {
	out := append([]T(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

// Repair rebuilds the store from scratch and re-seeds the defaults. It
// returns the snapshot taken beforehand, or nil when the old data could not
// be read at all.
func (s *Service) Repair(ctx context.Context) (*Snapshot, error) {
	snap, err := s.Export(ctx)
	if err != nil {
		s.log.Warning("repair continues without a snapshot", "error", err)
		snap = nil
	}

	if err := s.store.Destroy(ctx); err != nil {
		return snap, fmt.Errorf("repair: %w", err)
	}
	if err := database.RunMigrations(ctx, s.store); err != nil {
		return snap, fmt.Errorf("repair: %w", err)
	}
	if _, err := seed.NewSeeder(s.store, s.log).Initialize(ctx); err != nil {
		return snap, fmt.Errorf("repair: %w", err)
	}

	s.log.Info("database repaired")
	s.record(ctx, database.ActionDatabaseRepair, "Database repaired successfully")
	return snap, nil
}

// record appends a system audit entry; failures are logged and swallowed
func (s *Service) record(ctx context.Context, action database.AuditAction, details string) {
	entry := &database.AuditEntry{
		Action:    action,
		UserID:    "system",
		UserName:  "System",
		Details:   details,
		Timestamp: s.now().UTC(),
		IPAddress: s.cfg.IPAddress,
	}
	if err := repositories.NewAuditLogRepository(s.store).Add(ctx, entry); err != nil {
		s.log.Warning("audit log skipped", "action", action, "error", err)
		return
	}
	s.log.AuditLogger(string(action), entry.UserID, "database", details)
}
