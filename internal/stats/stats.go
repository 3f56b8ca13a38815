// Package stats computes read-only projections of the election state:
// per-class turnout, candidate ranking, percentages and vote timing.
// Every call reads the committed state afresh; nothing is cached.
package stats

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
)

// ClassCount is the turnout of one class
type ClassCount struct {
	Total int `json:"total"`
	Voted int `json:"voted"`
}

// Percentage is the share of the class that has voted
func (c ClassCount) Percentage() float64 {
	return Percentage(c.Voted, c.Total)
}

// Breakdown is the per-class turnout with the class names in sorted order
type Breakdown struct {
	Classes []string
	ByClass map[string]ClassCount
}

// CandidateResult is one line of the ranked results
type CandidateResult struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Number       int     `json:"number"`
	Votes        int     `json:"votes"`
	Percentage   float64 `json:"percentage"`
	ViceChairman string  `json:"vice_chairman"`
	Motto        string  `json:"motto"`
	Class        string  `json:"class"`
}

// Timing summarises when votes were cast
type Timing struct {
	First   time.Time `json:"firstVote"`
	Last    time.Time `json:"lastVote"`
	Average time.Time `json:"averageVoteTime"`
}

// ElectionStats is the full statistics block shown on the dashboard and
// embedded in exports.
type ElectionStats struct {
	TotalVoters     int                   `json:"totalVoters"`
	VotedVoters     int                   `json:"votedVoters"`
	NotVotedVoters  int                   `json:"notVotedVoters"`
	VotePercentage  float64               `json:"votePercentage"`
	TotalCandidates int                   `json:"totalCandidates"`
	TotalVotes      int                   `json:"totalVotes"`
	AverageVoteTime *time.Time            `json:"averageVoteTime"`
	FirstVote       *time.Time            `json:"firstVote"`
	LastVote        *time.Time            `json:"lastVote"`
	VotesByClass    map[string]ClassCount `json:"votesByClass"`
	Classes         []string              `json:"classes"`
	Candidates      []CandidateResult     `json:"candidates"`
}

// Percentage returns part/whole*100 rounded to one decimal place, or 0 when
// whole is zero.
func Percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// BreakdownByClass tallies voters per class in a single pass
func BreakdownByClass(voters []*database.Voter) Breakdown {
	b := Breakdown{ByClass: make(map[string]ClassCount)}
	for _, v := range voters {
		c, seen := b.ByClass[v.Class]
		if !seen {
			b.Classes = append(b.Classes, v.Class)
		}
		c.Total++
		if v.HasVoted {
			c.Voted++
		}
		b.ByClass[v.Class] = c
	}
	sort.Strings(b.Classes)
	return b
}

// Rank orders candidates by votes, highest first. Candidates with equal
// votes keep their input order. The input slice is not modified.
func Rank(candidates []*database.Candidate) []*database.Candidate {
	ranked := make([]*database.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes > ranked[j].Votes
	})
	return ranked
}

// ComputeTiming returns the first, last and mean vote time, or nil when
// there are no votes.
func ComputeTiming(votes []*database.VoteRecord) *Timing {
	if len(votes) == 0 {
		return nil
	}

	t := &Timing{First: votes[0].Timestamp, Last: votes[0].Timestamp}
	var sum int64
	for _, v := range votes {
		ms := v.Timestamp.UnixMilli()
		sum += ms
		if v.Timestamp.Before(t.First) {
			t.First = v.Timestamp
		}
		if v.Timestamp.After(t.Last) {
			t.Last = v.Timestamp
		}
	}
	avg := float64(sum) / float64(len(votes))
	t.Average = time.UnixMilli(int64(math.Round(avg))).UTC()
	t.First = t.First.UTC()
	t.Last = t.Last.UTC()
	return t
}

// Service answers statistics queries against a store
type Service struct {
	store      *database.Store
	voters     *repositories.VoterRepository
	candidates *repositories.CandidateRepository
	votes      *repositories.VoteRepository
}

// NewService creates a statistics service
func NewService(store *database.Store) *Service {
	return &Service{
		store:      store,
		voters:     repositories.NewVoterRepository(store),
		candidates: repositories.NewCandidateRepository(store),
		votes:      repositories.NewVoteRepository(store),
	}
}

// VotersByClass returns the voters of one class
func (s *Service) VotersByClass(ctx context.Context, class string) ([]*database.Voter, error) {
	return s.voters.GetByClass(ctx, class)
}

// VotedVoters returns every voter who has voted
func (s *Service) VotedVoters(ctx context.Context) ([]*database.Voter, error) {
	return s.voters.GetVoted(ctx)
}

// NotVotedVoters returns every voter who has not voted yet
func (s *Service) NotVotedVoters(ctx context.Context) ([]*database.Voter, error) {
	return s.voters.GetNotVoted(ctx)
}

// ClassBreakdown returns the per-class turnout
func (s *Service) ClassBreakdown(ctx context.Context) (Breakdown, error) {
	voters, err := s.voters.All(ctx)
	if err != nil {
		return Breakdown{}, err
	}
	return BreakdownByClass(voters), nil
}

// Ranking returns candidates ordered by votes, ties in ballot order
func (s *Service) Ranking(ctx context.Context) ([]*database.Candidate, error) {
	candidates, err := s.candidates.All(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(candidates), nil
}

// VotesBetween returns ledger entries cast in [start, end]
func (s *Service) VotesBetween(ctx context.Context, start, end time.Time) ([]*database.VoteRecord, error) {
	return s.votes.GetByTimeRange(ctx, start, end)
}

// VoteTiming returns first/last/average vote times, nil when nobody voted
func (s *Service) VoteTiming(ctx context.Context) (*Timing, error) {
	votes, err := s.votes.All(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeTiming(votes), nil
}

// ElectionStats computes the full statistics block from one consistent
// read of voters, candidates and the ledger.
func (s *Service) ElectionStats(ctx context.Context) (*ElectionStats, error) {
	var (
		voters     []*database.Voter
		candidates []*database.Candidate
		votes      []*database.VoteRecord
	)
	err := s.store.ReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		if voters, err = s.voters.WithTx(tx).All(ctx); err != nil {
			return err
		}
		if candidates, err = s.candidates.WithTx(tx).All(ctx); err != nil {
			return err
		}
		votes, err = s.votes.WithTx(tx).All(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Compute(voters, candidates, votes), nil
}

// Compute builds ElectionStats from already loaded records
func Compute(voters []*database.Voter, candidates []*database.Candidate, votes []*database.VoteRecord) *ElectionStats {
	breakdown := BreakdownByClass(voters)

	voted := 0
	for _, c := range breakdown.ByClass {
		voted += c.Voted
	}

	st := &ElectionStats{
		TotalVoters:     len(voters),
		VotedVoters:     voted,
		NotVotedVoters:  len(voters) - voted,
		VotePercentage:  Percentage(voted, len(voters)),
		TotalCandidates: len(candidates),
		TotalVotes:      len(votes),
		VotesByClass:    breakdown.ByClass,
		Classes:         breakdown.Classes,
		Candidates:      make([]CandidateResult, 0, len(candidates)),
	}

	if timing := ComputeTiming(votes); timing != nil {
		st.FirstVote = &timing.First
		st.LastVote = &timing.Last
		st.AverageVoteTime = &timing.Average
	}

	for _, c := range Rank(candidates) {
		st.Candidates = append(st.Candidates, CandidateResult{
			ID:           c.ID,
			Name:         c.ChairmanName,
			Number:       c.Number,
			Votes:        c.Votes,
			Percentage:   Percentage(c.Votes, voted),
			ViceChairman: c.ViceChairmanName,
			Motto:        c.Motto,
			Class:        c.ChairmanClass,
		})
	}
	return st
}
