package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/dbtest"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/election"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 66.7, Percentage(2, 3))
	assert.Equal(t, 33.3, Percentage(1, 3))
	assert.Equal(t, 100.0, Percentage(3, 3))
	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 0.0, Percentage(0, 10))
}

func TestRankIsStable(t *testing.T) {
	in := []*database.Candidate{
		{ID: 1, Number: 1, Votes: 2},
		{ID: 2, Number: 2, Votes: 5},
		{ID: 3, Number: 3, Votes: 2},
		{ID: 4, Number: 4, Votes: 0},
	}

	ranked := Rank(in)

	ids := make([]int64, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	assert.Equal(t, []int64{2, 1, 3, 4}, ids)
	assert.Equal(t, int64(1), in[0].ID, "input must not be reordered")
}

func TestBreakdownByClass(t *testing.T) {
	voters := []*database.Voter{
		{Class: "11C", HasVoted: true},
		{Class: "10B"},
		{Class: "11C"},
		{Class: "10B", HasVoted: true},
		{Class: "10B", HasVoted: true},
	}

	b := BreakdownByClass(voters)
	assert.Equal(t, []string{"10B", "11C"}, b.Classes)
	assert.Equal(t, ClassCount{Total: 3, Voted: 2}, b.ByClass["10B"])
	assert.Equal(t, ClassCount{Total: 2, Voted: 1}, b.ByClass["11C"])
	assert.Equal(t, 66.7, b.ByClass["10B"].Percentage())
}

func TestComputeTiming(t *testing.T) {
	assert.Nil(t, ComputeTiming(nil))

	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	timing := ComputeTiming([]*database.VoteRecord{
		{Timestamp: base.Add(2 * time.Hour)},
		{Timestamp: base},
		{Timestamp: base.Add(time.Hour)},
	})
	require.NotNil(t, timing)
	assert.True(t, base.Equal(timing.First))
	assert.True(t, base.Add(2*time.Hour).Equal(timing.Last))
	assert.True(t, base.Add(time.Hour).Equal(timing.Average))
}

func seedScenario(t *testing.T) (*Service, *election.Coordinator) {
	t.Helper()
	store := dbtest.NewStore(t)
	ctx := context.Background()

	candidates := repositories.NewCandidateRepository(store)
	voters := repositories.NewVoterRepository(store)
	for i := 1; i <= 3; i++ {
		require.NoError(t, candidates.Register(ctx, &database.Candidate{
			ID: int64(i), Number: i, ChairmanName: []string{"", "Fadlan", "Pramudita", "Dharma"}[i],
		}))
	}
	classes := []string{"", "10B", "10B", "11C", "11C", "12D"}
	for i := 1; i <= 5; i++ {
		require.NoError(t, voters.Add(ctx, &database.Voter{
			ID: int64(i), Username: "siswa00" + string(rune('0'+i)), Name: "Student", Class: classes[i],
		}))
	}
	return NewService(store), election.NewCoordinator(store, nil, nil)
}

func TestElectionStatsScenario(t *testing.T) {
	svc, coord := seedScenario(t)
	ctx := context.Background()

	empty, err := svc.ElectionStats(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty.FirstVote)
	assert.Nil(t, empty.AverageVoteTime)
	for _, c := range empty.Candidates {
		assert.Zero(t, c.Percentage)
	}

	for _, pair := range [][2]int64{{1, 1}, {2, 1}, {3, 2}} {
		_, err := coord.CastVote(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	st, err := svc.ElectionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalVoters)
	assert.Equal(t, 3, st.VotedVoters)
	assert.Equal(t, 2, st.NotVotedVoters)
	assert.Equal(t, 60.0, st.VotePercentage)
	assert.Equal(t, 3, st.TotalVotes)
	assert.NotNil(t, st.FirstVote)

	require.Len(t, st.Candidates, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{st.Candidates[0].Number, st.Candidates[1].Number, st.Candidates[2].Number})
	assert.Equal(t, 66.7, st.Candidates[0].Percentage)
	assert.Equal(t, 33.3, st.Candidates[1].Percentage)
	assert.Equal(t, 0.0, st.Candidates[2].Percentage)

	assert.Equal(t, []string{"10B", "11C", "12D"}, st.Classes)
	assert.Equal(t, ClassCount{Total: 2, Voted: 2}, st.VotesByClass["10B"])
	assert.Equal(t, ClassCount{Total: 1, Voted: 0}, st.VotesByClass["12D"])

	ranking, err := svc.Ranking(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ranking[0].ID)
	assert.Equal(t, 2, ranking[0].Votes)

	voted, err := svc.VotedVoters(ctx)
	require.NoError(t, err)
	assert.Len(t, voted, 3)

	notVoted, err := svc.NotVotedVoters(ctx)
	require.NoError(t, err)
	assert.Len(t, notVoted, 2)

	byClass, err := svc.VotersByClass(ctx, "11C")
	require.NoError(t, err)
	assert.Len(t, byClass, 2)
}

func TestElectionStatsDuringOpenWrite(t *testing.T) {
	svc, _ := seedScenario(t)
	ctx := context.Background()

	err := svc.store.InTx(ctx, func(tx *sql.Tx) error {
		pending := &database.Voter{ID: 6, Username: "siswa006", Name: "Student", Class: "12D"}
		if err := svc.voters.WithTx(tx).Add(ctx, pending); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		st, err := svc.ElectionStats(readCtx)
		if err != nil {
			return err
		}
		assert.Equal(t, 5, st.TotalVoters, "uncommitted voter is not visible")
		return nil
	})
	require.NoError(t, err)
}

func TestVotesBetweenIsInclusive(t *testing.T) {
	svc, _ := seedScenario(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	clock := base
	coord := election.NewCoordinator(svc.store, nil, nil, election.WithClock(func() time.Time { return clock }))
	for i := int64(1); i <= 3; i++ {
		clock = base.Add(time.Duration(i) * time.Minute)
		_, err := coord.CastVote(ctx, i, 1)
		require.NoError(t, err)
	}

	got, err := svc.VotesBetween(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.VotesBetween(ctx, base.Add(4*time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	timing, err := svc.VoteTiming(ctx)
	require.NoError(t, err)
	require.NotNil(t, timing)
	assert.True(t, base.Add(time.Minute).Equal(timing.First))
	assert.True(t, base.Add(3*time.Minute).Equal(timing.Last))
	assert.True(t, base.Add(2*time.Minute).Equal(timing.Average))
}
