package repositories_test

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
)

func TestVoterRepository(t *testing.T) {
	store := dbtest.NewStore(t)
	repo := repositories.NewVoterRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, &database.Voter{ID: 1, Username: "  Siswa001 ", Name: "Ahmad", Class: "10B"}))
	require.NoError(t, repo.Add(ctx, &database.Voter{ID: 2, Username: "siswa002", Name: "Budi", Class: "11C"}))

	t.Run("lookup by normalised username", func(t *testing.T) {
		v, err := repo.GetByUsername(ctx, "SISWA001")
		require.NoError(t, err)
		assert.Equal(t, int64(1), v.ID)
		assert.Equal(t, "siswa001", v.Username)
		assert.False(t, v.HasVoted)
		assert.Nil(t, v.VoteCandidateID)
		assert.Nil(t, v.VoteTime)
	})

	t.Run("duplicate id and username", func(t *testing.T) {
		err := repo.Add(ctx, &database.Voter{ID: 1, Username: "other", Name: "X"})
		assert.ErrorIs(t, err, database.ErrDuplicateKey)

		err = repo.Add(ctx, &database.Voter{ID: 3, Username: "siswa002", Name: "X"})
		assert.ErrorIs(t, err, database.ErrDuplicateKey)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		err := repo.Add(ctx, &database.Voter{ID: 4, Username: "siswa004", Name: "X", HasVoted: true})
		assert.ErrorIs(t, err, database.ErrValidation)
	})

	t.Run("missing voter", func(t *testing.T) {
		_, err := repo.Get(ctx, 99)
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, 99), database.ErrNotFound)
	})

	t.Run("put keeps vote fields", func(t *testing.T) {
		v, err := repo.Get(ctx, 2)
		require.NoError(t, err)
		at := time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC)
		v.MarkVoted(3, at)
		require.NoError(t, repo.Put(ctx, v))

		got, err := repo.Get(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, got.VoteCandidateID)
		require.NotNil(t, got.VoteTime)
		assert.True(t, got.HasVoted)
		assert.Equal(t, int64(3), *got.VoteCandidateID)
		assert.True(t, at.Equal(*got.VoteTime))

		voted, err := repo.GetVoted(ctx)
		require.NoError(t, err)
		require.Len(t, voted, 1)
		assert.Equal(t, int64(2), voted[0].ID)

		n, err := repo.CountVoted(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("update patch", func(t *testing.T) {
		name := "Budi Santoso"
		v, err := repo.Update(ctx, 2, repositories.VoterPatch{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, v.Name)
		assert.True(t, v.HasVoted)

		v, err = repo.Update(ctx, 2, repositories.VoterPatch{ClearVote: true})
		require.NoError(t, err)
		assert.False(t, v.HasVoted)
		assert.Nil(t, v.VoteCandidateID)
	})

	t.Run("class filter and count", func(t *testing.T) {
		byClass, err := repo.GetByClass(ctx, "10B")
		require.NoError(t, err)
		require.Len(t, byClass, 1)
		assert.Equal(t, "Ahmad", byClass[0].Name)

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestVoterClearAllVotes(t *testing.T) {
	store := dbtest.NewStore(t)
	repo := repositories.NewVoterRepository(store)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		v := &database.Voter{ID: i, Username: "v" + string(rune('0'+i)), Name: "V"}
		if i < 3 {
			v.MarkVoted(1, time.Now())
		}
		require.NoError(t, repo.Add(ctx, v))
	}

	n, err := repo.ClearAllVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	notVoted, err := repo.GetNotVoted(ctx)
	require.NoError(t, err)
	assert.Len(t, notVoted, 3)
	for _, v := range notVoted {
		assert.NoError(t, v.Validate())
	}
}

func TestCandidateRepository(t *testing.T) {
	store := dbtest.NewStore(t)
	repo := repositories.NewCandidateRepository(store)
	ctx := context.Background()

	c := &database.Candidate{
		ID: 1, Number: 1, ChairmanName: "MUHAMAD FADLAN ARFANI", ChairmanClass: "XI C",
		Mission: database.StringList{"one", "two"}, Tags: database.StringList{"tag"}, Votes: 9,
	}
	require.NoError(t, repo.Register(ctx, c))
	assert.Zero(t, c.Votes)

	got, err := repo.GetByNumber(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, database.StringList{"one", "two"}, got.Mission)
	assert.Equal(t, database.StringList{"tag"}, got.Tags)
	assert.Zero(t, got.Votes)

	err = repo.Add(ctx, &database.Candidate{ID: 2, Number: 1, ChairmanName: "Other"})
	assert.ErrorIs(t, err, database.ErrDuplicateKey)

	got.Votes = 4
	require.NoError(t, repo.Put(ctx, got))

	edit := &database.Candidate{ID: 1, Number: 1, ChairmanName: "Renamed", Votes: 100}
	require.NoError(t, repo.Update(ctx, edit))
	got, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.ChairmanName)
	assert.Equal(t, 4, got.Votes)

	require.NoError(t, repo.ResetTallies(ctx))
	got, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, got.Votes)

	require.NoError(t, repo.Delete(ctx, 1))
	_, err = repo.Get(ctx, 1)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestVoteRepository(t *testing.T) {
	store := dbtest.NewStore(t)
	repo := repositories.NewVoteRepository(store)
	ctx := context.Background()

	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		rec := &database.VoteRecord{
			VoterID: i, CandidateID: 1 + i%2, Timestamp: base.Add(time.Duration(i) * time.Minute),
			VoterName: "V", CandidateName: "C", CandidateNumber: int(1 + i%2), VoterClass: "10B",
		}
		require.NoError(t, repo.Add(ctx, rec))
		assert.NotZero(t, rec.ID)
	}

	t.Run("one entry per voter", func(t *testing.T) {
		err := repo.Add(ctx, &database.VoteRecord{VoterID: 1, CandidateID: 1, Timestamp: base})
		assert.ErrorIs(t, err, database.ErrDuplicateKey)
	})

	t.Run("inclusive time range", func(t *testing.T) {
		got, err := repo.GetByTimeRange(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(1), got[0].VoterID)
		assert.Equal(t, int64(2), got[1].VoterID)
	})

	t.Run("by candidate", func(t *testing.T) {
		got, err := repo.GetByCandidateID(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		counts, err := repo.CountByCandidate(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int{1: 1, 2: 2}, counts)
	})

	t.Run("delete by voter", func(t *testing.T) {
		found, err := repo.DeleteByVoterID(ctx, 2)
		require.NoError(t, err)
		assert.True(t, found)

		found, err = repo.DeleteByVoterID(ctx, 2)
		require.NoError(t, err)
		assert.False(t, found)

		_, err = repo.GetByVoterID(ctx, 2)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		all, err := repo.All(ctx)
		require.NoError(t, err)
		last := all[len(all)-1].ID

		require.NoError(t, repo.Clear(ctx))
		rec := &database.VoteRecord{VoterID: 9, CandidateID: 1, Timestamp: base}
		require.NoError(t, repo.Add(ctx, rec))
		assert.Greater(t, rec.ID, last)
	})
}

func TestAdminRepository(t *testing.T) {
	store := dbtest.NewStore(t)
	repo := repositories.NewAdminRepository(store)
	ctx := context.Background()

	next, err := repo.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	require.NoError(t, repo.Add(ctx, &database.Admin{
		ID: 1, Username: "admin", Password: "admin123", Role: "super_admin",
		Permissions: database.StringList{"view", "reset"},
	}))

	err = repo.Add(ctx, &database.Admin{ID: 2, Username: "admin", Password: "x"})
	assert.ErrorIs(t, err, database.ErrDuplicateKey)

	a, err := repo.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, a.Permissions.Contains("reset"))

	supers, err := repo.GetByRole(ctx, "super_admin")
	require.NoError(t, err)
	assert.Len(t, supers, 1)

	next, err = repo.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestAuditLogRepository(t *testing.T) {
	store := dbtest.NewStore(t)
	repo := repositories.NewAuditLogRepository(store)
	ctx := context.Background()

	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	actions := []database.AuditAction{database.ActionVoteCast, database.ActionVoteCast, database.ActionResetAllVotes}
	for i, action := range actions {
		require.NoError(t, repo.Add(ctx, &database.AuditEntry{
			Action: action, UserID: "admin", Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, database.ActionResetAllVotes, all[0].Action)

	casts, err := repo.GetByAction(ctx, database.ActionVoteCast)
	require.NoError(t, err)
	assert.Len(t, casts, 2)

	start := base.Add(time.Hour)
	page, err := repo.Query(ctx, repositories.AuditFilter{StartTime: &start, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, database.ActionResetAllVotes, page[0].Action)

	err = repo.Add(ctx, &database.AuditEntry{})
	assert.ErrorIs(t, err, database.ErrValidation)

	require.NoError(t, repo.Clear(ctx))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithTxSharesOneUnit(t *testing.T) {
	store := dbtest.NewStore(t)
	voters := repositories.NewVoterRepository(store)
	audit := repositories.NewAuditLogRepository(store)
	ctx := context.Background()

	err := store.InTx(ctx, func(tx *sql.Tx) error {
		if err := voters.WithTx(tx).Add(ctx, &database.Voter{ID: 1, Username: "a", Name: "A"}); err != nil {
			return err
		}
		if err := audit.WithTx(tx).Add(ctx, &database.AuditEntry{Action: database.ActionAdminAdded}); err != nil {
			return err
		}
		return voters.WithTx(tx).Add(ctx, &database.Voter{ID: 1, Username: "b", Name: "B"})
	})
	require.ErrorIs(t, err, database.ErrDuplicateKey)

	n, err := voters.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = audit.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
