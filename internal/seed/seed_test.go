package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/dbtest"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
)

func TestEmbeddedDefaults(t *testing.T) {
	voters, err := Voters()
	require.NoError(t, err)
	require.Len(t, voters, 107)
	assert.Equal(t, "siswa001", voters[0].Username)
	assert.Equal(t, "siswa107", voters[106].Username)
	for _, v := range voters {
		assert.NoError(t, v.Validate())
		assert.False(t, v.HasVoted)
	}

	candidates, err := Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	for i, c := range candidates {
		assert.Equal(t, i+1, c.Number)
		assert.Zero(t, c.Votes)
		assert.NotEmpty(t, c.Mission)
	}

	admins, err := Admins()
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "admin", admins[0].Username)
	assert.True(t, admins[0].Permissions.Contains("reset"))
}

func TestInitializeIsIdempotent(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	s := NewSeeder(store, nil)

	res, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Voters: 107, Candidates: 3, Admins: 2}, res)

	res, err = s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	n, err := repositories.NewVoterRepository(store).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 107, n)
}

func TestInitializeFillsOnlyEmptyCollections(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	s := NewSeeder(store, nil)

	_, err := s.Initialize(ctx)
	require.NoError(t, err)
	require.NoError(t, repositories.NewAdminRepository(store).Clear(ctx))

	res, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Admins: 2}, res)
}
