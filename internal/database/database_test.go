package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/dbtest"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

func TestOpenUnreachablePathIsSchemaError(t *testing.T) {
	cfg := config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "missing", "dir", "election.db"),
	}

	_, err := database.Open(cfg, logger.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrSchema)
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := database.Open(config.DatabaseConfig{Type: "oracle"}, nil)
	assert.ErrorIs(t, err, database.ErrSchema)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	_, err := store.DB().Exec(`INSERT INTO voters (id, username, name, class, has_voted, created_at, updated_at)
		VALUES (1, 'a', 'A', '10B', FALSE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations(ctx, store))

	h := database.CheckHealth(ctx, store)
	assert.True(t, h.Healthy, h.Error)
	assert.Equal(t, database.SchemaVersion, h.SchemaVersion)
	assert.Equal(t, 1, h.Counts[database.VotersTable])
	assert.ElementsMatch(t, database.CollectionNames(), h.Collections)
}

func TestDestroyDropsEverything(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.Destroy(ctx))

	h := database.CheckHealth(ctx, store)
	assert.False(t, h.Healthy)
	assert.ElementsMatch(t, database.CollectionNames(), h.Missing)
	assert.Equal(t, 0, h.SchemaVersion)

	require.NoError(t, database.RunMigrations(ctx, store))
	assert.True(t, database.CheckHealth(ctx, store).Healthy)
}

func TestInTxRollsBackOnError(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO audit_logs (action, timestamp) VALUES ('X', CURRENT_TIMESTAMP)`)
		require.NoError(t, err)
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrTransactionAborted)
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&n))
	assert.Zero(t, n)
}

func TestDropAndMigrateRollBackTogether(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	_, err := store.DB().Exec(`INSERT INTO audit_logs (action, timestamp) VALUES ('KEEP', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	err = store.InTx(ctx, func(tx *sql.Tx) error {
		require.NoError(t, database.DropCollections(ctx, tx))
		require.NoError(t, database.Migrate(ctx, tx, store.Dialect()))
		return database.ErrDuplicateKey
	})
	assert.ErrorIs(t, err, database.ErrDuplicateKey)

	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&n))
	assert.Equal(t, 1, n, "dropped collections come back on rollback")
	assert.True(t, database.CheckHealth(ctx, store).Healthy)
}

func TestReadTxDoesNotBlockWriters(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	err := store.ReadTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM voters`).Scan(&n); err != nil {
			return err
		}

		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return store.InTx(writeCtx, func(w *sql.Tx) error {
			_, err := w.ExecContext(writeCtx, `INSERT INTO audit_logs (action, timestamp) VALUES ('VOTE_CAST', CURRENT_TIMESTAMP)`)
			return err
		})
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestReadTxRejectsWrites(t *testing.T) {
	store := dbtest.NewStore(t)
	ctx := context.Background()

	err := store.ReadTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO audit_logs (action, timestamp) VALUES ('X', CURRENT_TIMESTAMP)`)
		return err
	})
	assert.Error(t, err)

	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&n))
	assert.Zero(t, n)
}

func TestInTxKeepsTaxonomyErrors(t *testing.T) {
	store := dbtest.NewStore(t)

	err := store.InTx(context.Background(), func(tx *sql.Tx) error {
		return database.ErrNotFound
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.NotErrorIs(t, err, database.ErrTransactionAborted)
}

func TestTranslateUniqueViolation(t *testing.T) {
	store := dbtest.NewStore(t)

	insert := `INSERT INTO admins (id, username, password, created_at, updated_at)
		VALUES (?, 'admin', 'x', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	_, err := store.DB().Exec(insert, 1)
	require.NoError(t, err)

	_, err = store.DB().Exec(insert, 2)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
	assert.ErrorIs(t, database.Translate(err), database.ErrDuplicateKey)
}

func TestTranslateNoRows(t *testing.T) {
	assert.ErrorIs(t, database.Translate(sql.ErrNoRows), database.ErrNotFound)
	assert.ErrorIs(t, database.Translate(context.DeadlineExceeded), database.ErrTransactionAborted)
	assert.Nil(t, database.Translate(nil))
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM voters WHERE id = ? AND class = ?"
	assert.Equal(t, q, database.SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM voters WHERE id = $1 AND class = $2", database.Postgres.Rebind(q))
	assert.Equal(t, "", database.SQLite.ForUpdate())
	assert.Equal(t, " FOR UPDATE", database.Postgres.ForUpdate())
	assert.Empty(t, database.SQLite.LockCollections("voters"))
}

func TestRemoveFiles(t *testing.T) {
	cfg := dbtest.Config(t)
	store, err := database.Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	require.NoError(t, database.RemoveFiles(cfg))
	require.NoError(t, database.RemoveFiles(cfg))
}

func TestModelValidation(t *testing.T) {
	v := database.Voter{ID: 1, Username: "a", Name: "A"}
	require.NoError(t, v.Validate())

	v.HasVoted = true
	assert.ErrorIs(t, v.Validate(), database.ErrValidation)

	v.MarkVoted(2, v.CreatedAt)
	assert.NoError(t, v.Validate())

	v.ClearVote()
	assert.NoError(t, v.Validate())

	c := database.Candidate{ID: 1, Number: 1, ChairmanName: "X", Votes: -1}
	assert.ErrorIs(t, c.Validate(), database.ErrValidation)

	var list database.StringList
	require.NoError(t, list.Scan(`["a","b"]`))
	assert.True(t, list.Contains("b"))
	val, err := database.StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", val)
}
