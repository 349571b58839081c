package repository

import (
	"context"
	"testing"

	"spinwheel/repository/testutil"
	"spinwheel/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		testDB.Truncate(t)

		user, err := repo.Create(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), user.Coins)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)

		byName, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byName.ID)
	})

	t.Run("missing user returns nil", func(t *testing.T) {
		testDB.Truncate(t)

		user, err := repo.GetByID(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		testDB.Truncate(t)

		_, err := repo.Create(ctx, "bob")
		require.NoError(t, err)
		_, err = repo.Create(ctx, "bob")
		assert.ErrorIs(t, err, service.ErrConflict)
	})

	t.Run("add and deduct coins", func(t *testing.T) {
		testDB.Truncate(t)
		user := testutil.InsertUser(t, testDB.DB, "carol", 1000)

		balance, err := repo.AddCoins(ctx, user.ID, 250)
		require.NoError(t, err)
		assert.Equal(t, int64(1250), balance)

		balance, err = repo.DeductCoins(ctx, user.ID, 1250)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("deduct never goes negative", func(t *testing.T) {
		testDB.Truncate(t)
		user := testutil.InsertUser(t, testDB.DB, "dave", 400)

		_, err := repo.DeductCoins(ctx, user.ID, 500)
		assert.ErrorIs(t, err, service.ErrInsufficientFunds)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(400), got.Coins)

		_, err = repo.DeductCoins(ctx, 9999, 1)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("list and total", func(t *testing.T) {
		testDB.Truncate(t)
		testutil.InsertUser(t, testDB.DB, "u1", 100)
		testutil.InsertUser(t, testDB.DB, "u2", 250)

		users, err := repo.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "u1", users[0].Username)

		total, err := repo.TotalCoins(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(350), total)
	})
}
