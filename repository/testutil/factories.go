package testutil

import (
	"context"
	"testing"
	"time"

	"spinwheel/database"
	"spinwheel/models"

	"github.com/stretchr/testify/require"
)

// InsertUser creates a user row with the given balance directly, bypassing the ledger
func InsertUser(t *testing.T, db *database.DB, username string, coins int64) *models.User {
	t.Helper()
	var user models.User
	err := db.QueryRow(context.Background(), `
		INSERT INTO users (username, coins) VALUES ($1, $2)
		RETURNING id, username, coins, created_at, updated_at
	`, username, coins).Scan(&user.ID, &user.Username, &user.Coins, &user.CreatedAt, &user.UpdatedAt)
	require.NoError(t, err)
	return &user
}

// NewPendingWheel builds an unsaved pending wheel
func NewPendingWheel(hostID, entryFee int64, maxPlayers *int) *models.Wheel {
	deadline := time.Now().Add(3 * time.Minute).UTC().Truncate(time.Microsecond)
	return &models.Wheel{
		HostID:      hostID,
		EntryFee:    entryFee,
		MaxPlayers:  maxPlayers,
		Status:      models.WheelStatusPending,
		AutoStartAt: &deadline,
	}
}

// NewJoin builds an unsaved join at a fixed offset so ordering is deterministic
func NewJoin(wheelID, userID int64, offset time.Duration) *models.Join {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &models.Join{
		WheelID:  wheelID,
		UserID:   userID,
		JoinedAt: base.Add(offset),
	}
}
