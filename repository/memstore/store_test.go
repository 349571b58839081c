package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"spinwheel/events"
	"spinwheel/models"
	"spinwheel/service"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *events.Bus) {
	bus := events.NewSyncBus()
	return NewStore(bus, clockwork.NewFakeClock()), bus
}

func seedUser(t *testing.T, store *Store, name string, coins int64) *models.User {
	t.Helper()
	ctx := context.Background()
	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	user, err := uow.UserRepository().Create(ctx, name)
	require.NoError(t, err)
	if coins > 0 {
		user.Coins, err = uow.UserRepository().AddCoins(ctx, user.ID, coins)
		require.NoError(t, err)
	}
	require.NoError(t, uow.Commit())
	return user
}

func TestStore_RollbackDiscardsEverything(t *testing.T) {
	store, bus := newTestStore()
	ctx := context.Background()
	user := seedUser(t, store, "alice", 1000)

	var received []events.Event
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, e events.Event) {
		received = append(received, e)
	})

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	_, err := service.ApplyTransfer(ctx, uow, service.Transfer{UserID: user.ID, Delta: -300, Kind: models.TransactionKindEntry})
	require.NoError(t, err)
	require.NoError(t, uow.Rollback())

	check := store.Create()
	require.NoError(t, check.Begin(ctx))
	defer check.Rollback()

	got, err := check.UserRepository().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Coins)

	history, err := check.TransactionRepository().GetByUser(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, received)
}

func TestStore_CommitFlushesAfterUnlock(t *testing.T) {
	store, bus := newTestStore()
	ctx := context.Background()
	user := seedUser(t, store, "alice", 1000)

	// a handler that opens its own unit of work must not deadlock
	var observed int64
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, e events.Event) {
		uow := store.Create()
		require.NoError(t, uow.Begin(ctx))
		defer uow.Rollback()
		u, _ := uow.UserRepository().GetByID(ctx, user.ID)
		observed = u.Coins
	})

	_, err := service.NewLedgerService(store).Transfer(ctx, service.Transfer{
		UserID: user.ID, Delta: 50, Kind: models.TransactionKindGrant,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1050), observed)
}

func TestStore_ReturnedRecordsAreCopies(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	user := seedUser(t, store, "alice", 1000)

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	got, err := uow.UserRepository().GetByID(ctx, user.ID)
	require.NoError(t, err)
	got.Coins = 1
	require.NoError(t, uow.Commit())

	uow = store.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	again, err := uow.UserRepository().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.Coins)
}

func TestStore_UnitsOfWorkAreSerialized(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	user := seedUser(t, store, "alice", 1000)
	ledger := service.NewLedgerService(store)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.Transfer(ctx, service.Transfer{UserID: user.ID, Delta: -30, Kind: models.TransactionKindEntry})
		}()
	}
	wg.Wait()

	total, err := ledger.TotalCoins(ctx)
	require.NoError(t, err)
	// 33 debits of 30 fit into 1000
	assert.Equal(t, int64(10), total)
}

func TestJoinRepository_OrderingAndElimination(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	host := seedUser(t, store, "host", 0)
	a := seedUser(t, store, "a", 0)
	b := seedUser(t, store, "b", 0)

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	wheel := &models.Wheel{HostID: host.ID, EntryFee: 10, Status: models.WheelStatusPending}
	require.NoError(t, uow.WheelRepository().Create(ctx, wheel))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := &models.Join{WheelID: wheel.ID, UserID: b.ID, JoinedAt: base.Add(time.Second)}
	first := &models.Join{WheelID: wheel.ID, UserID: a.ID, JoinedAt: base}
	require.NoError(t, uow.JoinRepository().Create(ctx, second))
	require.NoError(t, uow.JoinRepository().Create(ctx, first))

	err := uow.JoinRepository().Create(ctx, &models.Join{WheelID: wheel.ID, UserID: a.ID, JoinedAt: base})
	assert.ErrorIs(t, err, service.ErrConflict)

	active, err := uow.JoinRepository().GetActiveByWheel(ctx, wheel.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, a.ID, active[0].UserID)

	require.NoError(t, uow.JoinRepository().MarkEliminated(ctx, first.ID, base.Add(time.Minute)))
	assert.ErrorIs(t, uow.JoinRepository().MarkEliminated(ctx, first.ID, base), service.ErrInvalidState)

	active, err = uow.JoinRepository().GetActiveByWheel(ctx, wheel.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].UserID)

	all, err := uow.JoinRepository().GetAllByWheel(ctx, wheel.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Username)
	assert.NotNil(t, all[0].EliminatedAt)
}

func TestWheelRepository_GuardedUpdate(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	host := seedUser(t, store, "host", 0)

	uow := store.Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	wheel := &models.Wheel{HostID: host.ID, EntryFee: 10, Status: models.WheelStatusPending}
	require.NoError(t, uow.WheelRepository().Create(ctx, wheel))

	require.NoError(t, wheel.Abort(time.Now()))
	require.NoError(t, uow.WheelRepository().UpdateStatus(ctx, wheel, models.WheelStatusPending))

	wheel.Status = models.WheelStatusRunning
	err := uow.WheelRepository().UpdateStatus(ctx, wheel, models.WheelStatusPending)
	assert.ErrorIs(t, err, service.ErrInvalidState)

	got, err := uow.WheelRepository().GetByID(ctx, wheel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WheelStatusAborted, got.Status)
}
