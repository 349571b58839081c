package service

import (
	"context"
	"testing"
	"time"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testRules = WheelRules{
	MinQuorum:         3,
	AutoStartDelay:    3 * time.Minute,
	SingleActiveWheel: true,
}

type wheelMocks struct {
	*ledgerMocks
	wheels    *MockWheelRepository
	joins     *MockJoinRepository
	scheduler *MockWheelScheduler
	clock     *clockwork.FakeClock
}

func newWheelMocks(ctx context.Context) *wheelMocks {
	lm := newLedgerMocks()
	m := &wheelMocks{
		ledgerMocks: lm,
		wheels:      new(MockWheelRepository),
		joins:       new(MockJoinRepository),
		scheduler:   new(MockWheelScheduler),
		clock:       clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	m.uow.SetRepositories(lm.users, lm.txs, m.wheels, m.joins, lm.publisher)
	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)
	return m
}

func (m *wheelMocks) service() WheelService {
	return NewWheelService(m.factory, m.scheduler, m.clock, testRules)
}

func intPtr(v int) *int { return &v }

func TestWheelService_CreateWheel(t *testing.T) {
	ctx := context.Background()
	m := newWheelMocks(ctx)

	m.uow.On("Commit").Return(nil)
	m.users.On("GetByID", ctx, int64(1)).Return(&models.User{ID: 1}, nil)
	m.wheels.On("LockForCreate", ctx).Return(nil)
	m.wheels.On("CountByStatus", ctx, models.WheelStatusPending).Return(0, nil)
	m.wheels.On("Create", ctx, mock.MatchedBy(func(w *models.Wheel) bool {
		return w.HostID == 1 &&
			w.EntryFee == 500 &&
			w.Status == models.WheelStatusPending &&
			w.AutoStartAt.Equal(m.clock.Now().Add(3*time.Minute))
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Wheel).ID = 11
	}).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.WheelCreatedEvent")).Return()
	m.scheduler.On("ScheduleAutoStart", int64(11), 3*time.Minute).Return()

	wheel, err := m.service().CreateWheel(ctx, 1, 500, intPtr(5))

	require.NoError(t, err)
	assert.Equal(t, int64(11), wheel.ID)
	m.uow.AssertExpectations(t)
	m.wheels.AssertExpectations(t)
	m.scheduler.AssertExpectations(t)
}

func TestWheelService_CreateWheel_Validation(t *testing.T) {
	m := newWheelMocks(context.Background())
	svc := m.service()

	_, err := svc.CreateWheel(context.Background(), 1, 0, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateWheel(context.Background(), 1, 100, intPtr(2))
	assert.ErrorIs(t, err, ErrValidation)

	m.factory.AssertNotCalled(t, "Create")
}

func TestWheelService_CreateWheel_PendingWheelExists(t *testing.T) {
	ctx := context.Background()
	m := newWheelMocks(ctx)

	m.users.On("GetByID", ctx, int64(1)).Return(&models.User{ID: 1}, nil)
	m.wheels.On("LockForCreate", ctx).Return(nil)
	m.wheels.On("CountByStatus", ctx, models.WheelStatusPending).Return(1, nil)

	_, err := m.service().CreateWheel(ctx, 1, 500, nil)

	assert.ErrorIs(t, err, ErrConflict)
	m.wheels.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.scheduler.AssertNotCalled(t, "ScheduleAutoStart", mock.Anything, mock.Anything)
}

func TestWheelService_CreateWheel_UnknownHost(t *testing.T) {
	ctx := context.Background()
	m := newWheelMocks(ctx)

	m.users.On("GetByID", ctx, int64(8)).Return(nil, nil)

	_, err := m.service().CreateWheel(ctx, 8, 500, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWheelService_JoinWheel_RejectsWithoutCharging(t *testing.T) {
	pending := &models.Wheel{ID: 2, EntryFee: 500, Status: models.WheelStatusPending, MaxPlayers: intPtr(3)}
	running := &models.Wheel{ID: 2, EntryFee: 500, Status: models.WheelStatusRunning}

	tests := []struct {
		name    string
		setup   func(ctx context.Context, m *wheelMocks)
		wantErr error
	}{
		{
			name: "missing wheel",
			setup: func(ctx context.Context, m *wheelMocks) {
				m.wheels.On("GetByIDForUpdate", ctx, int64(2)).Return(nil, nil)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "wheel not pending",
			setup: func(ctx context.Context, m *wheelMocks) {
				m.wheels.On("GetByIDForUpdate", ctx, int64(2)).Return(running, nil)
			},
			wantErr: ErrInvalidState,
		},
		{
			name: "duplicate join",
			setup: func(ctx context.Context, m *wheelMocks) {
				m.wheels.On("GetByIDForUpdate", ctx, int64(2)).Return(pending, nil)
				m.users.On("GetByID", ctx, int64(7)).Return(&models.User{ID: 7, Coins: 1000}, nil)
				m.joins.On("GetByWheelAndUser", ctx, int64(2), int64(7)).Return(&models.Join{ID: 1}, nil)
			},
			wantErr: ErrConflict,
		},
		{
			name: "wheel full",
			setup: func(ctx context.Context, m *wheelMocks) {
				m.wheels.On("GetByIDForUpdate", ctx, int64(2)).Return(pending, nil)
				m.users.On("GetByID", ctx, int64(7)).Return(&models.User{ID: 7, Coins: 1000}, nil)
				m.joins.On("GetByWheelAndUser", ctx, int64(2), int64(7)).Return(nil, nil)
				m.joins.On("CountByWheel", ctx, int64(2)).Return(3, nil)
			},
			wantErr: ErrConflict,
		},
		{
			name: "insufficient funds",
			setup: func(ctx context.Context, m *wheelMocks) {
				m.wheels.On("GetByIDForUpdate", ctx, int64(2)).Return(pending, nil)
				m.users.On("GetByID", ctx, int64(7)).Return(&models.User{ID: 7, Coins: 10}, nil)
				m.joins.On("GetByWheelAndUser", ctx, int64(2), int64(7)).Return(nil, nil)
				m.joins.On("CountByWheel", ctx, int64(2)).Return(0, nil)
				m.users.On("DeductCoins", ctx, int64(7), int64(500)).Return(int64(0), ErrInsufficientFunds)
			},
			wantErr: ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newWheelMocks(ctx)
			tt.setup(ctx, m)

			_, err := m.service().JoinWheel(ctx, 2, 7)

			assert.ErrorIs(t, err, tt.wantErr)
			m.uow.AssertNotCalled(t, "Commit")
			m.joins.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			m.txs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestWheelService_JoinWheel_FillStartsWheel(t *testing.T) {
	ctx := context.Background()
	m := newWheelMocks(ctx)

	wheel := &models.Wheel{ID: 2, EntryFee: 500, Status: models.WheelStatusPending, MaxPlayers: intPtr(3)}
	m.uow.On("Commit").Return(nil)
	m.wheels.On("GetByIDForUpdate", ctx, int64(2)).Return(wheel, nil)
	m.users.On("GetByID", ctx, int64(7)).Return(&models.User{ID: 7, Coins: 1000}, nil)
	m.joins.On("GetByWheelAndUser", ctx, int64(2), int64(7)).Return(nil, nil)
	m.joins.On("CountByWheel", ctx, int64(2)).Return(2, nil)
	m.users.On("DeductCoins", ctx, int64(7), int64(500)).Return(int64(500), nil)
	m.txs.On("Create", ctx, mock.Anything).Return(nil)
	m.joins.On("Create", ctx, mock.MatchedBy(func(j *models.Join) bool {
		return j.WheelID == 2 && j.UserID == 7 && j.JoinedAt.Equal(m.clock.Now())
	})).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.BalanceChangeEvent")).Return()
	m.publisher.On("Publish", events.PlayerJoinedEvent{WheelID: 2, UserID: 7, PlayerCount: 3}).Return()
	m.scheduler.On("StartNow", mock.Anything, int64(2)).Return(nil)

	join, err := m.service().JoinWheel(ctx, 2, 7)

	require.NoError(t, err)
	assert.Equal(t, int64(7), join.UserID)
	m.scheduler.AssertCalled(t, "StartNow", mock.Anything, int64(2))
	m.publisher.AssertExpectations(t)
}

func TestWheelService_ManualStartAndAbort_DelegateToScheduler(t *testing.T) {
	ctx := context.Background()
	m := newWheelMocks(ctx)

	m.scheduler.On("StartNow", ctx, int64(4)).Return(ErrInvalidState)
	m.scheduler.On("AbortAndRefund", ctx, int64(4)).Return(nil)

	svc := m.service()
	assert.ErrorIs(t, svc.ManualStart(ctx, 4), ErrInvalidState)
	assert.NoError(t, svc.AbortWheel(ctx, 4))
	m.scheduler.AssertExpectations(t)
}
