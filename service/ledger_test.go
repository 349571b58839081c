package service

import (
	"context"
	"errors"
	"testing"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ledgerMocks struct {
	uow       *MockUnitOfWork
	factory   *MockUnitOfWorkFactory
	users     *MockUserRepository
	txs       *MockTransactionRepository
	publisher *MockEventPublisher
}

func newLedgerMocks() *ledgerMocks {
	m := &ledgerMocks{
		uow:       new(MockUnitOfWork),
		factory:   new(MockUnitOfWorkFactory),
		users:     new(MockUserRepository),
		txs:       new(MockTransactionRepository),
		publisher: new(MockEventPublisher),
	}
	m.uow.SetRepositories(m.users, m.txs, nil, nil, m.publisher)
	m.factory.On("Create").Return(m.uow)
	return m
}

func TestApplyTransfer_Debit(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	m.users.On("DeductCoins", ctx, int64(7), int64(500)).Return(int64(1500), nil)
	m.txs.On("Create", ctx, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.UserID == 7 &&
			tx.Amount == -500 &&
			tx.Kind == models.TransactionKindEntry &&
			tx.Meta == "wheel:3" &&
			tx.BalanceBefore == 2000 &&
			tx.BalanceAfter == 1500
	})).Return(nil)
	m.publisher.On("Publish", events.BalanceChangeEvent{
		UserID:     7,
		OldBalance: 2000,
		NewBalance: 1500,
		Kind:       models.TransactionKindEntry,
		Amount:     -500,
		Meta:       "wheel:3",
	}).Return()

	entry, err := ApplyTransfer(ctx, m.uow, Transfer{UserID: 7, Delta: -500, Kind: models.TransactionKindEntry, Meta: models.WheelMeta(3)})

	require.NoError(t, err)
	assert.Equal(t, int64(1500), entry.BalanceAfter)
	m.users.AssertExpectations(t)
	m.txs.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
	m.users.AssertNotCalled(t, "AddCoins", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyTransfer_Credit(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	m.users.On("AddCoins", ctx, int64(7), int64(100)).Return(int64(600), nil)
	m.txs.On("Create", ctx, mock.AnythingOfType("*models.Transaction")).Return(nil)
	m.publisher.On("Publish", mock.AnythingOfType("events.BalanceChangeEvent")).Return()

	entry, err := ApplyTransfer(ctx, m.uow, Transfer{UserID: 7, Delta: 100, Kind: models.TransactionKindWin, Meta: "wheel:3"})

	require.NoError(t, err)
	assert.Equal(t, int64(500), entry.BalanceBefore)
	assert.Equal(t, int64(600), entry.BalanceAfter)
}

func TestApplyTransfer_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	m.users.On("DeductCoins", ctx, int64(7), int64(500)).Return(int64(0), ErrInsufficientFunds)

	_, err := ApplyTransfer(ctx, m.uow, Transfer{UserID: 7, Delta: -500, Kind: models.TransactionKindEntry})

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	m.txs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.publisher.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestApplyTransfer_Validation(t *testing.T) {
	tests := []struct {
		name     string
		transfer Transfer
	}{
		{"zero amount", Transfer{UserID: 1, Delta: 0, Kind: models.TransactionKindGrant}},
		{"missing user", Transfer{UserID: 0, Delta: 10, Kind: models.TransactionKindGrant}},
		{"unknown kind", Transfer{UserID: 1, Delta: 10, Kind: "bonus"}},
		{"credit entry", Transfer{UserID: 1, Delta: 10, Kind: models.TransactionKindEntry}},
		{"debit refund", Transfer{UserID: 1, Delta: -10, Kind: models.TransactionKindRefund}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newLedgerMocks()
			_, err := ApplyTransfer(context.Background(), m.uow, tt.transfer)
			assert.ErrorIs(t, err, ErrValidation)
			m.users.AssertNotCalled(t, "AddCoins", mock.Anything, mock.Anything, mock.Anything)
			m.users.AssertNotCalled(t, "DeductCoins", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestLedgerService_TransferBatch_Commits(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)
	m.users.On("AddCoins", ctx, int64(1), int64(500)).Return(int64(500), nil)
	m.users.On("AddCoins", ctx, int64(2), int64(500)).Return(int64(900), nil)
	m.txs.On("Create", ctx, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.Anything).Return()

	ledger := NewLedgerService(m.factory)
	entries, err := ledger.TransferBatch(ctx, []Transfer{
		{UserID: 1, Delta: 500, Kind: models.TransactionKindRefund, Meta: "wheel:9"},
		{UserID: 2, Delta: 500, Kind: models.TransactionKindRefund, Meta: "wheel:9"},
	})

	require.NoError(t, err)
	assert.Len(t, entries, 2)
	m.uow.AssertExpectations(t)
	m.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestLedgerService_TransferBatch_FailureSkipsCommit(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)
	m.users.On("AddCoins", ctx, int64(1), int64(500)).Return(int64(500), nil)
	m.users.On("AddCoins", ctx, int64(2), int64(500)).Return(int64(0), errors.New("connection reset"))
	m.txs.On("Create", ctx, mock.Anything).Return(nil)
	m.publisher.On("Publish", mock.Anything).Return()

	ledger := NewLedgerService(m.factory)
	_, err := ledger.TransferBatch(ctx, []Transfer{
		{UserID: 1, Delta: 500, Kind: models.TransactionKindRefund},
		{UserID: 2, Delta: 500, Kind: models.TransactionKindRefund},
	})

	assert.ErrorContains(t, err, "transfer 2 of 2 failed")
	m.uow.AssertNotCalled(t, "Commit")
	m.uow.AssertCalled(t, "Rollback")
}

func TestLedgerService_History_UnknownUser(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)
	m.users.On("GetByID", ctx, int64(99)).Return(nil, nil)

	_, err := NewLedgerService(m.factory).History(ctx, 99, 0)

	assert.ErrorIs(t, err, ErrNotFound)
	m.txs.AssertNotCalled(t, "GetByUser", mock.Anything, mock.Anything, mock.Anything)
}
