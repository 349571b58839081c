package service

import (
	"context"
	"fmt"

	"spinwheel/events"
	"spinwheel/models"

	log "github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Transfer is a single signed balance adjustment. Negative Delta debits the user.
type Transfer struct {
	UserID int64
	Delta  int64
	Kind   models.TransactionKind
	Meta   string
}

func (t Transfer) validate() error {
	if t.UserID <= 0 {
		return fmt.Errorf("%w: invalid user id %d", ErrValidation, t.UserID)
	}
	if t.Delta == 0 {
		return fmt.Errorf("%w: transfer amount must not be zero", ErrValidation)
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("%w: unknown transaction kind %q", ErrValidation, t.Kind)
	}
	if t.Kind.IsDebit() != (t.Delta < 0) {
		return fmt.Errorf("%w: %s transfer cannot have amount %d", ErrValidation, t.Kind, t.Delta)
	}
	return nil
}

// ApplyTransfer adjusts a balance and appends the matching ledger entry inside uow.
// This is the single entry point for balance changes; nothing else writes coins.
func ApplyTransfer(ctx context.Context, uow UnitOfWork, t Transfer) (*models.Transaction, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var (
		balanceAfter int64
		err          error
	)
	if t.Delta < 0 {
		balanceAfter, err = uow.UserRepository().DeductCoins(ctx, t.UserID, -t.Delta)
	} else {
		balanceAfter, err = uow.UserRepository().AddCoins(ctx, t.UserID, t.Delta)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s to user %d: %w", t.Kind, t.UserID, err)
	}

	entry := &models.Transaction{
		UserID:        t.UserID,
		Amount:        t.Delta,
		Kind:          t.Kind,
		Meta:          t.Meta,
		BalanceBefore: balanceAfter - t.Delta,
		BalanceAfter:  balanceAfter,
	}
	if err := uow.TransactionRepository().Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	// flushed only after the unit of work commits
	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:     t.UserID,
		OldBalance: entry.BalanceBefore,
		NewBalance: entry.BalanceAfter,
		Kind:       t.Kind,
		Amount:     t.Delta,
		Meta:       t.Meta,
	})

	return entry, nil
}

// ApplyTransfers applies ts in order. The first failure stops the batch;
// the caller must roll back uow so earlier transfers are discarded too.
func ApplyTransfers(ctx context.Context, uow UnitOfWork, ts []Transfer) ([]*models.Transaction, error) {
	entries := make([]*models.Transaction, 0, len(ts))
	for i, t := range ts {
		entry, err := ApplyTransfer(ctx, uow, t)
		if err != nil {
			return nil, fmt.Errorf("transfer %d of %d failed: %w", i+1, len(ts), err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a ledger service that runs each call in its own unit of work
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{uowFactory: uowFactory}
}

// Transfer applies a single transfer and commits it
func (s *ledgerService) Transfer(ctx context.Context, t Transfer) (*models.Transaction, error) {
	entries, err := s.TransferBatch(ctx, []Transfer{t})
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// TransferBatch applies every transfer or none of them
func (s *ledgerService) TransferBatch(ctx context.Context, ts []Transfer) ([]*models.Transaction, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: empty transfer batch", ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	entries, err := ApplyTransfers(ctx, uow, ts)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"transfers": len(entries),
		"kind":      ts[0].Kind,
		"meta":      ts[0].Meta,
	}).Debug("Applied ledger transfers")

	return entries, nil
}

// History returns a user's ledger entries, newest first
func (s *ledgerService) History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	limit = clampLimit(limit, defaultHistoryLimit, maxHistoryLimit)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}

	history, err := uow.TransactionRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return history, nil
}

// TotalCoins sums all balances, used by audits
func (s *ledgerService) TotalCoins(ctx context.Context) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	total, err := uow.UserRepository().TotalCoins(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sum balances: %w", err)
	}
	return total, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
