package models

import (
	"fmt"
	"time"
)

// TransactionKind represents the type of balance change
type TransactionKind string

const (
	TransactionKindEntry   TransactionKind = "entry"
	TransactionKindWin     TransactionKind = "win"
	TransactionKindRefund  TransactionKind = "refund"
	TransactionKindHostCut TransactionKind = "host_cut"
	TransactionKindGrant   TransactionKind = "grant"
)

// IsValid reports whether k is a known transaction kind
func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindEntry, TransactionKindWin, TransactionKindRefund, TransactionKindHostCut, TransactionKindGrant:
		return true
	}
	return false
}

// IsDebit returns true for kinds that remove coins from a user
func (k TransactionKind) IsDebit() bool {
	return k == TransactionKindEntry
}

// Transaction is an immutable ledger entry. Amount is signed: negative for debits.
type Transaction struct {
	ID            int64           `db:"id" json:"id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Amount        int64           `db:"amount" json:"amount"`
	Kind          TransactionKind `db:"kind" json:"kind"`
	Meta          string          `db:"meta" json:"meta"`
	BalanceBefore int64           `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64           `db:"balance_after" json:"balance_after"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// WheelMeta builds the ledger meta reference for a wheel
func WheelMeta(wheelID int64) string {
	return fmt.Sprintf("wheel:%d", wheelID)
}
