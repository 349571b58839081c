package service

import (
	"fmt"

	"spinwheel/models"

	"github.com/shopspring/decimal"
)

// PayoutPolicy settles the pot of a finished wheel. The returned parts always sum to pot.
type PayoutPolicy func(pot int64, players int) models.Settlement

// FixedPayout pays the winner a flat amount, capped at the pot. The rest stays with the house.
func FixedPayout(amount int64) PayoutPolicy {
	return func(pot int64, players int) models.Settlement {
		winner := min(max(amount, 0), pot)
		return models.Settlement{
			Pot:    pot,
			Winner: winner,
			House:  pot - winner,
		}
	}
}

// PoolSplitPayout gives the winner and host a percentage of the pot, rounded down.
// Whatever the rounding leaves plus the app share is recorded as house.
func PoolSplitPayout(winnerPercent, hostPercent int64) (PayoutPolicy, error) {
	if winnerPercent < 0 || hostPercent < 0 || winnerPercent+hostPercent > 100 {
		return nil, fmt.Errorf("%w: pool split %d%%/%d%% is out of range", ErrValidation, winnerPercent, hostPercent)
	}

	hundred := decimal.NewFromInt(100)
	winnerShare := decimal.NewFromInt(winnerPercent).Div(hundred)
	hostShare := decimal.NewFromInt(hostPercent).Div(hundred)

	return func(pot int64, players int) models.Settlement {
		total := decimal.NewFromInt(pot)
		winner := total.Mul(winnerShare).Floor().IntPart()
		host := total.Mul(hostShare).Floor().IntPart()
		return models.Settlement{
			Pot:    pot,
			Winner: winner,
			Host:   host,
			House:  pot - winner - host,
		}
	}, nil
}

// SettlementTransfers converts a settlement into the ledger credits for winner and host
func SettlementTransfers(wheel *models.Wheel, winnerID int64, s models.Settlement) []Transfer {
	meta := models.WheelMeta(wheel.ID)
	var transfers []Transfer
	if s.Winner > 0 {
		transfers = append(transfers, Transfer{UserID: winnerID, Delta: s.Winner, Kind: models.TransactionKindWin, Meta: meta})
	}
	if s.Host > 0 {
		transfers = append(transfers, Transfer{UserID: wheel.HostID, Delta: s.Host, Kind: models.TransactionKindHostCut, Meta: meta})
	}
	return transfers
}
