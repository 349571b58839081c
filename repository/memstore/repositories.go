package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"spinwheel/models"
	"spinwheel/service"

	"github.com/jonboulle/clockwork"
)

type userRepository struct {
	s     *state
	clock clockwork.Clock
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, user := range r.s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, nil
}

func (r *userRepository) Create(ctx context.Context, username string) (*models.User, error) {
	if existing, _ := r.GetByUsername(ctx, username); existing != nil {
		return nil, fmt.Errorf("%w: username %q is taken", service.ErrConflict, username)
	}

	r.s.nextUserID++
	now := r.clock.Now()
	user := models.User{
		ID:        r.s.nextUserID,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.users[user.ID] = user
	return &user, nil
}

func (r *userRepository) AddCoins(ctx context.Context, id int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", service.ErrValidation)
	}
	user, ok := r.s.users[id]
	if !ok {
		return 0, fmt.Errorf("%w: user %d", service.ErrNotFound, id)
	}
	user.Coins += amount
	user.UpdatedAt = r.clock.Now()
	r.s.users[id] = user
	return user.Coins, nil
}

func (r *userRepository) DeductCoins(ctx context.Context, id int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", service.ErrValidation)
	}
	user, ok := r.s.users[id]
	if !ok {
		return 0, fmt.Errorf("%w: user %d", service.ErrNotFound, id)
	}
	if user.Coins < amount {
		return 0, fmt.Errorf("%w: have %d, need %d", service.ErrInsufficientFunds, user.Coins, amount)
	}
	user.Coins -= amount
	user.UpdatedAt = r.clock.Now()
	r.s.users[id] = user
	return user.Coins, nil
}

func (r *userRepository) List(ctx context.Context, limit int) ([]*models.User, error) {
	users := make([]*models.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		users = append(users, &user)
	}
	slices.SortFunc(users, func(a, b *models.User) int { return cmp.Compare(a.ID, b.ID) })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *userRepository) TotalCoins(ctx context.Context) (int64, error) {
	var total int64
	for _, user := range r.s.users {
		total += user.Coins
	}
	return total, nil
}

type transactionRepository struct {
	s     *state
	clock clockwork.Clock
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if _, ok := r.s.users[tx.UserID]; !ok {
		return fmt.Errorf("%w: user %d", service.ErrNotFound, tx.UserID)
	}
	r.s.nextTxID++
	tx.ID = r.s.nextTxID
	tx.CreatedAt = r.clock.Now()
	r.s.transactions = append(r.s.transactions, *tx)
	return nil
}

func (r *transactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	for i := len(r.s.transactions) - 1; i >= 0 && len(txs) < limit; i-- {
		if tx := r.s.transactions[i]; tx.UserID == userID {
			txs = append(txs, &tx)
		}
	}
	return txs, nil
}

func (r *transactionRepository) GetByMeta(ctx context.Context, meta string) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	for _, tx := range r.s.transactions {
		if tx.Meta == meta {
			txs = append(txs, &tx)
		}
	}
	return txs, nil
}

type wheelRepository struct {
	s     *state
	clock clockwork.Clock
}

func (r *wheelRepository) Create(ctx context.Context, wheel *models.Wheel) error {
	if _, ok := r.s.users[wheel.HostID]; !ok {
		return fmt.Errorf("%w: host %d", service.ErrNotFound, wheel.HostID)
	}
	r.s.nextWheelID++
	wheel.ID = r.s.nextWheelID
	wheel.CreatedAt = r.clock.Now()
	r.s.wheels[wheel.ID] = *wheel
	return nil
}

func (r *wheelRepository) GetByID(ctx context.Context, id int64) (*models.Wheel, error) {
	wheel, ok := r.s.wheels[id]
	if !ok {
		return nil, nil
	}
	return &wheel, nil
}

// GetByIDForUpdate needs no extra locking: the unit of work already holds the store
func (r *wheelRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Wheel, error) {
	return r.GetByID(ctx, id)
}

func (r *wheelRepository) List(ctx context.Context, status *models.WheelStatus, limit int) ([]*models.Wheel, error) {
	var wheels []*models.Wheel
	for _, wheel := range r.s.wheels {
		if status != nil && wheel.Status != *status {
			continue
		}
		wheels = append(wheels, &wheel)
	}
	slices.SortFunc(wheels, func(a, b *models.Wheel) int { return cmp.Compare(b.ID, a.ID) })
	if len(wheels) > limit {
		wheels = wheels[:limit]
	}
	return wheels, nil
}

func (r *wheelRepository) CountByStatus(ctx context.Context, status models.WheelStatus) (int, error) {
	count := 0
	for _, wheel := range r.s.wheels {
		if wheel.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *wheelRepository) UpdateStatus(ctx context.Context, wheel *models.Wheel, from models.WheelStatus) error {
	if !from.CanTransitionTo(wheel.Status) {
		return fmt.Errorf("%w: %v", service.ErrInvalidState, models.ErrInvalidTransition)
	}
	stored, ok := r.s.wheels[wheel.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("%w: wheel %d is no longer %s", service.ErrInvalidState, wheel.ID, from)
	}

	stored.Status = wheel.Status
	stored.StartsAt = wheel.StartsAt
	stored.FinishedAt = wheel.FinishedAt
	stored.WinnerID = wheel.WinnerID
	stored.PayoutAmount = wheel.PayoutAmount
	stored.HostAmount = wheel.HostAmount
	stored.HouseAmount = wheel.HouseAmount
	r.s.wheels[wheel.ID] = stored
	return nil
}

func (r *wheelRepository) LockForCreate(ctx context.Context) error {
	return nil
}

type joinRepository struct {
	s *state
}

func (r *joinRepository) Create(ctx context.Context, join *models.Join) error {
	if _, ok := r.s.wheels[join.WheelID]; !ok {
		return fmt.Errorf("%w: wheel %d", service.ErrNotFound, join.WheelID)
	}
	if existing, _ := r.GetByWheelAndUser(ctx, join.WheelID, join.UserID); existing != nil {
		return fmt.Errorf("%w: user %d already joined wheel %d", service.ErrConflict, join.UserID, join.WheelID)
	}
	r.s.nextJoinID++
	join.ID = r.s.nextJoinID
	r.s.joins[join.ID] = *join
	return nil
}

func (r *joinRepository) GetByWheelAndUser(ctx context.Context, wheelID, userID int64) (*models.Join, error) {
	for _, join := range r.s.joins {
		if join.WheelID == wheelID && join.UserID == userID {
			return &join, nil
		}
	}
	return nil, nil
}

func (r *joinRepository) CountByWheel(ctx context.Context, wheelID int64) (int, error) {
	return len(r.byWheel(wheelID, false)), nil
}

func (r *joinRepository) GetActiveByWheel(ctx context.Context, wheelID int64) ([]*models.Join, error) {
	return r.byWheel(wheelID, true), nil
}

func (r *joinRepository) GetAllByWheel(ctx context.Context, wheelID int64) ([]*models.Participant, error) {
	participants := []*models.Participant{}
	for _, join := range r.byWheel(wheelID, false) {
		participants = append(participants, &models.Participant{
			UserID:       join.UserID,
			Username:     r.s.users[join.UserID].Username,
			JoinedAt:     join.JoinedAt,
			EliminatedAt: join.EliminatedAt,
		})
	}
	return participants, nil
}

func (r *joinRepository) MarkEliminated(ctx context.Context, joinID int64, at time.Time) error {
	join, ok := r.s.joins[joinID]
	if !ok || !join.IsActive() {
		return fmt.Errorf("%w: join %d is not active", service.ErrInvalidState, joinID)
	}
	join.EliminatedAt = &at
	r.s.joins[joinID] = join
	return nil
}

// byWheel returns a wheel's joins ordered by joined_at, id
func (r *joinRepository) byWheel(wheelID int64, activeOnly bool) []*models.Join {
	var joins []*models.Join
	for _, join := range r.s.joins {
		if join.WheelID != wheelID || (activeOnly && !join.IsActive()) {
			continue
		}
		joins = append(joins, &join)
	}
	slices.SortFunc(joins, func(a, b *models.Join) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return joins
}
