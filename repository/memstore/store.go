// Package memstore is an in-process implementation of the unit of work and
// repositories. A unit of work holds the store lock from Begin until Commit or
// Rollback, so every unit is serializable and row locks are implied.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"spinwheel/events"
	"spinwheel/models"
	"spinwheel/service"

	"github.com/jonboulle/clockwork"
)

type state struct {
	users        map[int64]models.User
	wheels       map[int64]models.Wheel
	joins        map[int64]models.Join
	transactions []models.Transaction

	nextUserID  int64
	nextWheelID int64
	nextJoinID  int64
	nextTxID    int64
}

func newState() *state {
	return &state{
		users:  make(map[int64]models.User),
		wheels: make(map[int64]models.Wheel),
		joins:  make(map[int64]models.Join),
	}
}

func (s *state) clone() *state {
	c := *s
	c.users = maps.Clone(s.users)
	c.wheels = maps.Clone(s.wheels)
	c.joins = maps.Clone(s.joins)
	// append-only, so sharing the backing array up to len is safe
	c.transactions = s.transactions[:len(s.transactions):len(s.transactions)]
	return &c
}

// Store owns the committed state
type Store struct {
	mu    sync.Mutex
	state *state
	bus   *events.Bus
	clock clockwork.Clock
}

// NewStore creates an empty store whose units of work flush events to bus
func NewStore(bus *events.Bus, clock clockwork.Clock) *Store {
	return &Store{
		state: newState(),
		bus:   bus,
		clock: clock,
	}
}

// Create implements service.UnitOfWorkFactory
func (s *Store) Create() service.UnitOfWork {
	return &unitOfWork{
		store:            s,
		transactionalBus: events.NewTransactionalBus(s.bus),
	}
}

// NewUnitOfWorkFactory returns the store as a unit of work factory
func NewUnitOfWorkFactory(store *Store) service.UnitOfWorkFactory {
	return store
}

type unitOfWork struct {
	store            *Store
	ctx              context.Context
	working          *state
	transactionalBus *events.TransactionalBus
}

// Begin takes the store lock and snapshots the committed state
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.working != nil {
		return fmt.Errorf("transaction already started")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.store.mu.Lock()
	u.ctx = ctx
	u.working = u.store.state.clone()
	return nil
}

// Commit publishes the working state and flushes pending events
func (u *unitOfWork) Commit() error {
	if u.working == nil {
		return fmt.Errorf("no transaction to commit")
	}

	u.store.state = u.working
	u.working = nil
	u.store.mu.Unlock()

	return u.transactionalBus.Flush(u.ctx)
}

// Rollback drops the working state. It is a no-op after Commit.
func (u *unitOfWork) Rollback() error {
	if u.working == nil {
		return nil
	}

	u.working = nil
	u.store.mu.Unlock()
	u.transactionalBus.Discard()
	return nil
}

func (u *unitOfWork) mustBegin() *state {
	if u.working == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.working
}

func (u *unitOfWork) UserRepository() service.UserRepository {
	return &userRepository{s: u.mustBegin(), clock: u.store.clock}
}

func (u *unitOfWork) TransactionRepository() service.TransactionRepository {
	return &transactionRepository{s: u.mustBegin(), clock: u.store.clock}
}

func (u *unitOfWork) WheelRepository() service.WheelRepository {
	return &wheelRepository{s: u.mustBegin(), clock: u.store.clock}
}

func (u *unitOfWork) JoinRepository() service.JoinRepository {
	return &joinRepository{s: u.mustBegin()}
}

func (u *unitOfWork) EventBus() service.EventPublisher {
	return u.transactionalBus
}
