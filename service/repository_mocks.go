package service

import (
	"context"
	"time"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) AddCoins(ctx context.Context, id int64, amount int64) (int64, error) {
	args := m.Called(ctx, id, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) DeductCoins(ctx context.Context, id int64, amount int64) (int64, error) {
	args := m.Called(ctx, id, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, limit int) ([]*models.User, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockUserRepository) TotalCoins(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByMeta(ctx context.Context, meta string) ([]*models.Transaction, error) {
	args := m.Called(ctx, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

// MockWheelRepository is a mock implementation of WheelRepository
type MockWheelRepository struct {
	mock.Mock
}

func (m *MockWheelRepository) Create(ctx context.Context, wheel *models.Wheel) error {
	args := m.Called(ctx, wheel)
	return args.Error(0)
}

func (m *MockWheelRepository) GetByID(ctx context.Context, id int64) (*models.Wheel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wheel), args.Error(1)
}

func (m *MockWheelRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Wheel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wheel), args.Error(1)
}

func (m *MockWheelRepository) List(ctx context.Context, status *models.WheelStatus, limit int) ([]*models.Wheel, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wheel), args.Error(1)
}

func (m *MockWheelRepository) CountByStatus(ctx context.Context, status models.WheelStatus) (int, error) {
	args := m.Called(ctx, status)
	return args.Int(0), args.Error(1)
}

func (m *MockWheelRepository) UpdateStatus(ctx context.Context, wheel *models.Wheel, from models.WheelStatus) error {
	args := m.Called(ctx, wheel, from)
	return args.Error(0)
}

func (m *MockWheelRepository) LockForCreate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockJoinRepository is a mock implementation of JoinRepository
type MockJoinRepository struct {
	mock.Mock
}

func (m *MockJoinRepository) Create(ctx context.Context, join *models.Join) error {
	args := m.Called(ctx, join)
	return args.Error(0)
}

func (m *MockJoinRepository) GetByWheelAndUser(ctx context.Context, wheelID, userID int64) (*models.Join, error) {
	args := m.Called(ctx, wheelID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Join), args.Error(1)
}

func (m *MockJoinRepository) CountByWheel(ctx context.Context, wheelID int64) (int, error) {
	args := m.Called(ctx, wheelID)
	return args.Int(0), args.Error(1)
}

func (m *MockJoinRepository) GetActiveByWheel(ctx context.Context, wheelID int64) ([]*models.Join, error) {
	args := m.Called(ctx, wheelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Join), args.Error(1)
}

func (m *MockJoinRepository) GetAllByWheel(ctx context.Context, wheelID int64) ([]*models.Participant, error) {
	args := m.Called(ctx, wheelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Participant), args.Error(1)
}

func (m *MockJoinRepository) MarkEliminated(ctx context.Context, joinID int64, at time.Time) error {
	args := m.Called(ctx, joinID, at)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork.
// Repositories are attached with SetRepositories rather than mocked getters.
type MockUnitOfWork struct {
	mock.Mock
	userRepo        UserRepository
	transactionRepo TransactionRepository
	wheelRepo       WheelRepository
	joinRepo        JoinRepository
	eventBus        EventPublisher
}

// SetRepositories attaches the repositories returned by the getters. Nil values are allowed.
func (m *MockUnitOfWork) SetRepositories(userRepo UserRepository, transactionRepo TransactionRepository, wheelRepo WheelRepository, joinRepo JoinRepository, eventBus EventPublisher) {
	m.userRepo = userRepo
	m.transactionRepo = transactionRepo
	m.wheelRepo = wheelRepo
	m.joinRepo = joinRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository               { return m.userRepo }
func (m *MockUnitOfWork) TransactionRepository() TransactionRepository { return m.transactionRepo }
func (m *MockUnitOfWork) WheelRepository() WheelRepository             { return m.wheelRepo }
func (m *MockUnitOfWork) JoinRepository() JoinRepository               { return m.joinRepo }
func (m *MockUnitOfWork) EventBus() EventPublisher                     { return m.eventBus }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockWheelScheduler is a mock implementation of WheelScheduler
type MockWheelScheduler struct {
	mock.Mock
}

func (m *MockWheelScheduler) ScheduleAutoStart(wheelID int64, delay time.Duration) {
	m.Called(wheelID, delay)
}

func (m *MockWheelScheduler) StartNow(ctx context.Context, wheelID int64) error {
	args := m.Called(ctx, wheelID)
	return args.Error(0)
}

func (m *MockWheelScheduler) AbortAndRefund(ctx context.Context, wheelID int64) error {
	args := m.Called(ctx, wheelID)
	return args.Error(0)
}

func (m *MockWheelScheduler) Cancel(wheelID int64) {
	m.Called(wheelID)
}
