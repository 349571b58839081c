package service

import (
	"context"
	"time"

	"spinwheel/events"
	"spinwheel/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by id, returning nil when it does not exist
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByUsername retrieves a user by username, returning nil when it does not exist
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Create creates a new user with a zero balance
	Create(ctx context.Context, username string) (*models.User, error)

	// AddCoins credits a user and returns the new balance
	AddCoins(ctx context.Context, id int64, amount int64) (int64, error)

	// DeductCoins debits a user only if the balance covers amount, returning the new balance.
	// Fails with ErrInsufficientFunds or ErrNotFound when no row is updated.
	DeductCoins(ctx context.Context, id int64, amount int64) (int64, error)

	// List returns users ordered by id
	List(ctx context.Context, limit int) ([]*models.User, error)

	// TotalCoins sums every user balance
	TotalCoins(ctx context.Context) (int64, error)
}

// TransactionRepository defines the interface for the append-only ledger
type TransactionRepository interface {
	// Create appends a ledger entry and fills in its ID and CreatedAt
	Create(ctx context.Context, tx *models.Transaction) error

	// GetByUser returns a user's most recent entries first
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)

	// GetByMeta returns every entry carrying meta, oldest first
	GetByMeta(ctx context.Context, meta string) ([]*models.Transaction, error)
}

// WheelRepository defines the interface for wheel data access
type WheelRepository interface {
	// Create inserts a new wheel and fills in its ID and CreatedAt
	Create(ctx context.Context, wheel *models.Wheel) error

	// GetByID retrieves a wheel, returning nil when it does not exist
	GetByID(ctx context.Context, id int64) (*models.Wheel, error)

	// GetByIDForUpdate retrieves a wheel and locks its row until the unit of work ends
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Wheel, error)

	// List returns wheels newest first, optionally filtered by status
	List(ctx context.Context, status *models.WheelStatus, limit int) ([]*models.Wheel, error)

	// CountByStatus counts wheels in the given status
	CountByStatus(ctx context.Context, status models.WheelStatus) (int, error)

	// UpdateStatus persists wheel's status and lifecycle fields if its stored status still equals from.
	// Returns ErrInvalidState when the guard does not match.
	UpdateStatus(ctx context.Context, wheel *models.Wheel, from models.WheelStatus) error

	// LockForCreate serializes wheel creation for the rest of the unit of work
	LockForCreate(ctx context.Context) error
}

// JoinRepository defines the interface for wheel participation
type JoinRepository interface {
	// Create inserts a join; a duplicate (wheel, user) pair returns ErrConflict
	Create(ctx context.Context, join *models.Join) error

	// GetByWheelAndUser returns nil when the user has not joined
	GetByWheelAndUser(ctx context.Context, wheelID, userID int64) (*models.Join, error)

	// CountByWheel counts every join of a wheel, eliminated or not
	CountByWheel(ctx context.Context, wheelID int64) (int, error)

	// GetActiveByWheel returns non-eliminated joins ordered by joined_at, id
	GetActiveByWheel(ctx context.Context, wheelID int64) ([]*models.Join, error)

	// GetAllByWheel returns the full participant history with usernames
	GetAllByWheel(ctx context.Context, wheelID int64) ([]*models.Participant, error)

	// MarkEliminated stamps eliminated_at on an active join
	MarkEliminated(ctx context.Context, joinID int64, at time.Time) error
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction. It is a no-op after Commit.
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	TransactionRepository() TransactionRepository
	WheelRepository() WheelRepository
	JoinRepository() JoinRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// WheelScheduler is the part of the elimination engine the command surface drives
type WheelScheduler interface {
	// ScheduleAutoStart arms the auto-start deadline of a pending wheel
	ScheduleAutoStart(wheelID int64, delay time.Duration)

	// StartNow starts a pending wheel that has reached quorum
	StartNow(ctx context.Context, wheelID int64) error

	// AbortAndRefund aborts a pending wheel and refunds every participant
	AbortAndRefund(ctx context.Context, wheelID int64) error

	// Cancel stops any timer or loop held for the wheel
	Cancel(wheelID int64)
}

// WheelService is the command and query surface for wheels
type WheelService interface {
	CreateWheel(ctx context.Context, hostID int64, entryFee int64, maxPlayers *int) (*models.Wheel, error)
	JoinWheel(ctx context.Context, wheelID, userID int64) (*models.Join, error)
	ManualStart(ctx context.Context, wheelID int64) error
	AbortWheel(ctx context.Context, wheelID int64) error
	GetWheel(ctx context.Context, wheelID int64) (*models.WheelDetail, error)
	ListWheels(ctx context.Context, status *models.WheelStatus, limit int) ([]*models.Wheel, error)
	GetParticipants(ctx context.Context, wheelID int64) ([]*models.Participant, error)
}

// UserService defines the interface for user operations
type UserService interface {
	// CreateUser registers a user and grants the starting balance
	CreateUser(ctx context.Context, username string) (*models.User, error)

	// EnsureAdmin creates the admin account with coins on first start
	EnsureAdmin(ctx context.Context, username string, coins int64) (*models.User, error)

	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
}

// LedgerService exposes standalone balance operations
type LedgerService interface {
	Transfer(ctx context.Context, t Transfer) (*models.Transaction, error)
	TransferBatch(ctx context.Context, ts []Transfer) ([]*models.Transaction, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
	TotalCoins(ctx context.Context) (int64, error)
}
