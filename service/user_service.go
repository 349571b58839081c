package service

import (
	"context"
	"fmt"
	"strings"

	"spinwheel/models"

	log "github.com/sirupsen/logrus"
)

const (
	maxUsernameLength = 32
	signupMeta        = "signup"
	seedMeta          = "seed"
)

// userService implements the UserService interface
type userService struct {
	uowFactory      UnitOfWorkFactory
	startingBalance int64
}

// NewUserService creates a new user service
func NewUserService(uowFactory UnitOfWorkFactory, startingBalance int64) UserService {
	return &userService{
		uowFactory:      uowFactory,
		startingBalance: startingBalance,
	}
}

// CreateUser registers a new user and grants the starting balance
func (s *userService) CreateUser(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username must be 1-%d characters", ErrValidation, maxUsernameLength)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := s.createWithGrant(ctx, uow, username, s.startingBalance, signupMeta)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":   user.ID,
		"username": user.Username,
		"coins":    user.Coins,
	}).Info("User created")

	return user, nil
}

// EnsureAdmin returns the admin account, creating it with coins on first start
func (s *userService) EnsureAdmin(ctx context.Context, username string, coins int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	existing, err := uow.UserRepository().GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check admin user: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	admin, err := s.createWithGrant(ctx, uow, username, coins, seedMeta)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":   admin.ID,
		"username": admin.Username,
		"coins":    admin.Coins,
	}).Info("Seeded admin user")

	return admin, nil
}

func (s *userService) createWithGrant(ctx context.Context, uow UnitOfWork, username string, coins int64, meta string) (*models.User, error) {
	existing, err := uow.UserRepository().GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username %q is taken", ErrConflict, username)
	}

	user, err := uow.UserRepository().Create(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if coins > 0 {
		entry, err := ApplyTransfer(ctx, uow, Transfer{
			UserID: user.ID,
			Delta:  coins,
			Kind:   models.TransactionKindGrant,
			Meta:   meta,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to grant starting balance: %w", err)
		}
		user.Coins = entry.BalanceAfter
	}

	return user, nil
}

// GetUser returns a user by id
func (s *userService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return user, nil
}

// ListUsers returns users ordered by id
func (s *userService) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	limit = clampLimit(limit, defaultHistoryLimit, maxHistoryLimit)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	users, err := uow.UserRepository().List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
