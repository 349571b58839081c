package service

import (
	"context"
	"fmt"
	"time"

	"spinwheel/events"
	"spinwheel/models"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWheelListLimit = 50
	maxWheelListLimit     = 200
)

// WheelRules are the configurable game rules enforced by the wheel service
type WheelRules struct {
	MinQuorum         int
	AutoStartDelay    time.Duration
	SingleActiveWheel bool
}

// wheelService implements the WheelService interface
type wheelService struct {
	uowFactory UnitOfWorkFactory
	scheduler  WheelScheduler
	clock      clockwork.Clock
	rules      WheelRules
}

// NewWheelService creates a new wheel service
func NewWheelService(uowFactory UnitOfWorkFactory, scheduler WheelScheduler, clock clockwork.Clock, rules WheelRules) WheelService {
	return &wheelService{
		uowFactory: uowFactory,
		scheduler:  scheduler,
		clock:      clock,
		rules:      rules,
	}
}

// CreateWheel opens a new pending wheel and arms its auto-start deadline
func (s *wheelService) CreateWheel(ctx context.Context, hostID int64, entryFee int64, maxPlayers *int) (*models.Wheel, error) {
	if entryFee <= 0 {
		return nil, fmt.Errorf("%w: entry fee must be positive", ErrValidation)
	}
	if maxPlayers != nil && *maxPlayers < s.rules.MinQuorum {
		return nil, fmt.Errorf("%w: max players %d is below the quorum of %d", ErrValidation, *maxPlayers, s.rules.MinQuorum)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	host, err := uow.UserRepository().GetByID(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	if host == nil {
		return nil, fmt.Errorf("%w: host %d", ErrNotFound, hostID)
	}

	if s.rules.SingleActiveWheel {
		if err := uow.WheelRepository().LockForCreate(ctx); err != nil {
			return nil, fmt.Errorf("failed to lock wheel creation: %w", err)
		}
		pending, err := uow.WheelRepository().CountByStatus(ctx, models.WheelStatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to count pending wheels: %w", err)
		}
		if pending > 0 {
			return nil, fmt.Errorf("%w: a wheel is already open for joins", ErrConflict)
		}
	}

	deadline := s.clock.Now().Add(s.rules.AutoStartDelay)
	wheel := &models.Wheel{
		HostID:      hostID,
		EntryFee:    entryFee,
		MaxPlayers:  maxPlayers,
		Status:      models.WheelStatusPending,
		AutoStartAt: &deadline,
	}
	if err := uow.WheelRepository().Create(ctx, wheel); err != nil {
		return nil, fmt.Errorf("failed to create wheel: %w", err)
	}

	uow.EventBus().Publish(events.WheelCreatedEvent{Wheel: wheel})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.scheduler.ScheduleAutoStart(wheel.ID, s.rules.AutoStartDelay)

	log.WithFields(log.Fields{
		"wheelID":    wheel.ID,
		"hostID":     hostID,
		"entryFee":   entryFee,
		"maxPlayers": maxPlayers,
		"startsIn":   s.rules.AutoStartDelay,
	}).Info("Wheel created")

	return wheel, nil
}

// JoinWheel debits the entry fee and adds the user to a pending wheel.
// The wheel row stays locked for the whole unit so the player cap holds under concurrency.
func (s *wheelService) JoinWheel(ctx context.Context, wheelID, userID int64) (*models.Join, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheel, err := uow.WheelRepository().GetByIDForUpdate(ctx, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wheel: %w", err)
	}
	if wheel == nil {
		return nil, fmt.Errorf("%w: wheel %d", ErrNotFound, wheelID)
	}
	if !wheel.IsPending() {
		return nil, fmt.Errorf("%w: wheel %d is %s", ErrInvalidState, wheelID, wheel.Status)
	}

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}

	existing, err := uow.JoinRepository().GetByWheelAndUser(ctx, wheelID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing join: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: user %d already joined wheel %d", ErrConflict, userID, wheelID)
	}

	count, err := uow.JoinRepository().CountByWheel(ctx, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to count joins: %w", err)
	}
	if wheel.IsFull(count) {
		return nil, fmt.Errorf("%w: wheel %d is full", ErrConflict, wheelID)
	}

	if _, err := ApplyTransfer(ctx, uow, Transfer{
		UserID: userID,
		Delta:  -wheel.EntryFee,
		Kind:   models.TransactionKindEntry,
		Meta:   models.WheelMeta(wheelID),
	}); err != nil {
		return nil, err
	}

	join := &models.Join{
		WheelID:  wheelID,
		UserID:   userID,
		JoinedAt: s.clock.Now(),
	}
	if err := uow.JoinRepository().Create(ctx, join); err != nil {
		return nil, fmt.Errorf("failed to create join: %w", err)
	}

	playerCount := count + 1
	uow.EventBus().Publish(events.PlayerJoinedEvent{
		WheelID:     wheelID,
		UserID:      userID,
		PlayerCount: playerCount,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"wheelID":     wheelID,
		"userID":      userID,
		"entryFee":    wheel.EntryFee,
		"playerCount": playerCount,
	}).Info("Player joined wheel")

	if wheel.IsFull(playerCount) {
		// the request context may end before the start commits
		if err := s.scheduler.StartNow(context.WithoutCancel(ctx), wheelID); err != nil {
			log.WithFields(log.Fields{
				"wheelID": wheelID,
				"error":   err,
			}).Warn("Failed to start full wheel, auto-start will retry")
		}
	}

	return join, nil
}

// ManualStart starts a pending wheel before its deadline
func (s *wheelService) ManualStart(ctx context.Context, wheelID int64) error {
	return s.scheduler.StartNow(ctx, wheelID)
}

// AbortWheel cancels a pending wheel and refunds its players
func (s *wheelService) AbortWheel(ctx context.Context, wheelID int64) error {
	return s.scheduler.AbortAndRefund(ctx, wheelID)
}

// GetWheel returns a wheel with its full participant history
func (s *wheelService) GetWheel(ctx context.Context, wheelID int64) (*models.WheelDetail, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheel, err := uow.WheelRepository().GetByID(ctx, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wheel: %w", err)
	}
	if wheel == nil {
		return nil, fmt.Errorf("%w: wheel %d", ErrNotFound, wheelID)
	}

	participants, err := uow.JoinRepository().GetAllByWheel(ctx, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	return &models.WheelDetail{Wheel: wheel, Participants: participants}, nil
}

// ListWheels returns recent wheels, optionally filtered by status
func (s *wheelService) ListWheels(ctx context.Context, status *models.WheelStatus, limit int) ([]*models.Wheel, error) {
	limit = clampLimit(limit, defaultWheelListLimit, maxWheelListLimit)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheels, err := uow.WheelRepository().List(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wheels: %w", err)
	}
	return wheels, nil
}

// GetParticipants returns every player who joined a wheel, eliminated or not
func (s *wheelService) GetParticipants(ctx context.Context, wheelID int64) ([]*models.Participant, error) {
	detail, err := s.GetWheel(ctx, wheelID)
	if err != nil {
		return nil, err
	}
	return detail.Participants, nil
}
