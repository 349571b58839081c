// Package engine drives wheels through their timed lifecycle: the auto-start
// deadline, the elimination loop and abort with refunds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spinwheel/events"
	"spinwheel/models"
	"spinwheel/service"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const (
	reasonQuorum = "quorum not reached"
	reasonHost   = "aborted by host"

	recoverLimit = 1000
)

// TickResult reports what a single elimination tick did
type TickResult int

const (
	// TickStopped means the wheel is no longer running and its loop should end
	TickStopped TickResult = iota
	// TickEliminated means one player was eliminated
	TickEliminated
	// TickFinished means the last player was declared winner
	TickFinished
)

func (r TickResult) String() string {
	switch r {
	case TickEliminated:
		return "eliminated"
	case TickFinished:
		return "finished"
	}
	return "stopped"
}

// Config holds the game rules the engine enforces
type Config struct {
	MinQuorum  int
	TickPeriod time.Duration
	Payout     service.PayoutPolicy
}

// Engine implements service.WheelScheduler
type Engine struct {
	uowFactory service.UnitOfWorkFactory
	clock      clockwork.Clock
	rng        RandomSource
	cfg        Config

	locks    *keyedMutex
	registry *registry

	ctx    context.Context
	cancel context.CancelFunc

	// workers counts running loops and timer callbacks; Shutdown waits on it
	workersMu sync.Mutex
	workers   sync.WaitGroup
	stopped   bool
}

// New creates an engine. Call Recover once at startup and Shutdown on exit.
func New(uowFactory service.UnitOfWorkFactory, clock clockwork.Clock, rng RandomSource, cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		uowFactory: uowFactory,
		clock:      clock,
		rng:        rng,
		cfg:        cfg,
		locks:      newKeyedMutex(),
		registry:   newRegistry(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ScheduleAutoStart arms a one-shot timer that starts or aborts the wheel after delay
func (e *Engine) ScheduleAutoStart(wheelID int64, delay time.Duration) {
	if e.ctx.Err() != nil {
		return
	}

	timer := e.clock.AfterFunc(delay, func() {
		e.fireAutoStart(wheelID)
	})
	e.registry.armTimer(wheelID, timer)

	log.WithFields(log.Fields{
		"wheelID": wheelID,
		"delay":   delay,
	}).Debug("Armed auto-start timer")
}

type autoStartOutcome int

const (
	outcomeSkipped autoStartOutcome = iota
	outcomeStarted
	outcomeAborted
	outcomeGone
)

// fireAutoStart runs when the deadline expires. It re-checks the wheel under lock,
// so a timer that raced a manual start or abort does nothing.
func (e *Engine) fireAutoStart(wheelID int64) {
	if !e.track() {
		return
	}
	defer e.workers.Done()
	defer e.recoverPanic(wheelID, "auto-start")

	if e.ctx.Err() != nil {
		return
	}

	unlock := e.locks.Lock(wheelID)
	outcome, err := e.autoStart(e.ctx, wheelID)
	unlock()

	logger := log.WithField("wheelID", wheelID)
	if err != nil {
		logger.WithError(err).Warn("Auto-start failed, retrying after one tick")
		e.ScheduleAutoStart(wheelID, e.cfg.TickPeriod)
		return
	}

	switch outcome {
	case outcomeStarted:
		e.registry.stopTimer(wheelID)
		e.startLoop(wheelID)
	case outcomeAborted, outcomeGone:
		e.registry.release(wheelID)
	case outcomeSkipped:
		logger.Debug("Auto-start skipped, wheel no longer pending")
	}
}

func (e *Engine) autoStart(ctx context.Context, wheelID int64) (autoStartOutcome, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheel, err := uow.WheelRepository().GetByIDForUpdate(ctx, wheelID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to get wheel: %w", err)
	}
	if wheel == nil {
		return outcomeGone, nil
	}
	if !wheel.IsPending() {
		if wheel.Status.IsTerminal() {
			return outcomeGone, nil
		}
		return outcomeSkipped, nil
	}

	active, err := uow.JoinRepository().GetActiveByWheel(ctx, wheelID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to get participants: %w", err)
	}

	outcome := outcomeStarted
	if len(active) < e.cfg.MinQuorum {
		outcome = outcomeAborted
		err = e.abortLocked(ctx, uow, wheel, active, reasonQuorum)
	} else {
		err = e.startLocked(ctx, uow, wheel, len(active), false)
	}
	if err != nil {
		return outcomeSkipped, err
	}

	if err := uow.Commit(); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return outcome, nil
}

// StartNow starts a pending wheel immediately. It fails with ErrInvalidState
// when the wheel is not pending or has fewer players than the quorum.
func (e *Engine) StartNow(ctx context.Context, wheelID int64) error {
	unlock := e.locks.Lock(wheelID)
	defer unlock()

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheel, err := uow.WheelRepository().GetByIDForUpdate(ctx, wheelID)
	if err != nil {
		return fmt.Errorf("failed to get wheel: %w", err)
	}
	if wheel == nil {
		return fmt.Errorf("%w: wheel %d", service.ErrNotFound, wheelID)
	}
	if !wheel.IsPending() {
		return fmt.Errorf("%w: wheel %d is %s", service.ErrInvalidState, wheelID, wheel.Status)
	}

	active, err := uow.JoinRepository().GetActiveByWheel(ctx, wheelID)
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}
	if len(active) < e.cfg.MinQuorum {
		return fmt.Errorf("%w: wheel %d has %d players, needs %d", service.ErrInvalidState, wheelID, len(active), e.cfg.MinQuorum)
	}

	if err := e.startLocked(ctx, uow, wheel, len(active), true); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	e.registry.stopTimer(wheelID)
	e.startLoop(wheelID)
	return nil
}

func (e *Engine) startLocked(ctx context.Context, uow service.UnitOfWork, wheel *models.Wheel, players int, manual bool) error {
	if err := wheel.Start(e.clock.Now()); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidState, err)
	}
	if err := uow.WheelRepository().UpdateStatus(ctx, wheel, models.WheelStatusPending); err != nil {
		return fmt.Errorf("failed to start wheel: %w", err)
	}

	uow.EventBus().Publish(events.WheelStartedEvent{
		WheelID:     wheel.ID,
		PlayerCount: players,
		Manual:      manual,
	})

	log.WithFields(log.Fields{
		"wheelID": wheel.ID,
		"players": players,
		"manual":  manual,
	}).Info("Wheel started")
	return nil
}

// AbortAndRefund aborts a pending wheel and refunds every participant.
// A wheel can only be aborted once, so refunds happen at most once.
func (e *Engine) AbortAndRefund(ctx context.Context, wheelID int64) error {
	unlock := e.locks.Lock(wheelID)
	defer unlock()

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheel, err := uow.WheelRepository().GetByIDForUpdate(ctx, wheelID)
	if err != nil {
		return fmt.Errorf("failed to get wheel: %w", err)
	}
	if wheel == nil {
		return fmt.Errorf("%w: wheel %d", service.ErrNotFound, wheelID)
	}
	if !wheel.IsPending() {
		return fmt.Errorf("%w: wheel %d is %s", service.ErrInvalidState, wheelID, wheel.Status)
	}

	active, err := uow.JoinRepository().GetActiveByWheel(ctx, wheelID)
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}

	if err := e.abortLocked(ctx, uow, wheel, active, reasonHost); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	e.Cancel(wheelID)
	return nil
}

func (e *Engine) abortLocked(ctx context.Context, uow service.UnitOfWork, wheel *models.Wheel, active []*models.Join, reason string) error {
	meta := models.WheelMeta(wheel.ID)
	refunds := make([]service.Transfer, 0, len(active))
	for _, join := range active {
		refunds = append(refunds, service.Transfer{
			UserID: join.UserID,
			Delta:  wheel.EntryFee,
			Kind:   models.TransactionKindRefund,
			Meta:   meta,
		})
	}
	if len(refunds) > 0 {
		if _, err := service.ApplyTransfers(ctx, uow, refunds); err != nil {
			return fmt.Errorf("failed to refund wheel %d: %w", wheel.ID, err)
		}
	}

	if err := wheel.Abort(e.clock.Now()); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidState, err)
	}
	if err := uow.WheelRepository().UpdateStatus(ctx, wheel, models.WheelStatusPending); err != nil {
		return fmt.Errorf("failed to abort wheel: %w", err)
	}

	uow.EventBus().Publish(events.WheelAbortedEvent{
		WheelID:       wheel.ID,
		RefundedCount: len(refunds),
		Reason:        reason,
	})

	log.WithFields(log.Fields{
		"wheelID":  wheel.ID,
		"refunded": len(refunds),
		"entryFee": wheel.EntryFee,
		"reason":   reason,
	}).Info("Wheel aborted")
	return nil
}

func (e *Engine) startLoop(wheelID int64) {
	if !e.track() {
		return
	}
	loopCtx, cancel := context.WithCancel(e.ctx)
	if !e.registry.startLoop(wheelID, cancel) {
		cancel()
		e.workers.Done()
		return
	}
	go e.runLoop(loopCtx, wheelID)
}

// track registers a worker goroutine. Returns false once Shutdown has begun.
func (e *Engine) track() bool {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	if e.stopped {
		return false
	}
	e.workers.Add(1)
	return true
}

func (e *Engine) runLoop(ctx context.Context, wheelID int64) {
	defer e.workers.Done()
	defer e.recoverPanic(wheelID, "elimination loop")

	ticker := e.clock.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()

	logger := log.WithField("wheelID", wheelID)
	logger.Debug("Elimination loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Elimination loop cancelled")
			return
		case <-ticker.Chan():
		}

		result, err := e.Tick(ctx, wheelID)
		if errors.Is(err, service.ErrInternalConsistency) {
			logger.WithError(err).Error("Elimination loop stopped on inconsistent wheel")
			e.registry.release(wheelID)
			return
		}
		if err != nil {
			logger.WithError(err).Warn("Elimination tick failed, retrying next tick")
			continue
		}
		if result != TickEliminated {
			e.registry.release(wheelID)
			return
		}
	}
}

// Tick performs one elimination round of a running wheel
func (e *Engine) Tick(ctx context.Context, wheelID int64) (TickResult, error) {
	unlock := e.locks.Lock(wheelID)
	defer unlock()

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return TickStopped, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wheel, err := uow.WheelRepository().GetByIDForUpdate(ctx, wheelID)
	if err != nil {
		return TickStopped, fmt.Errorf("failed to get wheel: %w", err)
	}
	if wheel == nil || !wheel.IsRunning() {
		return TickStopped, nil
	}

	active, err := uow.JoinRepository().GetActiveByWheel(ctx, wheelID)
	if err != nil {
		return TickStopped, fmt.Errorf("failed to get participants: %w", err)
	}

	var result TickResult
	switch len(active) {
	case 0:
		return TickStopped, fmt.Errorf("%w: running wheel %d has no active players", service.ErrInternalConsistency, wheelID)
	case 1:
		result = TickFinished
		err = e.finishLocked(ctx, uow, wheel, active[0].UserID)
	default:
		result = TickEliminated
		err = e.eliminateLocked(ctx, uow, wheel, active)
	}
	if err != nil {
		return TickStopped, err
	}

	if err := uow.Commit(); err != nil {
		return TickStopped, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func (e *Engine) eliminateLocked(ctx context.Context, uow service.UnitOfWork, wheel *models.Wheel, active []*models.Join) error {
	victim := active[e.rng.IntN(len(active))]
	if err := uow.JoinRepository().MarkEliminated(ctx, victim.ID, e.clock.Now()); err != nil {
		return fmt.Errorf("failed to eliminate player: %w", err)
	}

	remaining := len(active) - 1
	uow.EventBus().Publish(events.PlayerEliminatedEvent{
		WheelID:   wheel.ID,
		UserID:    victim.UserID,
		Remaining: remaining,
	})

	log.WithFields(log.Fields{
		"wheelID":   wheel.ID,
		"userID":    victim.UserID,
		"remaining": remaining,
	}).Info("Player eliminated")
	return nil
}

func (e *Engine) finishLocked(ctx context.Context, uow service.UnitOfWork, wheel *models.Wheel, winnerID int64) error {
	players, err := uow.JoinRepository().CountByWheel(ctx, wheel.ID)
	if err != nil {
		return fmt.Errorf("failed to count players: %w", err)
	}

	settlement := e.cfg.Payout(wheel.Pot(players), players)
	if settlement.Winner+settlement.Host+settlement.House != settlement.Pot {
		return fmt.Errorf("%w: settlement %+v does not add up", service.ErrInternalConsistency, settlement)
	}

	if err := wheel.Finish(winnerID, e.clock.Now(), settlement); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidState, err)
	}
	if err := uow.WheelRepository().UpdateStatus(ctx, wheel, models.WheelStatusRunning); err != nil {
		return fmt.Errorf("failed to finish wheel: %w", err)
	}

	if _, err := service.ApplyTransfers(ctx, uow, service.SettlementTransfers(wheel, winnerID, settlement)); err != nil {
		return fmt.Errorf("failed to pay out wheel %d: %w", wheel.ID, err)
	}

	uow.EventBus().Publish(events.WheelFinishedEvent{
		WheelID:    wheel.ID,
		WinnerID:   winnerID,
		Settlement: settlement,
	})

	log.WithFields(log.Fields{
		"wheelID":  wheel.ID,
		"winnerID": winnerID,
		"pot":      settlement.Pot,
		"payout":   settlement.Winner,
		"hostCut":  settlement.Host,
		"house":    settlement.House,
	}).Info("Wheel finished")
	return nil
}

// Cancel stops the timer and loop held for a wheel. Safe to call repeatedly.
func (e *Engine) Cancel(wheelID int64) {
	e.registry.release(wheelID)
}

// Recover re-arms timers for pending wheels and resumes loops for running ones
func (e *Engine) Recover(ctx context.Context) error {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	pendingStatus, runningStatus := models.WheelStatusPending, models.WheelStatusRunning
	pending, err := uow.WheelRepository().List(ctx, &pendingStatus, recoverLimit)
	if err != nil {
		return fmt.Errorf("failed to list pending wheels: %w", err)
	}
	running, err := uow.WheelRepository().List(ctx, &runningStatus, recoverLimit)
	if err != nil {
		return fmt.Errorf("failed to list running wheels: %w", err)
	}
	uow.Rollback()

	now := e.clock.Now()
	for _, wheel := range pending {
		var delay time.Duration
		if wheel.AutoStartAt != nil {
			delay = max(wheel.AutoStartAt.Sub(now), 0)
		}
		e.ScheduleAutoStart(wheel.ID, delay)
	}
	for _, wheel := range running {
		e.startLoop(wheel.ID)
	}

	log.WithFields(log.Fields{
		"pending": len(pending),
		"running": len(running),
	}).Info("Recovered wheel schedules")
	return nil
}

// Shutdown cancels every timer and loop, then waits for in-flight
// ticks and auto-starts to finish their unit of work
func (e *Engine) Shutdown() {
	e.workersMu.Lock()
	e.stopped = true
	e.workersMu.Unlock()

	e.cancel()
	e.registry.releaseAll()
	e.workers.Wait()
	log.Info("Wheel engine stopped")
}

func (e *Engine) recoverPanic(wheelID int64, where string) {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"wheelID": wheelID,
			"where":   where,
			"panic":   r,
		}).Error("Recovered from panic in wheel engine")
	}
}
