package repository

import (
	"context"
	"errors"
	"fmt"

	"spinwheel/database"
	"spinwheel/models"
	"spinwheel/service"

	"github.com/jackc/pgx/v5"
)

const wheelColumns = `id, host_id, entry_fee, max_players, status, created_at, auto_start_at,
	starts_at, finished_at, winner_id, payout_amount, host_amount, house_amount`

// wheelCreateLockKey is the advisory lock serializing wheel creation
const wheelCreateLockKey int64 = 0x5717_4ee1

// WheelRepository implements the WheelRepository interface
type WheelRepository struct {
	q queryable
}

// NewWheelRepository creates a new wheel repository
func NewWheelRepository(db *database.DB) *WheelRepository {
	return &WheelRepository{q: db.Pool}
}

func newWheelRepositoryWithTx(tx queryable) *WheelRepository {
	return &WheelRepository{q: tx}
}

func scanWheel(row pgx.Row) (*models.Wheel, error) {
	var w models.Wheel
	err := row.Scan(
		&w.ID,
		&w.HostID,
		&w.EntryFee,
		&w.MaxPlayers,
		&w.Status,
		&w.CreatedAt,
		&w.AutoStartAt,
		&w.StartsAt,
		&w.FinishedAt,
		&w.WinnerID,
		&w.PayoutAmount,
		&w.HostAmount,
		&w.HouseAmount,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a new wheel
func (r *WheelRepository) Create(ctx context.Context, wheel *models.Wheel) error {
	query := `
		INSERT INTO wheels (host_id, entry_fee, max_players, status, auto_start_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		wheel.HostID,
		wheel.EntryFee,
		wheel.MaxPlayers,
		wheel.Status,
		wheel.AutoStartAt,
	).Scan(&wheel.ID, &wheel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wheel: %w", err)
	}
	return nil
}

// GetByID retrieves a wheel by id
func (r *WheelRepository) GetByID(ctx context.Context, id int64) (*models.Wheel, error) {
	return r.get(ctx, `SELECT `+wheelColumns+` FROM wheels WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a wheel and holds its row lock until the transaction ends
func (r *WheelRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Wheel, error) {
	return r.get(ctx, `SELECT `+wheelColumns+` FROM wheels WHERE id = $1 FOR UPDATE`, id)
}

func (r *WheelRepository) get(ctx context.Context, query string, id int64) (*models.Wheel, error) {
	wheel, err := scanWheel(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wheel %d: %w", id, err)
	}
	return wheel, nil
}

// List returns wheels newest first
func (r *WheelRepository) List(ctx context.Context, status *models.WheelStatus, limit int) ([]*models.Wheel, error) {
	query := `
		SELECT ` + wheelColumns + `
		FROM wheels
		WHERE ($1::TEXT IS NULL OR status = $1)
		ORDER BY id DESC
		LIMIT $2
	`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := r.q.Query(ctx, query, statusArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wheels: %w", err)
	}
	defer rows.Close()

	var wheels []*models.Wheel
	for rows.Next() {
		wheel, err := scanWheel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wheel: %w", err)
		}
		wheels = append(wheels, wheel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wheels: %w", err)
	}
	return wheels, nil
}

// CountByStatus counts wheels in a status
func (r *WheelRepository) CountByStatus(ctx context.Context, status models.WheelStatus) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM wheels WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s wheels: %w", status, err)
	}
	return count, nil
}

// UpdateStatus writes the lifecycle fields only if the stored status still equals from
func (r *WheelRepository) UpdateStatus(ctx context.Context, wheel *models.Wheel, from models.WheelStatus) error {
	if !from.CanTransitionTo(wheel.Status) {
		return fmt.Errorf("%w: %v", service.ErrInvalidState, models.ErrInvalidTransition)
	}

	query := `
		UPDATE wheels
		SET status = $3,
		    starts_at = $4,
		    finished_at = $5,
		    winner_id = $6,
		    payout_amount = $7,
		    host_amount = $8,
		    house_amount = $9
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query,
		wheel.ID,
		from,
		wheel.Status,
		wheel.StartsAt,
		wheel.FinishedAt,
		wheel.WinnerID,
		wheel.PayoutAmount,
		wheel.HostAmount,
		wheel.HouseAmount,
	)
	if err != nil {
		return fmt.Errorf("failed to update wheel %d: %w", wheel.ID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: wheel %d is no longer %s", service.ErrInvalidState, wheel.ID, from)
	}
	return nil
}

// LockForCreate takes a transaction-scoped advisory lock
func (r *WheelRepository) LockForCreate(ctx context.Context) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, wheelCreateLockKey); err != nil {
		return fmt.Errorf("failed to acquire wheel creation lock: %w", err)
	}
	return nil
}
