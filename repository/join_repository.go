package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spinwheel/database"
	"spinwheel/models"
	"spinwheel/service"

	"github.com/jackc/pgx/v5"
)

const joinColumns = `id, wheel_id, user_id, joined_at, eliminated_at`

// JoinRepository implements the JoinRepository interface
type JoinRepository struct {
	q queryable
}

// NewJoinRepository creates a new join repository
func NewJoinRepository(db *database.DB) *JoinRepository {
	return &JoinRepository{q: db.Pool}
}

func newJoinRepositoryWithTx(tx queryable) *JoinRepository {
	return &JoinRepository{q: tx}
}

func scanJoin(row pgx.Row) (*models.Join, error) {
	var j models.Join
	if err := row.Scan(&j.ID, &j.WheelID, &j.UserID, &j.JoinedAt, &j.EliminatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// Create inserts a join
func (r *JoinRepository) Create(ctx context.Context, join *models.Join) error {
	query := `
		INSERT INTO joins (wheel_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query, join.WheelID, join.UserID, join.JoinedAt).Scan(&join.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %d already joined wheel %d", service.ErrConflict, join.UserID, join.WheelID)
	}
	if err != nil {
		return fmt.Errorf("failed to create join: %w", err)
	}
	return nil
}

// GetByWheelAndUser returns a user's join of a wheel
func (r *JoinRepository) GetByWheelAndUser(ctx context.Context, wheelID, userID int64) (*models.Join, error) {
	query := `SELECT ` + joinColumns + ` FROM joins WHERE wheel_id = $1 AND user_id = $2`

	join, err := scanJoin(r.q.QueryRow(ctx, query, wheelID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join: %w", err)
	}
	return join, nil
}

// CountByWheel counts every join of a wheel
func (r *JoinRepository) CountByWheel(ctx context.Context, wheelID int64) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM joins WHERE wheel_id = $1`, wheelID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count joins for wheel %d: %w", wheelID, err)
	}
	return count, nil
}

// GetActiveByWheel returns the ordered active sequence
func (r *JoinRepository) GetActiveByWheel(ctx context.Context, wheelID int64) ([]*models.Join, error) {
	query := `
		SELECT ` + joinColumns + `
		FROM joins
		WHERE wheel_id = $1 AND eliminated_at IS NULL
		ORDER BY joined_at, id
	`

	rows, err := r.q.Query(ctx, query, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active joins for wheel %d: %w", wheelID, err)
	}
	defer rows.Close()

	var joins []*models.Join
	for rows.Next() {
		join, err := scanJoin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join: %w", err)
		}
		joins = append(joins, join)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate joins: %w", err)
	}
	return joins, nil
}

// GetAllByWheel returns every participant with their username
func (r *JoinRepository) GetAllByWheel(ctx context.Context, wheelID int64) ([]*models.Participant, error) {
	query := `
		SELECT j.user_id, u.username, j.joined_at, j.eliminated_at
		FROM joins j
		JOIN users u ON u.id = j.user_id
		WHERE j.wheel_id = $1
		ORDER BY j.joined_at, j.id
	`

	rows, err := r.q.Query(ctx, query, wheelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants for wheel %d: %w", wheelID, err)
	}
	defer rows.Close()

	participants := []*models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.Username, &p.JoinedAt, &p.EliminatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// MarkEliminated stamps eliminated_at on a still active join
func (r *JoinRepository) MarkEliminated(ctx context.Context, joinID int64, at time.Time) error {
	result, err := r.q.Exec(ctx,
		`UPDATE joins SET eliminated_at = $2 WHERE id = $1 AND eliminated_at IS NULL`,
		joinID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to eliminate join %d: %w", joinID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: join %d is not active", service.ErrInvalidState, joinID)
	}
	return nil
}
