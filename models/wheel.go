package models

import (
	"errors"
	"fmt"
	"time"
)

// WheelStatus represents the lifecycle status of a wheel
type WheelStatus string

const (
	WheelStatusPending  WheelStatus = "PENDING"
	WheelStatusRunning  WheelStatus = "RUNNING"
	WheelStatusFinished WheelStatus = "FINISHED"
	WheelStatusAborted  WheelStatus = "ABORTED"
)

// ErrInvalidTransition is returned when a status change leaves the allowed graph
var ErrInvalidTransition = errors.New("invalid wheel status transition")

// ParseWheelStatus converts a raw string into a WheelStatus
func ParseWheelStatus(raw string) (WheelStatus, error) {
	status := WheelStatus(raw)
	switch status {
	case WheelStatusPending, WheelStatusRunning, WheelStatusFinished, WheelStatusAborted:
		return status, nil
	}
	return "", fmt.Errorf("unknown wheel status %q", raw)
}

// IsTerminal returns true for FINISHED and ABORTED
func (s WheelStatus) IsTerminal() bool {
	return s == WheelStatusFinished || s == WheelStatusAborted
}

// CanTransitionTo encodes PENDING -> {RUNNING, ABORTED} and RUNNING -> FINISHED
func (s WheelStatus) CanTransitionTo(next WheelStatus) bool {
	switch s {
	case WheelStatusPending:
		return next == WheelStatusRunning || next == WheelStatusAborted
	case WheelStatusRunning:
		return next == WheelStatusFinished
	}
	return false
}

// Wheel is one round of the elimination game
type Wheel struct {
	ID           int64       `db:"id" json:"id"`
	HostID       int64       `db:"host_id" json:"host_id"`
	EntryFee     int64       `db:"entry_fee" json:"entry_fee"`
	MaxPlayers   *int        `db:"max_players" json:"max_players,omitempty"`
	Status       WheelStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	AutoStartAt  *time.Time  `db:"auto_start_at" json:"auto_start_at,omitempty"`
	StartsAt     *time.Time  `db:"starts_at" json:"starts_at,omitempty"`
	FinishedAt   *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
	WinnerID     *int64      `db:"winner_id" json:"winner_id,omitempty"`
	PayoutAmount int64       `db:"payout_amount" json:"payout_amount"`
	HostAmount   int64       `db:"host_amount" json:"host_amount"`
	HouseAmount  int64       `db:"house_amount" json:"house_amount"`
}

// IsPending checks if the wheel still accepts joins
func (w *Wheel) IsPending() bool {
	return w.Status == WheelStatusPending
}

// IsRunning checks if the wheel is in its elimination phase
func (w *Wheel) IsRunning() bool {
	return w.Status == WheelStatusRunning
}

// IsFull reports whether joinCount has reached the player cap
func (w *Wheel) IsFull(joinCount int) bool {
	return w.MaxPlayers != nil && joinCount >= *w.MaxPlayers
}

func (w *Wheel) transition(next WheelStatus) error {
	if !w.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, next)
	}
	w.Status = next
	return nil
}

// Start moves a pending wheel to RUNNING
func (w *Wheel) Start(at time.Time) error {
	if err := w.transition(WheelStatusRunning); err != nil {
		return err
	}
	w.StartsAt = &at
	return nil
}

// Abort moves a pending wheel to ABORTED
func (w *Wheel) Abort(at time.Time) error {
	if err := w.transition(WheelStatusAborted); err != nil {
		return err
	}
	w.FinishedAt = &at
	return nil
}

// Finish declares the winner and records how the pot was settled
func (w *Wheel) Finish(winnerID int64, at time.Time, settlement Settlement) error {
	if err := w.transition(WheelStatusFinished); err != nil {
		return err
	}
	w.WinnerID = &winnerID
	w.FinishedAt = &at
	w.PayoutAmount = settlement.Winner
	w.HostAmount = settlement.Host
	w.HouseAmount = settlement.House
	return nil
}

// Pot returns the total entry fees collected from joinCount players
func (w *Wheel) Pot(joinCount int) int64 {
	return w.EntryFee * int64(joinCount)
}

// Settlement splits a finished wheel's pot. Winner + Host + House equals the pot.
type Settlement struct {
	Pot    int64 `json:"pot"`
	Winner int64 `json:"winner"`
	Host   int64 `json:"host"`
	House  int64 `json:"house"`
}

// Join links a user to a wheel. A nil EliminatedAt means the user is still active.
type Join struct {
	ID           int64      `db:"id" json:"id"`
	WheelID      int64      `db:"wheel_id" json:"wheel_id"`
	UserID       int64      `db:"user_id" json:"user_id"`
	JoinedAt     time.Time  `db:"joined_at" json:"joined_at"`
	EliminatedAt *time.Time `db:"eliminated_at" json:"eliminated_at,omitempty"`
}

// IsActive checks if the participant has not been eliminated
func (j *Join) IsActive() bool {
	return j.EliminatedAt == nil
}

// Participant is a join enriched with the player's username for display
type Participant struct {
	UserID       int64      `json:"id"`
	Username     string     `json:"username"`
	JoinedAt     time.Time  `json:"joined_at"`
	EliminatedAt *time.Time `json:"eliminated_at"`
}

// WheelDetail combines a wheel with its full participant history
type WheelDetail struct {
	Wheel        *Wheel         `json:"wheel"`
	Participants []*Participant `json:"participants"`
}

// ActiveCount returns the number of participants not yet eliminated
func (d *WheelDetail) ActiveCount() int {
	count := 0
	for _, p := range d.Participants {
		if p.EliminatedAt == nil {
			count++
		}
	}
	return count
}
