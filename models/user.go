package models

import (
	"time"
)

// User represents a player with a coin balance
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Coins     int64     `db:"coins" json:"coins"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanAfford reports whether the user holds at least amount coins
func (u *User) CanAfford(amount int64) bool {
	return u.Coins >= amount
}
