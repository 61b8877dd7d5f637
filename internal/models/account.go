package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the per-user balance cache. It is a materialized projection of
// the ledger: every field change happens in the same transaction as the
// ledger append that explains it.
//
// genesis_balance + genesis_burned is constant after account creation;
// lifetime_earned mirrors cumulative earn credits and never decreases.
type Account struct {
	UserID         uuid.UUID `json:"user_id"`
	GenesisBalance int64     `json:"genesis_balance"`
	EarnedBalance  int64     `json:"earned_balance"`
	GenesisBurned  int64     `json:"genesis_burned"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
