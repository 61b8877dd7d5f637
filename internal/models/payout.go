package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payout statuses. completed, failed, and cancelled are terminal.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// ErrInvalidPayoutTransition is returned when a payout status change is not
// allowed by the state machine (e.g. cancelling a processing payout, or
// failing a payout twice).
var ErrInvalidPayoutTransition = errors.New("invalid payout state transition")

// payoutTransitions lists every allowed one-way move. Terminal states have
// no exits, so a refund can never be applied twice.
var payoutTransitions = map[string]map[string]bool{
	PayoutStatusPending: {
		PayoutStatusProcessing: true,
		PayoutStatusCancelled:  true,
		PayoutStatusFailed:     true,
	},
	PayoutStatusProcessing: {
		PayoutStatusCompleted: true,
		PayoutStatusFailed:    true,
	},
}

// PayoutTransitionAllowed reports whether a payout may move from one status
// to another.
func PayoutTransitionAllowed(from, to string) bool {
	return payoutTransitions[from][to]
}

// PayoutStatusTerminal reports whether a status has no outgoing transitions.
func PayoutStatusTerminal(status string) bool {
	return len(payoutTransitions[status]) == 0
}

// Payout is one withdrawal request. The earned balance is debited at
// creation time (funds are reserved immediately); a failed or cancelled
// payout returns the funds via a new refund ledger entry, never by mutating
// the original debit.
type Payout struct {
	ID                uuid.UUID  `json:"id"`
	AccountID         uuid.UUID  `json:"account_id"`
	Amount            int64      `json:"amount"`
	Status            string     `json:"status"`
	PayoutMethodID    *uuid.UUID `json:"payout_method_id,omitempty"`
	ProviderReference *string    `json:"provider_reference,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
