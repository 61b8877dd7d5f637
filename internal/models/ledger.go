package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit types. Genesis credit is granted once at account creation and can
// only be burned; earned credit accrues from rewards and transfers and is
// the only credit type that can be paid out.
const (
	CreditTypeGenesis = "genesis"
	CreditTypeEarned  = "earned"
)

// Ledger entry sources.
const (
	SourceGenesisGrant        = "genesis_grant"
	SourceProjectCreate       = "project_create"
	SourceApplicationAccepted = "application_accepted"
	SourceTransferIn          = "transfer_in"
	SourceTransferOut         = "transfer_out"
	SourcePayoutRequest       = "payout_request"
	SourcePayoutFailedRefund  = "payout_failed_refund"
	SourceRedemption          = "redemption"
)

// LedgerEntry is immutable once written. Positive amounts are credits,
// negative amounts are debits; BalanceAfter captures the resulting balance
// of the entry's credit type at write time.
type LedgerEntry struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	CreditType   string    `json:"credit_type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description"`
	Source       string    `json:"source"`
	SourceID     *string   `json:"source_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
