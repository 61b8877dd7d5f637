package wallet

import "errors"

// Validation and balance errors are terminal: they are returned to the
// caller as-is and never retried. ErrConcurrencyConflict is transient and
// surfaces only after the bounded transaction retry is exhausted.
var (
	ErrInvalidAmount              = errors.New("amount must be positive")
	ErrAccountNotFound            = errors.New("account not found")
	ErrAccountExists              = errors.New("account already exists")
	ErrInsufficientGenesisBalance = errors.New("insufficient genesis balance")
	ErrInsufficientEarnedBalance  = errors.New("insufficient earned balance")
	ErrSelfTransfer               = errors.New("cannot transfer to own account")
	ErrConcurrencyConflict        = errors.New("concurrent balance update, retry")
)
