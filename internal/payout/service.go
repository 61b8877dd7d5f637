package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creospace/credits/internal/dispatch"
	"github.com/creospace/credits/internal/models"
	"github.com/creospace/credits/internal/pgutils"
	"github.com/creospace/credits/internal/wallet"
)

var (
	ErrPayoutNotFound       = errors.New("payout not found")
	ErrPayoutMethodNotFound = errors.New("payout method not found")
)

// TxRunner runs fn inside a database transaction, re-driving it on
// transient conflicts. Satisfied by *pgutils.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// AccountRepo is the minimal account interface for payout debits/refunds.
// Only earned balance moves here; genesis credit is never payable.
type AccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	AddEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	DeductEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
}

type LedgerRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

type PayoutRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payout) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payout, error)
	GetByProviderReference(ctx context.Context, ref string) (*models.Payout, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, completedAt *time.Time) error
	SetProviderReference(ctx context.Context, id uuid.UUID, ref string) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Payout, error)
	ListUnsettledBefore(ctx context.Context, cutoff time.Time) ([]*models.Payout, error)
}

type MethodRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error)
	GetDefault(ctx context.Context, accountID uuid.UUID) (*models.PayoutMethod, error)
}

// EnqueueSubmitFunc enqueues the provider submission job within the given
// transaction. Typically a closure over river.Client.InsertTx.
type EnqueueSubmitFunc func(ctx context.Context, tx pgx.Tx, args dispatch.SubmitPayoutArgs) error

// Service implements the payout engine: the reservation debit at request
// time and the one-way status state machine that follows.
type Service struct {
	db            TxRunner
	accounts      AccountRepo
	ledger        LedgerRepo
	payouts       PayoutRepo
	methods       MethodRepo
	enqueueSubmit EnqueueSubmitFunc
}

func NewService(db TxRunner, accounts AccountRepo, ledger LedgerRepo, payouts PayoutRepo, methods MethodRepo, enqueueSubmit EnqueueSubmitFunc) *Service {
	return &Service{
		db:            db,
		accounts:      accounts,
		ledger:        ledger,
		payouts:       payouts,
		methods:       methods,
		enqueueSubmit: enqueueSubmit,
	}
}

// Request reserves the payout: the earned balance is debited and the
// payout_request ledger entry written at creation time, not on completion,
// so two payouts can never together exceed the balance. The provider
// submission job is enqueued in the same transaction.
func (s *Service) Request(ctx context.Context, accountID uuid.UUID, amount int64, methodID *uuid.UUID) (*models.Payout, error) {
	if amount <= 0 {
		return nil, wallet.ErrInvalidAmount
	}
	method, err := s.resolveMethod(ctx, accountID, methodID)
	if err != nil {
		return nil, err
	}

	p := &models.Payout{
		ID:             uuid.New(),
		AccountID:      accountID,
		Amount:         amount,
		Status:         models.PayoutStatusPending,
		PayoutMethodID: &method.ID,
	}
	sourceID := p.ID.String()

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return wallet.ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		newBalance, err := s.accounts.DeductEarned(ctx, tx, accountID, amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return wallet.ErrInsufficientEarnedBalance
			}
			return fmt.Errorf("reserve earned: %w", err)
		}
		if err := s.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			CreditType:   models.CreditTypeEarned,
			Amount:       -amount,
			BalanceAfter: newBalance,
			Description:  "payout reservation",
			Source:       models.SourcePayoutRequest,
			SourceID:     &sourceID,
		}); err != nil {
			return fmt.Errorf("append payout_request: %w", err)
		}
		if err := s.payouts.CreateTx(ctx, tx, p); err != nil {
			return fmt.Errorf("create payout: %w", err)
		}
		return s.enqueueSubmit(ctx, tx, dispatch.SubmitPayoutArgs{PayoutID: p.ID})
	})
	if err != nil {
		return nil, mapTxErr(err)
	}
	return p, nil
}

// Cancel moves a pending payout to cancelled and refunds the reservation.
// Once the payout is processing the provider outcome is the only accepted
// signal, so cancellation is rejected.
func (s *Service) Cancel(ctx context.Context, accountID, payoutID uuid.UUID) (*models.Payout, error) {
	var result *models.Payout
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := s.payouts.GetByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPayoutNotFound
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		if p.AccountID != accountID {
			return ErrPayoutNotFound
		}
		if err := s.refundTx(ctx, tx, p, models.PayoutStatusCancelled); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, mapTxErr(err)
	}
	return result, nil
}

// MarkProcessing transitions pending -> processing when the payout is
// handed to the provider. A repeat call on an already-processing payout is
// a no-op so the dispatch job can be retried safely.
func (s *Service) MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.Payout, string, error) {
	var result *models.Payout
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := s.payouts.GetByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPayoutNotFound
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		if p.Status != models.PayoutStatusProcessing {
			if !models.PayoutTransitionAllowed(p.Status, models.PayoutStatusProcessing) {
				return models.ErrInvalidPayoutTransition
			}
			if err := s.payouts.UpdateStatusTx(ctx, tx, payoutID, models.PayoutStatusProcessing, nil); err != nil {
				return fmt.Errorf("update status: %w", err)
			}
			p.Status = models.PayoutStatusProcessing
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, "", mapTxErr(err)
	}

	if result.PayoutMethodID == nil {
		return nil, "", ErrPayoutMethodNotFound
	}
	method, err := s.methods.GetByID(ctx, *result.PayoutMethodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrPayoutMethodNotFound
		}
		return nil, "", fmt.Errorf("resolve payout method: %w", err)
	}
	return result, method.ProviderMethodID, nil
}

// MarkCompleted finalizes a processing payout. No balance change: the funds
// were debited at request time.
func (s *Service) MarkCompleted(ctx context.Context, payoutID uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := s.payouts.GetByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPayoutNotFound
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		if !models.PayoutTransitionAllowed(p.Status, models.PayoutStatusCompleted) {
			return models.ErrInvalidPayoutTransition
		}
		now := time.Now().UTC()
		return s.payouts.UpdateStatusTx(ctx, tx, payoutID, models.PayoutStatusCompleted, &now)
	})
	return mapTxErr(err)
}

// MarkFailed moves a pending or processing payout to failed and returns the
// reserved amount via an explicit refund entry. Terminal states reject the
// call, so the refund can never be applied twice.
func (s *Service) MarkFailed(ctx context.Context, payoutID uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		p, err := s.payouts.GetByIDForUpdate(ctx, tx, payoutID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPayoutNotFound
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		return s.refundTx(ctx, tx, p, models.PayoutStatusFailed)
	})
	return mapTxErr(err)
}

// AttachProviderReference records the provider's reference for later
// callback correlation.
func (s *Service) AttachProviderReference(ctx context.Context, payoutID uuid.UUID, ref string) error {
	return s.payouts.SetProviderReference(ctx, payoutID, ref)
}

// SettleFromProvider maps the provider's asynchronous settlement callback
// onto the state machine.
func (s *Service) SettleFromProvider(ctx context.Context, providerRef, outcome string) error {
	p, err := s.payouts.GetByProviderReference(ctx, providerRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPayoutNotFound
		}
		return fmt.Errorf("lookup provider reference: %w", err)
	}
	switch outcome {
	case "succeeded":
		return s.MarkCompleted(ctx, p.ID)
	case "failed":
		return s.MarkFailed(ctx, p.ID)
	default:
		return fmt.Errorf("unknown settlement outcome %q", outcome)
	}
}

// ListByAccount returns the account's payouts, newest first.
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Payout, error) {
	return s.payouts.ListByAccount(ctx, accountID)
}

// ReconcileStuck resolves payouts that predate the cutoff and never
// settled: stuck pending payouts are cancelled, stuck processing payouts
// are failed. Both refund. A payout that settles while the sweep runs loses
// the transition race and is skipped.
func (s *Service) ReconcileStuck(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := s.payouts.ListUnsettledBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unsettled: %w", err)
	}
	resolved := 0
	for _, p := range stuck {
		target := models.PayoutStatusFailed
		if p.Status == models.PayoutStatusPending {
			target = models.PayoutStatusCancelled
		}
		err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
			locked, err := s.payouts.GetByIDForUpdate(ctx, tx, p.ID)
			if err != nil {
				return fmt.Errorf("lock payout: %w", err)
			}
			return s.refundTx(ctx, tx, locked, target)
		})
		if errors.Is(err, models.ErrInvalidPayoutTransition) {
			continue
		}
		if err != nil {
			return resolved, mapTxErr(err)
		}
		resolved++
	}
	return resolved, nil
}

// refundTx applies a refunding terminal transition: validates the move,
// credits the reserved amount back, appends the payout_failed_refund entry,
// and updates the payout row. Runs under the caller's payout row lock.
func (s *Service) refundTx(ctx context.Context, tx pgx.Tx, p *models.Payout, target string) error {
	if !models.PayoutTransitionAllowed(p.Status, target) {
		return models.ErrInvalidPayoutTransition
	}
	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, p.AccountID); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	newBalance, err := s.accounts.AddEarned(ctx, tx, p.AccountID, p.Amount)
	if err != nil {
		return fmt.Errorf("refund earned: %w", err)
	}
	sourceID := p.ID.String()
	if err := s.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    p.AccountID,
		CreditType:   models.CreditTypeEarned,
		Amount:       p.Amount,
		BalanceAfter: newBalance,
		Description:  "payout " + target + ", reservation returned",
		Source:       models.SourcePayoutFailedRefund,
		SourceID:     &sourceID,
	}); err != nil {
		return fmt.Errorf("append refund entry: %w", err)
	}
	now := time.Now().UTC()
	if err := s.payouts.UpdateStatusTx(ctx, tx, p.ID, target, &now); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	p.Status = target
	p.CompletedAt = &now
	return nil
}

func (s *Service) resolveMethod(ctx context.Context, accountID uuid.UUID, methodID *uuid.UUID) (*models.PayoutMethod, error) {
	if methodID != nil {
		m, err := s.methods.GetByID(ctx, *methodID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrPayoutMethodNotFound
			}
			return nil, fmt.Errorf("get payout method: %w", err)
		}
		if m.AccountID != accountID {
			return nil, ErrPayoutMethodNotFound
		}
		return m, nil
	}
	m, err := s.methods.GetDefault(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutMethodNotFound
		}
		return nil, fmt.Errorf("get default payout method: %w", err)
	}
	return m, nil
}

func mapTxErr(err error) error {
	if pgutils.IsRetryable(err) {
		return wallet.ErrConcurrencyConflict
	}
	return err
}
