package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/creospace/credits/internal/models"
)

// SubmitPayoutArgs hands a freshly reserved payout to the Payout Provider.
// Enqueued in the same transaction that debits the balance, so a payout row
// can never exist without its submission job or vice versa.
type SubmitPayoutArgs struct {
	PayoutID uuid.UUID `json:"payout_id"`
}

func (SubmitPayoutArgs) Kind() string { return "submit_payout" }

// PayoutService is the contract the workers need to drive the payout state
// machine.
type PayoutService interface {
	// MarkProcessing transitions pending -> processing and returns the
	// payout plus the provider-opaque method id to submit with. Idempotent
	// when the payout is already processing.
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.Payout, string, error)
	AttachProviderReference(ctx context.Context, payoutID uuid.UUID, ref string) error
	MarkFailed(ctx context.Context, payoutID uuid.UUID) error
}

// ProviderClient is the outbound Payout Provider contract. idempotencyKey
// is stable across job retries so the provider can dedup resubmissions.
type ProviderClient interface {
	CreatePayout(ctx context.Context, idempotencyKey, providerMethodID string, amount int64) (string, error)
}

type SubmitPayoutWorker struct {
	river.WorkerDefaults[SubmitPayoutArgs]
	payouts  PayoutService
	provider ProviderClient
	log      *slog.Logger
}

func NewSubmitPayoutWorker(payouts PayoutService, provider ProviderClient, log *slog.Logger) *SubmitPayoutWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SubmitPayoutWorker{payouts: payouts, provider: provider, log: log}
}

// Work submits the payout to the provider. The provider call happens here,
// after the reserving transaction committed and outside any row lock; the
// state machine, not a lock, serializes everything that follows.
func (w *SubmitPayoutWorker) Work(ctx context.Context, job *river.Job[SubmitPayoutArgs]) error {
	payoutID := job.Args.PayoutID

	p, providerMethodID, err := w.payouts.MarkProcessing(ctx, payoutID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPayoutTransition) {
			// Settled or cancelled before we got here; the other signal won.
			w.log.Info("payout already settled, skipping submission", "payout_id", payoutID)
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	// The payout id doubles as the idempotency key: if the job dies after
	// the provider accepted (e.g. AttachProviderReference failed) the retry
	// resubmits under the same key instead of paying out twice.
	ref, err := w.provider.CreatePayout(ctx, payoutID.String(), providerMethodID, p.Amount)
	if err != nil {
		// Provider rejection resolves to a failed payout with refund,
		// never an unresolved limbo.
		w.log.Warn("provider rejected payout", "payout_id", payoutID, "error", err)
		if failErr := w.payouts.MarkFailed(ctx, payoutID); failErr != nil {
			return fmt.Errorf("provider error (%v) and mark failed: %w", err, failErr)
		}
		return nil
	}

	if err := w.payouts.AttachProviderReference(ctx, payoutID, ref); err != nil {
		return fmt.Errorf("attach provider reference: %w", err)
	}
	w.log.Info("payout submitted to provider", "payout_id", payoutID, "provider_reference", ref)
	return nil
}
