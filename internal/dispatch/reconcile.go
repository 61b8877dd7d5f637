package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// ReconcileArgs triggers a sweep of payouts stuck before the processing
// deadline. Scheduled as a River periodic job.
type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "reconcile_payouts" }

// Reconciler resolves payouts that have been pending or processing for too
// long, failing them with a refund.
type Reconciler interface {
	ReconcileStuck(ctx context.Context, cutoff time.Time) (int, error)
}

type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	payouts Reconciler
	maxAge  time.Duration
	log     *slog.Logger
}

func NewReconcileWorker(payouts Reconciler, maxAge time.Duration, log *slog.Logger) *ReconcileWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileWorker{payouts: payouts, maxAge: maxAge, log: log}
}

func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileArgs]) error {
	cutoff := time.Now().Add(-w.maxAge)
	n, err := w.payouts.ReconcileStuck(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reconcile stuck payouts: %w", err)
	}
	if n > 0 {
		w.log.Warn("resolved stuck payouts", "count", n, "older_than", w.maxAge)
	}
	return nil
}
