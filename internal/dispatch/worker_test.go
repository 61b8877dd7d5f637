package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/creospace/credits/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockPayoutService struct {
	markProcessingErr error
	markFailedErr     error
	attachErr         error

	processed   []uuid.UUID
	failed      []uuid.UUID
	attachedRef string
}

func (m *mockPayoutService) MarkProcessing(_ context.Context, payoutID uuid.UUID) (*models.Payout, string, error) {
	if m.markProcessingErr != nil {
		return nil, "", m.markProcessingErr
	}
	m.processed = append(m.processed, payoutID)
	return &models.Payout{ID: payoutID, Amount: 60, Status: models.PayoutStatusProcessing}, "pm_bank_123", nil
}

func (m *mockPayoutService) AttachProviderReference(_ context.Context, _ uuid.UUID, ref string) error {
	if m.attachErr != nil {
		return m.attachErr
	}
	m.attachedRef = ref
	return nil
}

func (m *mockPayoutService) MarkFailed(_ context.Context, payoutID uuid.UUID) error {
	if m.markFailedErr != nil {
		return m.markFailedErr
	}
	m.failed = append(m.failed, payoutID)
	return nil
}

type mockProvider struct {
	ref string
	err error

	gotKeys     []string
	gotMethodID string
	gotAmount   int64
}

func (m *mockProvider) CreatePayout(_ context.Context, idempotencyKey, providerMethodID string, amount int64) (string, error) {
	m.gotKeys = append(m.gotKeys, idempotencyKey)
	m.gotMethodID, m.gotAmount = providerMethodID, amount
	return m.ref, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func submitJob(payoutID uuid.UUID) *river.Job[SubmitPayoutArgs] {
	return &river.Job[SubmitPayoutArgs]{
		JobRow: &rivertype.JobRow{ID: 1},
		Args:   SubmitPayoutArgs{PayoutID: payoutID},
	}
}

// ---------------------------------------------------------------------------
// SubmitPayoutWorker
// ---------------------------------------------------------------------------

func TestSubmitPayoutWorker(t *testing.T) {
	svc := &mockPayoutService{}
	prov := &mockProvider{ref: "prov-xyz"}
	w := NewSubmitPayoutWorker(svc, prov, testLogger())

	payoutID := uuid.New()
	if err := w.Work(context.Background(), submitJob(payoutID)); err != nil {
		t.Fatalf("Work: %v", err)
	}

	if len(svc.processed) != 1 || svc.processed[0] != payoutID {
		t.Errorf("processed: got %v, want [%s]", svc.processed, payoutID)
	}
	if prov.gotMethodID != "pm_bank_123" || prov.gotAmount != 60 {
		t.Errorf("provider submission: got %s/%d, want pm_bank_123/60", prov.gotMethodID, prov.gotAmount)
	}
	if len(prov.gotKeys) != 1 || prov.gotKeys[0] != payoutID.String() {
		t.Errorf("idempotency key: got %v, want [%s]", prov.gotKeys, payoutID)
	}
	if svc.attachedRef != "prov-xyz" {
		t.Errorf("attached reference: got %s, want prov-xyz", svc.attachedRef)
	}
	if len(svc.failed) != 0 {
		t.Errorf("failed: got %v, want none", svc.failed)
	}
}

func TestSubmitPayoutWorkerProviderRejection(t *testing.T) {
	svc := &mockPayoutService{}
	prov := &mockProvider{err: errors.New("method unsupported")}
	w := NewSubmitPayoutWorker(svc, prov, testLogger())

	payoutID := uuid.New()
	// A provider rejection resolves the payout instead of erroring the job:
	// retrying the submission would just be rejected again.
	if err := w.Work(context.Background(), submitJob(payoutID)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(svc.failed) != 1 || svc.failed[0] != payoutID {
		t.Errorf("failed: got %v, want [%s]", svc.failed, payoutID)
	}
	if svc.attachedRef != "" {
		t.Error("no reference should be attached on rejection")
	}
}

func TestSubmitPayoutWorkerAlreadySettled(t *testing.T) {
	svc := &mockPayoutService{markProcessingErr: models.ErrInvalidPayoutTransition}
	prov := &mockProvider{}
	w := NewSubmitPayoutWorker(svc, prov, testLogger())

	// The user cancelled before the job ran. The job completes without
	// touching the provider.
	if err := w.Work(context.Background(), submitJob(uuid.New())); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if prov.gotMethodID != "" {
		t.Error("settled payout must not be submitted to the provider")
	}
}

func TestSubmitPayoutWorkerRetryKeepsIdempotencyKey(t *testing.T) {
	svc := &mockPayoutService{attachErr: errors.New("db down")}
	prov := &mockProvider{ref: "prov-xyz"}
	w := NewSubmitPayoutWorker(svc, prov, testLogger())

	payoutID := uuid.New()
	// The provider accepted but the reference write failed, so the job
	// errors and River retries it.
	if err := w.Work(context.Background(), submitJob(payoutID)); err == nil {
		t.Fatal("expected error when attaching the reference fails")
	}

	svc.attachErr = nil
	if err := w.Work(context.Background(), submitJob(payoutID)); err != nil {
		t.Fatalf("retried Work: %v", err)
	}

	// Both submissions carried the same key, so the provider dedups the
	// second instead of paying out twice.
	if len(prov.gotKeys) != 2 || prov.gotKeys[0] != prov.gotKeys[1] {
		t.Errorf("idempotency keys across retries: got %v, want two equal keys", prov.gotKeys)
	}
	if prov.gotKeys[0] != payoutID.String() {
		t.Errorf("idempotency key: got %s, want %s", prov.gotKeys[0], payoutID)
	}
	if svc.attachedRef != "prov-xyz" {
		t.Errorf("attached reference after retry: got %s, want prov-xyz", svc.attachedRef)
	}
}

func TestSubmitPayoutWorkerTransientError(t *testing.T) {
	svc := &mockPayoutService{markProcessingErr: errors.New("db down")}
	w := NewSubmitPayoutWorker(svc, &mockProvider{}, testLogger())

	// Transient failures surface so River retries the job.
	if err := w.Work(context.Background(), submitJob(uuid.New())); err == nil {
		t.Fatal("expected error for transient failure")
	}
}

// ---------------------------------------------------------------------------
// ReconcileWorker
// ---------------------------------------------------------------------------

type mockReconciler struct {
	gotCutoff time.Time
	n         int
	err       error
}

func (m *mockReconciler) ReconcileStuck(_ context.Context, cutoff time.Time) (int, error) {
	m.gotCutoff = cutoff
	return m.n, m.err
}

func TestReconcileWorker(t *testing.T) {
	rec := &mockReconciler{n: 3}
	w := NewReconcileWorker(rec, time.Hour, testLogger())

	before := time.Now().Add(-time.Hour)
	job := &river.Job[ReconcileArgs]{JobRow: &rivertype.JobRow{ID: 2}, Args: ReconcileArgs{}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatalf("Work: %v", err)
	}
	after := time.Now().Add(-time.Hour)

	if rec.gotCutoff.Before(before) || rec.gotCutoff.After(after) {
		t.Errorf("cutoff %v not within [%v, %v]", rec.gotCutoff, before, after)
	}

	rec.err = errors.New("db down")
	if err := w.Work(context.Background(), job); err == nil {
		t.Fatal("expected error when the sweep fails")
	}
}
