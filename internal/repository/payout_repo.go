package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creospace/credits/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

const payoutColumns = `id, account_id, amount, status, payout_method_id, provider_reference, created_at, completed_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Status, &p.PayoutMethodID, &p.ProviderReference, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payout) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payouts (id, account_id, amount, status, payout_method_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.AccountID, p.Amount, p.Status, p.PayoutMethodID).Scan(&p.CreatedAt)
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the payout row so concurrent status transitions
// (provider callback vs user cancellation) serialize deterministically.
func (r *PayoutRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payout, error) {
	return scanPayout(tx.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE
	`, id))
}

func (r *PayoutRepo) GetByProviderReference(ctx context.Context, ref string) (*models.Payout, error) {
	return scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE provider_reference = $1
	`, ref))
}

// UpdateStatusTx sets the payout status. Call after GetByIDForUpdate and a
// transition check in the same transaction.
func (r *PayoutRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, completedAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE payouts SET status = $2, completed_at = $3 WHERE id = $1
	`, id, status, completedAt)
	return err
}

// SetProviderReference records the provider's handle for callback
// correlation. Written by the dispatch worker after the provider accepts
// the payout.
func (r *PayoutRepo) SetProviderReference(ctx context.Context, id uuid.UUID, ref string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payouts SET provider_reference = $2 WHERE id = $1
	`, id, ref)
	return err
}

func (r *PayoutRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListUnsettledBefore returns pending and processing payouts created before
// the cutoff, oldest first. Feeds the reconciliation sweep.
func (r *PayoutRepo) ListUnsettledBefore(ctx context.Context, cutoff time.Time) ([]*models.Payout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at ASC
	`, models.PayoutStatusPending, models.PayoutStatusProcessing, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
