package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creospace/credits/internal/models"
)

type PayoutMethodRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutMethodRepo(pool *pgxpool.Pool) *PayoutMethodRepo {
	return &PayoutMethodRepo{pool: pool}
}

func (r *PayoutMethodRepo) Create(ctx context.Context, m *models.PayoutMethod) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payout_methods (id, account_id, provider_method_id, label, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.AccountID, m.ProviderMethodID, m.Label, m.IsDefault).Scan(&m.CreatedAt)
}

func (r *PayoutMethodRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error) {
	var m models.PayoutMethod
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, provider_method_id, label, is_default, created_at
		FROM payout_methods WHERE id = $1
	`, id).Scan(&m.ID, &m.AccountID, &m.ProviderMethodID, &m.Label, &m.IsDefault, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetDefault returns the account's default method, or pgx.ErrNoRows if none
// is set.
func (r *PayoutMethodRepo) GetDefault(ctx context.Context, accountID uuid.UUID) (*models.PayoutMethod, error) {
	var m models.PayoutMethod
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, provider_method_id, label, is_default, created_at
		FROM payout_methods WHERE account_id = $1 AND is_default
	`, accountID).Scan(&m.ID, &m.AccountID, &m.ProviderMethodID, &m.Label, &m.IsDefault, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PayoutMethodRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.PayoutMethod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, provider_method_id, label, is_default, created_at
		FROM payout_methods WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PayoutMethod
	for rows.Next() {
		var m models.PayoutMethod
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ProviderMethodID, &m.Label, &m.IsDefault, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// SetDefault makes the given method the account's only default. Clearing
// and setting happen in one transaction so two defaults can never coexist.
func (r *PayoutMethodRepo) SetDefault(ctx context.Context, accountID, methodID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE payout_methods SET is_default = false WHERE account_id = $1 AND is_default
	`, accountID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE payout_methods SET is_default = true WHERE id = $1 AND account_id = $2
	`, methodID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

// Delete removes a method owned by the account. Returns pgx.ErrNoRows when
// the method does not exist or belongs to someone else.
func (r *PayoutMethodRepo) Delete(ctx context.Context, accountID, methodID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM payout_methods WHERE id = $1 AND account_id = $2
	`, methodID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
