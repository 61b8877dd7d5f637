package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creospace/credits/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// CreateTx inserts a new account inside the given transaction. The genesis
// grant is the only way genesis balance is ever credited.
func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error {
	return tx.QueryRow(ctx, `
		INSERT INTO accounts (user_id, genesis_balance, earned_balance, genesis_burned, lifetime_earned)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.UserID, a.GenesisBalance, a.EarnedBalance, a.GenesisBurned, a.LifetimeEarned).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, genesis_balance, earned_balance, genesis_burned, lifetime_earned, created_at, updated_at
		FROM accounts WHERE user_id = $1
	`, id).Scan(&a.UserID, &a.GenesisBalance, &a.EarnedBalance, &a.GenesisBurned, &a.LifetimeEarned, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := tx.QueryRow(ctx, `
		SELECT user_id, genesis_balance, earned_balance, genesis_burned, lifetime_earned, created_at, updated_at
		FROM accounts WHERE user_id = $1 FOR UPDATE
	`, id).Scan(&a.UserID, &a.GenesisBalance, &a.EarnedBalance, &a.GenesisBurned, &a.LifetimeEarned, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GrantEarned credits earned balance and bumps lifetime_earned. Used for
// reward earns; transfers and refunds use AddEarned so lifetime_earned only
// counts genuine earnings.
func (r *AccountRepo) GrantEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET earned_balance = earned_balance + $1, lifetime_earned = lifetime_earned + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING earned_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// AddEarned credits earned balance without touching lifetime_earned
// (transfer_in, payout refunds).
func (r *AccountRepo) AddEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET earned_balance = earned_balance + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING earned_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// DeductEarned atomically debits earned balance if it covers amount.
// Returns pgx.ErrNoRows when the balance is insufficient.
func (r *AccountRepo) DeductEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET earned_balance = earned_balance - $1, updated_at = now()
		WHERE user_id = $2 AND earned_balance >= $1
		RETURNING earned_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// BurnGenesis atomically debits genesis balance and mirrors the amount into
// genesis_burned, keeping genesis_balance + genesis_burned constant.
// Returns pgx.ErrNoRows when the balance is insufficient.
func (r *AccountRepo) BurnGenesis(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET genesis_balance = genesis_balance - $1, genesis_burned = genesis_burned + $1, updated_at = now()
		WHERE user_id = $2 AND genesis_balance >= $1
		RETURNING genesis_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}
