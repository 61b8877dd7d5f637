package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creospace/credits/internal/models"
)

// LedgerRepo is append-only: entries are created once and never updated or
// deleted. Corrections are modeled as new offsetting entries.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction. The partial
// unique index on (account_id, source, source_id) rejects a duplicate entry
// for the same triggering event.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, credit_type, amount, balance_after, description, source, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.AccountID, e.CreditType, e.Amount, e.BalanceAfter, e.Description, e.Source, e.SourceID).Scan(&e.CreatedAt)
}

// GetBySourceTx looks up the entry written for a given triggering event.
// Returns pgx.ErrNoRows when no such entry exists. Call after locking the
// account row so the check cannot race a concurrent writer.
func (r *LedgerRepo) GetBySourceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, source, sourceID string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, credit_type, amount, balance_after, description, source, source_id, created_at
		FROM ledger_entries WHERE account_id = $1 AND source = $2 AND source_id = $3
	`, accountID, source, sourceID).Scan(&e.ID, &e.AccountID, &e.CreditType, &e.Amount, &e.BalanceAfter, &e.Description, &e.Source, &e.SourceID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LedgerFilter narrows and pages a ledger listing. Before/BeforeID form a
// keyset cursor; zero values mean "from the newest entry".
type LedgerFilter struct {
	CreditType string
	Before     time.Time
	BeforeID   uuid.UUID
	Limit      int
}

// ListByAccount returns entries newest-first. The (created_at, id) keyset
// keeps pages restartable from any cursor without skipping entries that
// share a timestamp.
func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, f LedgerFilter) ([]*models.LedgerEntry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, account_id, credit_type, amount, balance_after, description, source, source_id, created_at
		FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}

	if f.CreditType != "" {
		args = append(args, f.CreditType)
		query += ` AND credit_type = $2`
	}
	if !f.Before.IsZero() {
		args = append(args, f.Before, f.BeforeID)
		n := len(args)
		query += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, n-1, n)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.CreditType, &e.Amount, &e.BalanceAfter, &e.Description, &e.Source, &e.SourceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
