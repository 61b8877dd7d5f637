package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creospace/credits/internal/models"
	"github.com/creospace/credits/internal/pgutils"
)

// TxRunner runs fn inside a database transaction, re-driving it on
// transient conflicts. Satisfied by *pgutils.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// AccountRepo is the minimal account interface the wallet engines need.
type AccountRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	GrantEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	AddEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	DeductEarned(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	BurnGenesis(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
}

// LedgerRepo is the minimal ledger interface the wallet engines need.
type LedgerRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	GetBySourceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, source, sourceID string) (*models.LedgerEntry, error)
}

// Service implements the Earn, Burn, and Transfer engines. Every mutation
// is one atomic unit: lock the account row(s), apply the conditional
// balance update, append the explaining ledger entry.
type Service struct {
	db       TxRunner
	accounts AccountRepo
	ledger   LedgerRepo
}

func NewService(db TxRunner, accounts AccountRepo, ledger LedgerRepo) *Service {
	return &Service{db: db, accounts: accounts, ledger: ledger}
}

// CreateAccount creates the account with its one-time genesis grant and
// writes the opening genesis_grant ledger entry. Account creation is
// explicit: no engine ever auto-creates an account.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID, genesisGrant int64) (*models.Account, error) {
	if genesisGrant < 0 {
		return nil, ErrInvalidAmount
	}
	acc := &models.Account{UserID: userID, GenesisBalance: genesisGrant}
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.accounts.CreateTx(ctx, tx, acc); err != nil {
			if pgutils.IsUniqueViolation(err, "") {
				return ErrAccountExists
			}
			return fmt.Errorf("create account: %w", err)
		}
		if genesisGrant == 0 {
			return nil
		}
		return s.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    userID,
			CreditType:   models.CreditTypeGenesis,
			Amount:       genesisGrant,
			BalanceAfter: genesisGrant,
			Description:  "genesis credit grant",
			Source:       models.SourceGenesisGrant,
		})
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}
	return acc, nil
}

// GetBalances returns the balance snapshot for an account. The read is a
// single row, so it is always consistent with some prefix of the ledger.
func (s *Service) GetBalances(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// Earn credits earned balance for a reward-triggering event. The
// (account, source, source_id) key deduplicates retried triggers: a replay
// returns the original entry and performs no mutation.
func (s *Service) Earn(ctx context.Context, accountID uuid.UUID, amount int64, source, sourceID, description string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var entry *models.LedgerEntry
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		// Dedup check runs under the account lock, so concurrent replays
		// of the same trigger serialize here.
		if sourceID != "" {
			existing, err := s.ledger.GetBySourceTx(ctx, tx, accountID, source, sourceID)
			if err == nil {
				entry = existing
				return nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("dedup lookup: %w", err)
			}
		}
		newBalance, err := s.accounts.GrantEarned(ctx, tx, accountID, amount)
		if err != nil {
			return fmt.Errorf("credit earned: %w", err)
		}
		entry = &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			CreditType:   models.CreditTypeEarned,
			Amount:       amount,
			BalanceAfter: newBalance,
			Description:  description,
			Source:       source,
			SourceID:     optionalStr(sourceID),
		}
		return s.ledger.CreateTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}
	return entry, nil
}

// Burn debits genesis balance for an in-app redemption. Genesis credit
// never falls back to earned balance and never goes negative. Like Earn, a
// replayed (source, source_id) returns the original entry without debiting
// again.
func (s *Service) Burn(ctx context.Context, accountID uuid.UUID, amount int64, source, sourceID, description string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var entry *models.LedgerEntry
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if sourceID != "" {
			existing, err := s.ledger.GetBySourceTx(ctx, tx, accountID, source, sourceID)
			if err == nil {
				entry = existing
				return nil
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("dedup lookup: %w", err)
			}
		}
		newBalance, err := s.accounts.BurnGenesis(ctx, tx, accountID, amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientGenesisBalance
			}
			return fmt.Errorf("burn genesis: %w", err)
		}
		entry = &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			CreditType:   models.CreditTypeGenesis,
			Amount:       -amount,
			BalanceAfter: newBalance,
			Description:  description,
			Source:       source,
			SourceID:     optionalStr(sourceID),
		}
		return s.ledger.CreateTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}
	return entry, nil
}

// TransferResult is the pair of ledger entries a transfer materializes as.
type TransferResult struct {
	TransferID uuid.UUID          `json:"transfer_id"`
	Out        *models.LedgerEntry `json:"out"`
	In         *models.LedgerEntry `json:"in"`
}

// Transfer atomically moves earned credit between two accounts. Both rows
// are locked in deterministic UUID order to avoid deadlocks; either both
// ledger entries are written or neither is.
func (s *Service) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount int64, note string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if senderID == recipientID {
		return nil, ErrSelfTransfer
	}
	transferID := uuid.New()
	sourceID := transferID.String()

	var result *TransferResult
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		ids := []uuid.UUID{senderID, recipientID}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for _, id := range ids {
			if _, err := s.accounts.GetByIDForUpdate(ctx, tx, id); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrAccountNotFound
				}
				return fmt.Errorf("lock account: %w", err)
			}
		}

		senderBalance, err := s.accounts.DeductEarned(ctx, tx, senderID, amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientEarnedBalance
			}
			return fmt.Errorf("debit sender: %w", err)
		}
		recipientBalance, err := s.accounts.AddEarned(ctx, tx, recipientID, amount)
		if err != nil {
			return fmt.Errorf("credit recipient: %w", err)
		}

		out := &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    senderID,
			CreditType:   models.CreditTypeEarned,
			Amount:       -amount,
			BalanceAfter: senderBalance,
			Description:  note,
			Source:       models.SourceTransferOut,
			SourceID:     &sourceID,
		}
		if err := s.ledger.CreateTx(ctx, tx, out); err != nil {
			return fmt.Errorf("append transfer_out: %w", err)
		}
		in := &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    recipientID,
			CreditType:   models.CreditTypeEarned,
			Amount:       amount,
			BalanceAfter: recipientBalance,
			Description:  note,
			Source:       models.SourceTransferIn,
			SourceID:     &sourceID,
		}
		if err := s.ledger.CreateTx(ctx, tx, in); err != nil {
			return fmt.Errorf("append transfer_in: %w", err)
		}
		result = &TransferResult{TransferID: transferID, Out: out, In: in}
		return nil
	})
	if err != nil {
		return nil, s.mapTxErr(err)
	}
	return result, nil
}

// mapTxErr turns an exhausted retry into the transient conflict error the
// caller is expected to retry.
func (s *Service) mapTxErr(err error) error {
	if pgutils.IsRetryable(err) {
		return ErrConcurrencyConflict
	}
	return err
}

func optionalStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
