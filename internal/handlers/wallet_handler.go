package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creospace/credits/internal/middleware"
	"github.com/creospace/credits/internal/models"
	"github.com/creospace/credits/internal/repository"
	"github.com/creospace/credits/internal/wallet"
)

// WalletService is the subset of the wallet engines the handler needs.
type WalletService interface {
	CreateAccount(ctx context.Context, userID uuid.UUID, genesisGrant int64) (*models.Account, error)
	GetBalances(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	Earn(ctx context.Context, accountID uuid.UUID, amount int64, source, sourceID, description string) (*models.LedgerEntry, error)
	Burn(ctx context.Context, accountID uuid.UUID, amount int64, source, sourceID, description string) (*models.LedgerEntry, error)
	Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount int64, note string) (*wallet.TransferResult, error)
}

// LedgerReader pages the append-only ledger.
type LedgerReader interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID, f repository.LedgerFilter) ([]*models.LedgerEntry, error)
}

// WalletHandler serves the balance, ledger, earn, burn, and transfer
// endpoints.
type WalletHandler struct {
	Wallet WalletService
	Ledger LedgerReader
	Logger *slog.Logger
}

// --- GET /api/v1/wallet ---

func (h *WalletHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	acc, err := h.Wallet.GetBalances(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// --- GET /api/v1/wallet/ledger ---

type ledgerPageResponse struct {
	Entries    []*models.LedgerEntry `json:"entries"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func (h *WalletHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	f := repository.LedgerFilter{
		CreditType: r.URL.Query().Get("credit_type"),
	}
	if f.CreditType != "" && f.CreditType != models.CreditTypeGenesis && f.CreditType != models.CreditTypeEarned {
		http.Error(w, `{"error":"invalid credit_type"}`, http.StatusBadRequest)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		before, beforeID, ok := decodeCursor(raw)
		if !ok {
			http.Error(w, `{"error":"invalid cursor"}`, http.StatusBadRequest)
			return
		}
		f.Before, f.BeforeID = before, beforeID
	}

	entries, err := h.Ledger.ListByAccount(r.Context(), userID, f)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	resp := ledgerPageResponse{Entries: entries}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		resp.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- POST /api/v1/wallet/earn (admin; called by reward triggers) ---

type earnRequest struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
	Description string `json:"description"`
}

func (h *WalletHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req earnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		http.Error(w, `{"error":"invalid account_id"}`, http.StatusBadRequest)
		return
	}
	if req.Source == "" || req.SourceID == "" {
		http.Error(w, `{"error":"source and source_id are required"}`, http.StatusBadRequest)
		return
	}
	entry, err := h.Wallet.Earn(r.Context(), accountID, req.Amount, req.Source, req.SourceID, req.Description)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// --- POST /api/v1/wallet/burn ---

type burnRequest struct {
	Amount      int64  `json:"amount"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
	Description string `json:"description"`
}

func (h *WalletHandler) Burn(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req burnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = models.SourceRedemption
	}
	entry, err := h.Wallet.Burn(r.Context(), userID, req.Amount, req.Source, req.SourceID, req.Description)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// --- POST /api/v1/wallet/transfer ---

type transferRequest struct {
	RecipientID string `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note"`
}

func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		http.Error(w, `{"error":"invalid recipient_id"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Wallet.Transfer(r.Context(), userID, recipientID, req.Amount, req.Note)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- POST /api/v1/accounts (admin) ---

type createAccountRequest struct {
	UserID       string `json:"user_id"`
	GenesisGrant int64  `json:"genesis_grant"`
}

func (h *WalletHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, `{"error":"invalid user_id"}`, http.StatusBadRequest)
		return
	}
	acc, err := h.Wallet.CreateAccount(r.Context(), userID, req.GenesisGrant)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// --- cursor helpers ---

// Cursors are "<unix-nanos>:<entry-uuid>", pointing at the last entry of
// the previous page.
func encodeCursor(t time.Time, id uuid.UUID) string {
	return strconv.FormatInt(t.UnixNano(), 10) + ":" + id.String()
}

func decodeCursor(raw string) (time.Time, uuid.UUID, bool) {
	nanosStr, idStr, ok := strings.Cut(raw, ":")
	if !ok {
		return time.Time{}, uuid.Nil, false
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return time.Time{}, uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return time.Time{}, uuid.Nil, false
	}
	return time.Unix(0, nanos), id, true
}
