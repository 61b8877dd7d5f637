package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creospace/credits/internal/middleware"
	"github.com/creospace/credits/internal/models"
	"github.com/creospace/credits/internal/repository"
	"github.com/creospace/credits/internal/wallet"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockWallet returns canned results so the handler's decoding, validation,
// and error mapping can be tested in isolation.
type mockWallet struct {
	account *models.Account
	entry   *models.LedgerEntry
	result  *wallet.TransferResult
	err     error

	lastAmount   int64
	lastSource   string
	lastSourceID string
}

func (m *mockWallet) CreateAccount(_ context.Context, userID uuid.UUID, grant int64) (*models.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Account{UserID: userID, GenesisBalance: grant}, nil
}

func (m *mockWallet) GetBalances(context.Context, uuid.UUID) (*models.Account, error) {
	return m.account, m.err
}

func (m *mockWallet) Earn(_ context.Context, _ uuid.UUID, amount int64, source, sourceID, _ string) (*models.LedgerEntry, error) {
	m.lastAmount, m.lastSource, m.lastSourceID = amount, source, sourceID
	return m.entry, m.err
}

func (m *mockWallet) Burn(_ context.Context, _ uuid.UUID, amount int64, source, sourceID, _ string) (*models.LedgerEntry, error) {
	m.lastAmount, m.lastSource, m.lastSourceID = amount, source, sourceID
	return m.entry, m.err
}

func (m *mockWallet) Transfer(context.Context, uuid.UUID, uuid.UUID, int64, string) (*wallet.TransferResult, error) {
	return m.result, m.err
}

type mockLedgerReader struct {
	entries    []*models.LedgerEntry
	lastFilter repository.LedgerFilter
}

func (m *mockLedgerReader) ListByAccount(_ context.Context, _ uuid.UUID, f repository.LedgerFilter) ([]*models.LedgerEntry, error) {
	m.lastFilter = f
	return m.entries, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authed(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), userID))
}

// ---------------------------------------------------------------------------
// GetBalances
// ---------------------------------------------------------------------------

func TestGetBalances(t *testing.T) {
	userID := uuid.New()
	mw := &mockWallet{account: &models.Account{UserID: userID, GenesisBalance: 70, EarnedBalance: 15}}
	h := &WalletHandler{Wallet: mw, Logger: testLogger()}

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), userID)
	rec := httptest.NewRecorder()
	h.GetBalances(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got models.Account
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GenesisBalance != 70 || got.EarnedBalance != 15 {
		t.Errorf("balances: got %d/%d, want 70/15", got.GenesisBalance, got.EarnedBalance)
	}
}

func TestGetBalancesUnauthenticated(t *testing.T) {
	h := &WalletHandler{Wallet: &mockWallet{}, Logger: testLogger()}
	rec := httptest.NewRecorder()
	h.GetBalances(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{wallet.ErrInvalidAmount, http.StatusBadRequest},
		{wallet.ErrSelfTransfer, http.StatusBadRequest},
		{wallet.ErrInsufficientGenesisBalance, http.StatusPaymentRequired},
		{wallet.ErrInsufficientEarnedBalance, http.StatusPaymentRequired},
		{wallet.ErrAccountNotFound, http.StatusNotFound},
		{wallet.ErrAccountExists, http.StatusConflict},
		{models.ErrInvalidPayoutTransition, http.StatusConflict},
		{wallet.ErrConcurrencyConflict, http.StatusConflict},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	userID := uuid.New()
	for _, tc := range cases {
		mw := &mockWallet{err: tc.err}
		h := &WalletHandler{Wallet: mw, Logger: testLogger()}

		body := strings.NewReader(`{"recipient_id":"` + uuid.NewString() + `","amount":10}`)
		req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", body), userID)
		rec := httptest.NewRecorder()
		h.Transfer(rec, req)

		if rec.Code != tc.want {
			t.Errorf("%v: status got %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Earn
// ---------------------------------------------------------------------------

func TestEarnValidation(t *testing.T) {
	mw := &mockWallet{entry: &models.LedgerEntry{Amount: 25}}
	h := &WalletHandler{Wallet: mw, Logger: testLogger()}

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/earn", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Earn(rec, req)
		return rec
	}

	accountID := uuid.NewString()

	if rec := post(`{"account_id":"` + accountID + `","amount":25,"source":"project_create","source_id":"p-1"}`); rec.Code != http.StatusOK {
		t.Errorf("valid earn: status got %d, want 200", rec.Code)
	}
	if mw.lastSource != "project_create" || mw.lastSourceID != "p-1" {
		t.Errorf("forwarded trigger: got %s/%s", mw.lastSource, mw.lastSourceID)
	}

	// The trigger key is mandatory; an earn without it cannot be
	// deduplicated.
	if rec := post(`{"account_id":"` + accountID + `","amount":25,"source":"project_create"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing source_id: status got %d, want 400", rec.Code)
	}
	if rec := post(`{"account_id":"` + accountID + `","amount":25,"source_id":"p-1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing source: status got %d, want 400", rec.Code)
	}
	if rec := post(`{"account_id":"nope","amount":25,"source":"x","source_id":"y"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad account id: status got %d, want 400", rec.Code)
	}
	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status got %d, want 400", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Burn
// ---------------------------------------------------------------------------

func TestBurnDefaultsSource(t *testing.T) {
	userID := uuid.New()
	mw := &mockWallet{entry: &models.LedgerEntry{Amount: -30}}
	h := &WalletHandler{Wallet: mw, Logger: testLogger()}

	body := strings.NewReader(`{"amount":30,"source_id":"boost-1"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/burn", body), userID)
	rec := httptest.NewRecorder()
	h.Burn(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if mw.lastSource != models.SourceRedemption {
		t.Errorf("default source: got %s, want %s", mw.lastSource, models.SourceRedemption)
	}
	if mw.lastAmount != 30 {
		t.Errorf("amount: got %d, want 30", mw.lastAmount)
	}
}

// ---------------------------------------------------------------------------
// Ledger paging
// ---------------------------------------------------------------------------

func TestListLedger(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()
	entries := []*models.LedgerEntry{
		{ID: uuid.New(), AccountID: userID, CreatedAt: now},
		{ID: uuid.New(), AccountID: userID, CreatedAt: now.Add(-time.Minute)},
	}
	ml := &mockLedgerReader{entries: entries}
	h := &WalletHandler{Wallet: &mockWallet{}, Ledger: ml, Logger: testLogger()}

	get := func(query string) *httptest.ResponseRecorder {
		req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/ledger"+query, nil), userID)
		rec := httptest.NewRecorder()
		h.ListLedger(rec, req)
		return rec
	}

	rec := get("?credit_type=earned&limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if ml.lastFilter.CreditType != models.CreditTypeEarned || ml.lastFilter.Limit != 2 {
		t.Errorf("filter: got %+v", ml.lastFilter)
	}

	var page ledgerPageResponse
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(page.Entries))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next_cursor")
	}

	// The cursor round-trips into the next page's filter.
	rec = get("?cursor=" + page.NextCursor)
	if rec.Code != http.StatusOK {
		t.Fatalf("cursor page status: got %d, want 200", rec.Code)
	}
	last := entries[len(entries)-1]
	if !ml.lastFilter.Before.Equal(last.CreatedAt) || ml.lastFilter.BeforeID != last.ID {
		t.Errorf("cursor filter: got before=%v id=%s, want %v/%s",
			ml.lastFilter.Before, ml.lastFilter.BeforeID, last.CreatedAt, last.ID)
	}

	if rec := get("?credit_type=platinum"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad credit_type: status got %d, want 400", rec.Code)
	}
	if rec := get("?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status got %d, want 400", rec.Code)
	}
	if rec := get("?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status got %d, want 400", rec.Code)
	}
	if rec := get("?cursor=garbage"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor: status got %d, want 400", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// CreateAccount
// ---------------------------------------------------------------------------

func TestCreateAccount(t *testing.T) {
	h := &WalletHandler{Wallet: &mockWallet{}, Logger: testLogger()}

	body := strings.NewReader(`{"user_id":"` + uuid.NewString() + `","genesis_grant":100}`)
	rec := httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/api/v1/accounts", body))
	if rec.Code != http.StatusCreated {
		t.Errorf("status: got %d, want 201", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(`{"user_id":"nope"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad user_id: status got %d, want 400", rec.Code)
	}
}
