package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creospace/credits/internal/middleware"
	"github.com/creospace/credits/internal/models"
)

// PayoutService is the subset of the payout engine the handler needs.
type PayoutService interface {
	Request(ctx context.Context, accountID uuid.UUID, amount int64, methodID *uuid.UUID) (*models.Payout, error)
	Cancel(ctx context.Context, accountID, payoutID uuid.UUID) (*models.Payout, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Payout, error)
}

// MethodStore manages provider-opaque payout method references.
type MethodStore interface {
	Create(ctx context.Context, m *models.PayoutMethod) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.PayoutMethod, error)
	SetDefault(ctx context.Context, accountID, methodID uuid.UUID) error
	Delete(ctx context.Context, accountID, methodID uuid.UUID) error
}

// PayoutHandler serves payout requests, cancellation, and method management.
type PayoutHandler struct {
	Payouts PayoutService
	Methods MethodStore
	Logger  *slog.Logger
}

// --- POST /api/v1/payouts ---

type requestPayoutRequest struct {
	Amount         int64  `json:"amount"`
	PayoutMethodID string `json:"payout_method_id"`
}

func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req requestPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	var methodID *uuid.UUID
	if req.PayoutMethodID != "" {
		id, err := uuid.Parse(req.PayoutMethodID)
		if err != nil {
			http.Error(w, `{"error":"invalid payout_method_id"}`, http.StatusBadRequest)
			return
		}
		methodID = &id
	}
	p, err := h.Payouts.Request(r.Context(), userID, req.Amount, methodID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// --- GET /api/v1/payouts ---

func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	payouts, err := h.Payouts.ListByAccount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, payouts)
}

// --- POST /api/v1/payouts/{id}/cancel ---

func (h *PayoutHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	payoutID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid payout id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.Payouts.Cancel(r.Context(), userID, payoutID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- POST /api/v1/payout-methods ---

type addMethodRequest struct {
	ProviderMethodID string `json:"provider_method_id"`
	Label            string `json:"label"`
	MakeDefault      bool   `json:"make_default"`
}

func (h *PayoutHandler) AddMethod(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req addMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ProviderMethodID == "" {
		http.Error(w, `{"error":"provider_method_id is required"}`, http.StatusBadRequest)
		return
	}
	m := &models.PayoutMethod{
		ID:               uuid.New(),
		AccountID:        userID,
		ProviderMethodID: req.ProviderMethodID,
		Label:            req.Label,
	}
	if err := h.Methods.Create(r.Context(), m); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	if req.MakeDefault {
		if err := h.Methods.SetDefault(r.Context(), userID, m.ID); err != nil {
			writeServiceError(w, h.Logger, err)
			return
		}
		m.IsDefault = true
	}
	writeJSON(w, http.StatusCreated, m)
}

// --- GET /api/v1/payout-methods ---

func (h *PayoutHandler) ListMethods(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	methods, err := h.Methods.ListByAccount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

// --- POST /api/v1/payout-methods/{id}/default ---

func (h *PayoutHandler) SetDefaultMethod(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	methodID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid method id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Methods.SetDefault(r.Context(), userID, methodID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payout method not found"})
			return
		}
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- DELETE /api/v1/payout-methods/{id} ---

func (h *PayoutHandler) DeleteMethod(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	methodID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid method id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Methods.Delete(r.Context(), userID, methodID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "payout method not found"})
			return
		}
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
