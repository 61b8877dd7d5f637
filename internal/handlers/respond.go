package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/creospace/credits/internal/models"
	"github.com/creospace/credits/internal/payout"
	"github.com/creospace/credits/internal/wallet"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// The two insufficient-balance errors keep distinct messages: "genesis
// credit cannot cover this" and "not enough earned credit" have different
// user remedies.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
	case errors.Is(err, wallet.ErrSelfTransfer):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot transfer to your own account"})
	case errors.Is(err, wallet.ErrInsufficientGenesisBalance):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient genesis credit"})
	case errors.Is(err, wallet.ErrInsufficientEarnedBalance):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient earned credit"})
	case errors.Is(err, wallet.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
	case errors.Is(err, payout.ErrPayoutNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "payout not found"})
	case errors.Is(err, payout.ErrPayoutMethodNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "payout method not found"})
	case errors.Is(err, wallet.ErrAccountExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "account already exists"})
	case errors.Is(err, models.ErrInvalidPayoutTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "payout already settled or cancelled"})
	case errors.Is(err, wallet.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "concurrent update, please retry"})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
