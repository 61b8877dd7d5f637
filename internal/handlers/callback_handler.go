package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/creospace/credits/internal/provider"
)

// Settler maps a provider settlement onto the payout state machine.
type Settler interface {
	SettleFromProvider(ctx context.Context, providerRef, outcome string) error
}

// CallbackHandler receives the Payout Provider's settlement webhook. The
// body is HMAC-signed; an unsigned or tampered callback never reaches the
// state machine.
type CallbackHandler struct {
	Payouts Settler
	Secret  []byte
	Logger  *slog.Logger
}

type settlementCallback struct {
	ProviderReference string `json:"provider_reference"`
	Outcome           string `json:"outcome"`
}

// Settle handles POST /api/v1/provider/callback.
func (h *CallbackHandler) Settle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if !provider.Verify(h.Secret, body, r.Header.Get("X-Provider-Signature")) {
		h.Logger.Warn("rejected provider callback with bad signature")
		http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
		return
	}

	var cb settlementCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if cb.ProviderReference == "" {
		http.Error(w, `{"error":"provider_reference is required"}`, http.StatusBadRequest)
		return
	}
	if cb.Outcome != "succeeded" && cb.Outcome != "failed" {
		http.Error(w, `{"error":"outcome must be succeeded or failed"}`, http.StatusBadRequest)
		return
	}

	if err := h.Payouts.SettleFromProvider(r.Context(), cb.ProviderReference, cb.Outcome); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	h.Logger.Info("payout settled by provider", "provider_reference", cb.ProviderReference, "outcome", cb.Outcome)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
