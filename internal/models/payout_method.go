package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutMethod stores only a provider-opaque reference plus a display label.
// The actual financial instrument lives with the external Payout Provider.
// At most one method per account is the default.
type PayoutMethod struct {
	ID               uuid.UUID `json:"id"`
	AccountID        uuid.UUID `json:"account_id"`
	ProviderMethodID string    `json:"provider_method_id"`
	Label            string    `json:"label"`
	IsDefault        bool      `json:"is_default"`
	CreatedAt        time.Time `json:"created_at"`
}
