package router

import (
	"net/http"

	"github.com/creospace/credits/internal/handlers"
)

// Middleware wraps a handler, e.g. for authentication.
type Middleware func(http.Handler) http.Handler

// New returns the API route table under /api/v1. User routes go through
// userAuth; operator routes (account creation, reward earns) through
// adminAuth; the provider callback authenticates via its body signature.
func New(
	walletH *handlers.WalletHandler,
	payoutH *handlers.PayoutHandler,
	callbackH *handlers.CallbackHandler,
	userAuth Middleware,
	adminAuth Middleware,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/wallet", userAuth(http.HandlerFunc(walletH.GetBalances)))
	mux.Handle("GET /api/v1/wallet/ledger", userAuth(http.HandlerFunc(walletH.ListLedger)))
	mux.Handle("POST /api/v1/wallet/burn", userAuth(http.HandlerFunc(walletH.Burn)))
	mux.Handle("POST /api/v1/wallet/transfer", userAuth(http.HandlerFunc(walletH.Transfer)))

	mux.Handle("POST /api/v1/wallet/earn", adminAuth(http.HandlerFunc(walletH.Earn)))
	mux.Handle("POST /api/v1/accounts", adminAuth(http.HandlerFunc(walletH.CreateAccount)))

	mux.Handle("POST /api/v1/payouts", userAuth(http.HandlerFunc(payoutH.RequestPayout)))
	mux.Handle("GET /api/v1/payouts", userAuth(http.HandlerFunc(payoutH.ListPayouts)))
	mux.Handle("POST /api/v1/payouts/{id}/cancel", userAuth(http.HandlerFunc(payoutH.CancelPayout)))

	mux.Handle("POST /api/v1/payout-methods", userAuth(http.HandlerFunc(payoutH.AddMethod)))
	mux.Handle("GET /api/v1/payout-methods", userAuth(http.HandlerFunc(payoutH.ListMethods)))
	mux.Handle("DELETE /api/v1/payout-methods/{id}", userAuth(http.HandlerFunc(payoutH.DeleteMethod)))
	mux.Handle("POST /api/v1/payout-methods/{id}/default", userAuth(http.HandlerFunc(payoutH.SetDefaultMethod)))

	mux.Handle("POST /api/v1/provider/callback", http.HandlerFunc(callbackH.Settle))

	return mux
}
