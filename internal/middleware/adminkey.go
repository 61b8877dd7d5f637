package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AdminKeyAuth guards operator endpoints (account creation, reward earns
// triggered by other backend features). The shared key is configured as a
// bcrypt hash so the plaintext never lives in config.
func AdminKeyAuth(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Admin-Key")
			if key == "" || keyHash == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
