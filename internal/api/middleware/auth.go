package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards administrative routes. Admin access requires a bearer
// token whose bcrypt hash matches the configured value; the plaintext
// token is never stored server-side.
type AdminAuth struct {
	tokenHash string
}

// NewAdminAuth creates the admin auth middleware. An empty hash disables
// admin access entirely rather than leaving it open.
func NewAdminAuth(tokenHash string) *AdminAuth {
	return &AdminAuth{tokenHash: tokenHash}
}

// Verify reports whether the request carries a valid admin bearer token.
func (a *AdminAuth) Verify(r *http.Request) bool {
	if a.tokenHash == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) == nil
}

// RequireAdmin rejects requests without a valid admin token.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Verify(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
