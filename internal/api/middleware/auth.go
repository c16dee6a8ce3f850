package middleware

import (
	"net/http"
	"strings"

	"github.com/akettlewell/chatqueue/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth gates the admin endpoints behind a single bearer token,
// checked against a bcrypt hash from configuration. An empty hash
// disables the admin surface entirely.
type AdminAuth struct {
	tokenHash string
}

// NewAdminAuth creates the admin auth middleware. tokenHash is a bcrypt
// hash of the expected bearer token.
func NewAdminAuth(tokenHash string) *AdminAuth {
	return &AdminAuth{tokenHash: tokenHash}
}

// Require rejects requests that do not carry the admin bearer token.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.tokenHash == "" {
			response.Error(w, http.StatusForbidden,
				"ADMIN_DISABLED", "Admin access is not configured", nil)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid admin token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
