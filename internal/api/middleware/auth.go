package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/errs"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// ExtractToken extracts the session token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// SessionValidator resolves a session token to the account that owns it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*account.Account, error)
}

type contextKey string

const accountContextKey contextKey = "account"

// RequireSession rejects requests without a live session and stores the
// session's account in the request context.
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}

			acc, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				var de *errs.Error
				if errors.As(err, &de) && de.Category == errs.CategoryIdentity {
					respondError(w, http.StatusUnauthorized, de.Code, de.Message)
					return
				}
				respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acc)))
		})
	}
}

// RequireCapability lets the request through only when the session's account
// holds c. It must run after RequireSession.
func RequireCapability(c account.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, ok := AccountFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			if !acc.Can(c) {
				respondError(w, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithAccount(ctx context.Context, acc *account.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acc)
}

// AccountFromContext retrieves the authenticated account from the request context
func AccountFromContext(ctx context.Context) (*account.Account, bool) {
	acc, ok := ctx.Value(accountContextKey).(*account.Account)
	return acc, ok && acc != nil
}
