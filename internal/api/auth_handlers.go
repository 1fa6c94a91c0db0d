package api

import (
	"net/http"
	"time"

	"github.com/example/gas-agency/internal/api/middleware"
	"github.com/example/gas-agency/internal/domain/account"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	refreshPath   = "/api/auth/refresh"
)

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,max=50"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	Password    string `json:"password" validate:"required"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// SessionResponse is returned by login and refresh. The tokens are also set
// as HttpOnly cookies for browser clients.
type SessionResponse struct {
	Account          *account.Account `json:"account"`
	AccessToken      string           `json:"access_token"`
	AccessExpiresAt  time.Time        `json:"access_expires_at"`
	RefreshToken     string           `json:"refresh_token"`
	RefreshExpiresAt time.Time        `json:"refresh_expires_at"`
}

// Register handles customer registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.accounts.Register(r.Context(), account.RegisterInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, acc)
}

// Login handles authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	issued, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password, clientInfo(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	setAuthCookies(w, r, issued)
	respondJSON(w, http.StatusOK, sessionResponse(issued))
}

// Refresh rotates a session. The refresh token comes from the body or the
// refresh_token cookie.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(refreshCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, account.ErrSessionNotFound.Code, "refresh token required")
		return
	}

	issued, err := h.accounts.Refresh(r.Context(), token, clientInfo(r))
	if err != nil {
		clearAuthCookies(w)
		h.respondError(w, r, err)
		return
	}

	setAuthCookies(w, r, issued)
	respondJSON(w, http.StatusOK, sessionResponse(issued))
}

// Logout ends the current session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), middleware.ExtractToken(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the current account
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

// ChangePassword replaces the caller's password. Every session of the
// account ends, including this one.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), acc.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(w, r, err)
		return
	}
	clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func clientInfo(r *http.Request) account.ClientInfo {
	return account.ClientInfo{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent()}
}

func sessionResponse(s *account.IssuedSession) SessionResponse {
	acc := s.Account
	return SessionResponse{
		Account:          &acc,
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

func setAuthCookies(w http.ResponseWriter, r *http.Request, s *account.IssuedSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    s.AccessToken,
		Path:     "/",
		Expires:  s.AccessExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    s.RefreshToken,
		Path:     refreshPath,
		Expires:  s.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     refreshPath,
		MaxAge:   -1,
		HttpOnly: true,
	})
}
