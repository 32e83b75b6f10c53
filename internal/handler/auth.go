package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/model"
)

// SignInService is what AuthHandler needs from service.AuthService.
type SignInService interface {
	AuthURL() string
	CompleteSignIn(ctx context.Context, code string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// providerGitHub is the only identity provider. Any other value of the
// {provider} path segment is a 404.
const providerGitHub = "github"

// AuthHandler manages the GitHub OAuth sign-in flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleAuthURL  → tell the frontend where to send the browser
//   - HandleCallback → receive the code, sign the user in, redirect to the frontend
//   - HandleListUsers → return every stored user
//
// The frontend reads the signed-in user from the ?user= query parameter of
// the redirect. No cookie or session is set.
type AuthHandler struct {
	auth        SignInService
	frontendURL *url.URL
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. frontendURL is where the callback
// redirects to; it must be an absolute URL.
func NewAuthHandler(auth SignInService, frontendURL *url.URL, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// HandleAuthURL returns the GitHub authorization URL.
//
// HTTP: GET /auth/{provider}
// RESPONSE: {"authUrl": "https://github.com/login/oauth/authorize?..."}
func (h *AuthHandler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	if !h.knownProvider(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": h.auth.AuthURL()})
}

// HandleCallback completes the OAuth sign-in.
//
// HTTP: GET /auth/{provider}/callback?code=xxx
//
// FLOW:
//  1. If GitHub reports that the user denied access, redirect with ?auth=denied
//  2. Hand the code to the service (exchange, fetch profile, upsert)
//  3. Redirect to the frontend with the user JSON in ?user=
//
// Failures are answered with a JSON error body, not a redirect.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.knownProvider(w, r) {
		return
	}

	query := r.URL.Query()

	// Check if GitHub sent an error (user denied authorization)
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, h.frontendRedirect("auth", "denied"), http.StatusFound)
		return
	}

	user, err := h.auth.CompleteSignIn(r.Context(), query.Get("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := json.Marshal(user)
	if err != nil {
		h.logger.Error("auth callback: encoding user", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.frontendRedirect("user", string(payload)), http.StatusFound)
}

// HandleListUsers returns every stored user, oldest first.
//
// HTTP: GET /users
func (h *AuthHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AuthHandler) knownProvider(w http.ResponseWriter, r *http.Request) bool {
	provider := chi.URLParam(r, "provider")
	if provider == providerGitHub {
		return true
	}
	writeError(w, apperror.NotFound("provider", provider))
	return false
}

// frontendRedirect builds FRONTEND_URL with one extra query parameter,
// keeping any query the configured URL already has.
func (h *AuthHandler) frontendRedirect(key, value string) string {
	u := *h.frontendURL
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
