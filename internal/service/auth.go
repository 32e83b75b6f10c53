// Package service — authentication business logic.
//
// AuthService is the business logic layer for sign-in. It sits between the
// HTTP handlers and the GitHub client / user store:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ GitHubClient (token exchange, profile, emails)
//
// KEY RESPONSIBILITIES:
//   - Turn an authorization code into a stored user record
//   - Translate every failure into an apperror kind the HTTP layer understands
//   - Keep raw upstream errors in the server log, out of client responses
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/auth"
	"github.com/sakif/gh-faucet/internal/model"
	"github.com/sakif/gh-faucet/internal/repository"
)

// GitHubClient is the subset of *auth.GitHubProvider that AuthService uses.
// Tests substitute a fake.
type GitHubClient interface {
	AuthURL() string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUser(ctx context.Context, token *oauth2.Token) (*auth.GitHubUser, error)
	FetchEmails(ctx context.Context, token *oauth2.Token) ([]auth.GitHubEmail, error)
}

// AuthService handles the sign-in business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - github  GitHubClient               → talks to GitHub
//   - users   repository.UserRepository  → read/write user records
//   - logger  *slog.Logger               → structured logging
type AuthService struct {
	github GitHubClient
	users  repository.UserRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(github GitHubClient, users repository.UserRepository, logger *slog.Logger) *AuthService {
	return &AuthService{
		github: github,
		users:  users,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AuthURL returns the GitHub authorization URL the frontend redirects to.
func (s *AuthService) AuthURL() string {
	return s.github.AuthURL()
}

// CompleteSignIn handles the GitHub OAuth callback.
//
//  1. Exchange the code for an access token
//  2. Fetch the profile and the email list at the same time
//  3. Pick the primary email
//  4. Upsert the user (create on first sign-in, refresh profile afterwards)
//
// ERRORS:
//   - blank code                    → apperror.ErrValidation, no network call
//   - GitHub refused the code       → apperror.ErrUpstreamAuth
//   - any other GitHub failure      → apperror.ErrAuthentication
//   - the store failed              → apperror.ErrPersistence
//
// A failing email list is not fatal: the profile's public email is used instead.
func (s *AuthService) CompleteSignIn(ctx context.Context, code string) (*model.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Authorization code is required")
	}

	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		var te *auth.TokenError
		if errors.As(err, &te) {
			s.logger.Warn("GitHub rejected authorization code",
				slog.String("error_code", te.Code),
				slog.String("description", te.Description),
			)
			return nil, apperror.UpstreamAuth(te.Description)
		}
		s.logger.Error("GitHub token exchange failed", slog.String("error", err.Error()))
		return nil, apperror.AuthenticationFailed()
	}

	// CONCURRENT FETCH:
	// Profile and emails are independent once the token is known. The email
	// goroutine never returns an error so a failing /user/emails cannot cancel
	// the profile request.
	var (
		ghUser *auth.GitHubUser
		emails []auth.GitHubEmail
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.github.FetchUser(gctx, token)
		if err != nil {
			return err
		}
		ghUser = u
		return nil
	})
	g.Go(func() error {
		list, err := s.github.FetchEmails(gctx, token)
		if err != nil {
			s.logger.Warn("GitHub email list unavailable, using profile email",
				slog.String("error", err.Error()),
			)
			return nil
		}
		emails = list
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("GitHub profile fetch failed", slog.String("error", err.Error()))
		return nil, apperror.AuthenticationFailed()
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     primaryEmail(emails, ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
		CreatedAt: s.now(),
	}

	// After Upsert, user holds the stored record: the original CreatedAt and
	// any claim fields of a returning user.
	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Error("failed to upsert user",
			slog.Int64("githubID", user.GitHubID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.PersistenceFailed("Failed to save user")
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("githubID", user.GitHubID),
		slog.String("login", user.Login),
	)
	return user, nil
}

// ListUsers returns every stored user, oldest first.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, apperror.PersistenceFailed("Failed to list users")
	}
	return users, nil
}

// primaryEmail picks the first entry flagged primary with a non-empty address,
// falling back to the profile email (which may itself be empty).
func primaryEmail(emails []auth.GitHubEmail, fallback string) string {
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			return e.Email
		}
	}
	return fallback
}
