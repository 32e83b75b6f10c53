package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/repository"
)

// addressPattern accepts "0x" followed by exactly 40 hex digits, either case.
// No EIP-55 checksum is verified.
var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ClaimRequest is one faucet claim. GitHubID is optional: anonymous claims
// succeed without touching the store.
type ClaimRequest struct {
	Address  string
	GitHubID *int64
}

// ClaimResult is what the client sees after a successful claim.
// ClaimID identifies the (simulated) transfer in the server log.
type ClaimResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ClaimID string `json:"claimId"`
}

// FaucetService validates claims and records them against known users.
//
// NOTE: no tokens are actually sent. A claim is validated, optionally stored
// on the user record and logged.
type FaucetService struct {
	users  repository.UserRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewFaucetService(users repository.UserRepository, logger *slog.Logger) *FaucetService {
	return &FaucetService{
		users:  users,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Claim validates the address and, when the request names a known user,
// records the address and claim time on that user.
//
// An unknown GitHubID is not an error. Nothing is written for it and the
// claim still succeeds.
func (s *FaucetService) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, apperror.ValidationFailed("address", "Address is required")
	}
	if !addressPattern.MatchString(address) {
		return nil, apperror.InvalidAddress("address", "Invalid Ethereum address format")
	}

	claimID := xid.New().String()
	logger := s.logger.With(slog.String("claimID", claimID), slog.String("address", address))

	if req.GitHubID != nil {
		githubID := *req.GitHubID
		_, err := s.users.RecordClaim(ctx, githubID, address, s.now())
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			logger.Info("claim for unknown user, not recorded", slog.Int64("githubID", githubID))
		case err != nil:
			logger.Error("failed to record claim",
				slog.Int64("githubID", githubID),
				slog.String("error", err.Error()),
			)
			return nil, apperror.PersistenceFailed("Failed to record claim")
		default:
			logger = logger.With(slog.Int64("githubID", githubID))
		}
	}

	logger.Info("faucet claim accepted")

	return &ClaimResult{
		Success: true,
		Message: fmt.Sprintf("Tokens sent to %s! Check your wallet in a few minutes.", address),
		ClaimID: claimID,
	}, nil
}
