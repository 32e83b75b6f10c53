package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/service"
)

// maxClaimBody caps the request body. A claim is two short fields.
const maxClaimBody = 4 << 10

// ClaimService is what FaucetHandler needs from service.FaucetService.
type ClaimService interface {
	Claim(ctx context.Context, req service.ClaimRequest) (*service.ClaimResult, error)
}

// FaucetHandler handles faucet claims.
type FaucetHandler struct {
	faucet ClaimService
	logger *slog.Logger
}

// NewFaucetHandler creates a new FaucetHandler.
func NewFaucetHandler(faucet ClaimService, logger *slog.Logger) *FaucetHandler {
	return &FaucetHandler{
		faucet: faucet,
		logger: logger,
	}
}

// claimRequest is the JSON body of POST /faucet/claim.
// githubId is optional; without it the claim is accepted but not recorded.
type claimRequest struct {
	Address  string `json:"address"`
	GitHubID *int64 `json:"githubId,omitempty"`
}

// HandleClaim validates and records a claim.
//
// HTTP: POST /faucet/claim
// REQUEST BODY: {"address": "0x...", "githubId": 123}
// RESPONSE: {"success": true, "message": "Tokens sent to 0x...!", "claimId": "..."}
func (h *FaucetHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxClaimBody)

	var body claimRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("invalid claim JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	result, err := h.faucet.Claim(r.Context(), service.ClaimRequest{
		Address:  body.Address,
		GitHubID: body.GitHubID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
