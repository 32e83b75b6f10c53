// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the canonical identity record for someone who signed in with GitHub.
//
// WHY GitHubID AS THE KEY?
// GitHub user IDs are integers (e.g. 1234567) that never change, even when the
// user renames their account. Login is mutable upstream, so it is refreshed on
// every sign-in instead of being used for lookups.
//
// FIELD OWNERSHIP:
//   - Login, Email, AvatarURL  → overwritten on every successful sign-in
//   - EthAddress, LastClaimedAt → only written by a faucet claim
//   - CreatedAt                 → set once on insert, never changed
//
// The JSON names match what the frontend reads from the ?user= redirect parameter.
type User struct {
	GitHubID      int64      `json:"id"`
	Login         string     `json:"login"`
	Email         string     `json:"email"` // Primary email (may be empty)
	AvatarURL     string     `json:"avatar_url,omitempty"`
	EthAddress    string     `json:"eth_address,omitempty"`
	LastClaimedAt *time.Time `json:"last_claimed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
