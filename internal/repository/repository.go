// Package repository declares the storage contracts the services depend on.
//
// Concrete backends live in sub-packages (memory, sqlite, badger). Services only
// see the interface, so the backing store can be swapped in server.New without
// touching any business logic.
package repository

import (
	"context"
	"time"

	"github.com/sakif/gh-faucet/internal/model"
)

// UserRepository persists users keyed by their GitHub ID.
//
// Every method is atomic for a single key: two concurrent Upserts for the same
// GitHubID leave exactly one complete record behind, never a mix of both.
type UserRepository interface {
	// GetByGitHubID returns apperror.ErrNotFound if no such user exists.
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)

	// Upsert inserts the user or refreshes Login, Email and AvatarURL of the
	// existing record. CreatedAt, EthAddress and LastClaimedAt of an existing
	// record are preserved. On return *user holds the stored record.
	Upsert(ctx context.Context, user *model.User) error

	// List returns every user ordered by CreatedAt, then GitHubID.
	List(ctx context.Context) ([]model.User, error)

	// RecordClaim sets EthAddress and LastClaimedAt on an existing user and
	// returns the updated record. Returns apperror.ErrNotFound if the user
	// does not exist; no record is created in that case.
	RecordClaim(ctx context.Context, githubID int64, address string, claimedAt time.Time) (*model.User, error)
}
