// Package memory implements repository.UserRepository with an in-process map.
//
// It is the simplest backend: nothing survives a restart. Useful for local
// development (STORE_DRIVER=memory) and as a reference for the contract the
// other backends must satisfy.
//
// OWNERSHIP:
// There is no package-level map. Each *Store is created by its owner
// (server.New) and passed down by pointer, so two servers in the same process
// (or two tests) never share users.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/model"
	"github.com/sakif/gh-faucet/internal/repository"
)

// compile-time check that *Store implements repository.UserRepository
var _ repository.UserRepository = (*Store)(nil)

// Store keeps users in a map guarded by a RWMutex.
//
// Values are stored (not pointers) and copied on the way in and out, so a
// caller mutating a returned *model.User can never change the stored record.
type Store struct {
	mu    sync.RWMutex
	users map[int64]model.User
}

// New creates an empty Store.
func New() *Store {
	return &Store{users: make(map[int64]model.User)}
}

// Close is a no-op; it exists so every backend can be shut down the same way.
func (s *Store) Close() error {
	return nil
}

func (s *Store) GetByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[githubID]
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(githubID))
	}
	return cloneUser(u), nil
}

// Upsert holds the write lock for the whole read-merge-write, which is what
// makes it atomic per key.
func (s *Store) Upsert(_ context.Context, user *model.User) error {
	if user.GitHubID == 0 {
		return fmt.Errorf("memory: user has no GitHub ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.users[user.GitHubID]
	if exists {
		stored.Login = user.Login
		stored.Email = user.Email
		stored.AvatarURL = user.AvatarURL
	} else {
		stored = model.User{
			GitHubID:  user.GitHubID,
			Login:     user.Login,
			Email:     user.Email,
			AvatarURL: user.AvatarURL,
			CreatedAt: user.CreatedAt,
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
	}
	s.users[user.GitHubID] = stored

	*user = *cloneUser(stored)
	return nil
}

func (s *Store) List(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, *cloneUser(u))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].GitHubID < result[j].GitHubID
	})
	return result, nil
}

func (s *Store) RecordClaim(_ context.Context, githubID int64, address string, claimedAt time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[githubID]
	if !ok {
		return nil, apperror.NotFound("user", fmt.Sprint(githubID))
	}

	at := claimedAt
	stored.EthAddress = address
	stored.LastClaimedAt = &at
	s.users[githubID] = stored

	return cloneUser(stored), nil
}

// cloneUser copies u including the LastClaimedAt pointer target.
func cloneUser(u model.User) *model.User {
	c := u
	if u.LastClaimedAt != nil {
		at := *u.LastClaimedAt
		c.LastClaimedAt = &at
	}
	return &c
}
