package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/model"
	"github.com/sakif/gh-faucet/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// getUser reads and decodes one user inside txn.
// badger.ErrKeyNotFound is returned untouched so callers can branch on it.
func getUser(txn *badgerdb.Txn, githubID int64) (*model.User, error) {
	item, err := txn.Get(makeUserKey(githubID))
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &u)
	}); err != nil {
		return nil, fmt.Errorf("decoding user %d: %w", githubID, err)
	}
	return &u, nil
}

func putUser(txn *badgerdb.Txn, u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding user %d: %w", u.GitHubID, err)
	}
	return txn.Set(makeUserKey(u.GitHubID), data)
}

func (d *DB) GetByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	var user *model.User
	err := d.db.View(func(txn *badgerdb.Txn) error {
		var err error
		user, err = getUser(txn, githubID)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, apperror.NotFound("user", fmt.Sprint(githubID))
	}
	if err != nil {
		return nil, fmt.Errorf("badger: getting user %d: %w", githubID, err)
	}
	return user, nil
}

// Upsert merges the profile fields into the stored record inside a single
// read-write transaction. CreatedAt and the claim fields of an existing record
// are kept.
func (d *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == 0 {
		return fmt.Errorf("badger: user has no GitHub ID")
	}

	var stored *model.User
	err := d.update(ctx, func(txn *badgerdb.Txn) error {
		existing, err := getUser(txn, user.GitHubID)
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			existing = &model.User{GitHubID: user.GitHubID, CreatedAt: user.CreatedAt}
			if existing.CreatedAt.IsZero() {
				existing.CreatedAt = time.Now().UTC()
			}
		case err != nil:
			return err
		}

		existing.Login = user.Login
		existing.Email = user.Email
		existing.AvatarURL = user.AvatarURL
		stored = existing
		return putUser(txn, existing)
	})
	if err != nil {
		return fmt.Errorf("badger: upserting user (githubID=%d): %w", user.GitHubID, err)
	}

	*user = *stored
	return nil
}

// List walks the user_ prefix and returns every user, oldest first.
func (d *DB) List(_ context.Context) ([]model.User, error) {
	users := []model.User{}
	err := d.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixUser + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u model.User
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &u)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: listing users: %w", err)
	}

	// Keys sort lexically ("user_10" < "user_9"), so order explicitly.
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].GitHubID < users[j].GitHubID
	})
	return users, nil
}

func (d *DB) RecordClaim(ctx context.Context, githubID int64, address string, claimedAt time.Time) (*model.User, error) {
	var stored *model.User
	err := d.update(ctx, func(txn *badgerdb.Txn) error {
		existing, err := getUser(txn, githubID)
		if err != nil {
			return err
		}
		at := claimedAt
		existing.EthAddress = address
		existing.LastClaimedAt = &at
		stored = existing
		return putUser(txn, existing)
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, apperror.NotFound("user", fmt.Sprint(githubID))
	}
	if err != nil {
		return nil, fmt.Errorf("badger: recording claim (githubID=%d): %w", githubID, err)
	}
	return stored, nil
}
