package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/model"
	"github.com/sakif/gh-faucet/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const selectUserColumns = `SELECT github_id, login, email, avatar_url, eth_address, last_claimed_at, created_at FROM users`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		claimedAt sql.NullTime
	)
	if err := row.Scan(
		&u.GitHubID,
		&u.Login,
		&u.Email,
		&u.AvatarURL,
		&u.EthAddress,
		&claimedAt,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if claimedAt.Valid {
		at := claimedAt.Time
		u.LastClaimedAt = &at
	}
	return &u, nil
}

// Upsert inserts or updates a user based on their GitHub ID.
//
// INSERT ... ON CONFLICT DO UPDATE:
// A single statement either inserts the row or updates the profile columns of
// the existing one. created_at, eth_address and last_claimed_at are not in the
// SET list, so an update never touches them.
//
// The statement and the read-back run in one transaction so the returned
// record is the one this call wrote.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == 0 {
		return fmt.Errorf("sqlite: user has no GitHub ID")
	}

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning upsert (githubID=%d): %w", user.GitHubID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (github_id, login, email, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(github_id) DO UPDATE SET
			login      = excluded.login,
			email      = excluded.email,
			avatar_url = excluded.avatar_url`,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user (githubID=%d): %w", user.GitHubID, err)
	}

	stored, err := scanUser(tx.QueryRowContext(ctx, selectUserColumns+` WHERE github_id = ?`, user.GitHubID))
	if err != nil {
		return fmt.Errorf("sqlite: reading back user (githubID=%d): %w", user.GitHubID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing upsert (githubID=%d): %w", user.GitHubID, err)
	}

	*user = *stored
	return nil
}

// GetByGitHubID retrieves a user by their GitHub ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, selectUserColumns+` WHERE github_id = ?`, githubID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", githubID, err)
	}
	return u, nil
}

// List returns all users, oldest first.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, selectUserColumns+` ORDER BY created_at ASC, github_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	// Rows MUST be closed, or the single pooled connection is never released.
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}

// RecordClaim updates only the claim columns. An UPDATE that matches no row
// means the user is unknown; nothing is inserted.
func (db *DB) RecordClaim(ctx context.Context, githubID int64, address string, claimedAt time.Time) (*model.User, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning claim (githubID=%d): %w", githubID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET eth_address = ?, last_claimed_at = ? WHERE github_id = ?`,
		address, claimedAt, githubID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recording claim (githubID=%d): %w", githubID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking claim result (githubID=%d): %w", githubID, err)
	}
	if n == 0 {
		return nil, apperror.NotFound("user", fmt.Sprint(githubID))
	}

	u, err := scanUser(tx.QueryRowContext(ctx, selectUserColumns+` WHERE github_id = ?`, githubID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading back claim (githubID=%d): %w", githubID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing claim (githubID=%d): %w", githubID, err)
	}
	return u, nil
}
