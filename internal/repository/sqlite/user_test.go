package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sakif/gh-faucet/internal/apperror"
	"github.com/sakif/gh-faucet/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// Using ":memory:" creates a fresh database that exists only during the test.
// New caps the pool at one connection, so every query in a test sees the same
// in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// upsertTestUser is a test helper that upserts a user and fails the test if it errors.
func upsertTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to upsert test user: %v", err)
	}
	return user
}

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		GitHubID:  55555,
		Login:     "new_upsert_user",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() (new) error = %v", err)
	}

	found, err := db.GetByGitHubID(context.Background(), 55555)
	if err != nil {
		t.Fatalf("GetByGitHubID() after Upsert: %v", err)
	}
	if found.Login != "new_upsert_user" {
		t.Errorf("Login = %q, want %q", found.Login, "new_upsert_user")
	}
	if !found.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, user.CreatedAt)
	}
	if found.EthAddress != "" || found.LastClaimedAt != nil {
		t.Errorf("new user should have no claim fields, got %q / %v", found.EthAddress, found.LastClaimedAt)
	}
}

func TestUserUpsert_ExistingUser_UpdatesProfile(t *testing.T) {
	db := newTestDB(t)

	first := &model.User{
		GitHubID:  66666,
		Login:     "original_login",
		Email:     "old@example.com",
		AvatarURL: "https://example.com/old.png",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Upsert(context.Background(), first); err != nil {
		t.Fatalf("Upsert() first login: %v", err)
	}

	// Second login — same GitHubID but updated profile
	second := &model.User{
		GitHubID:  66666,
		Login:     "updated_login",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
		CreatedAt: time.Now().UTC().Add(time.Hour),
	}
	if err := db.Upsert(context.Background(), second); err != nil {
		t.Fatalf("Upsert() second login: %v", err)
	}

	found, err := db.GetByGitHubID(context.Background(), 66666)
	if err != nil {
		t.Fatalf("GetByGitHubID() after second Upsert: %v", err)
	}
	if found.Login != "updated_login" {
		t.Errorf("Login after upsert = %q, want %q", found.Login, "updated_login")
	}
	if found.Email != "new@example.com" {
		t.Errorf("Email after upsert = %q, want %q", found.Email, "new@example.com")
	}

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 1 {
		t.Errorf("List() returned %d users, want 1", len(users))
	}
}

func TestUserUpsert_DoesNotChangeCreatedAt(t *testing.T) {
	db := newTestDB(t)

	usr := &model.User{GitHubID: 77777, Login: "timecheck", CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := db.Upsert(context.Background(), usr); err != nil {
		t.Fatalf("Upsert() first: %v", err)
	}
	originalCreatedAt := usr.CreatedAt

	usr2 := &model.User{GitHubID: 77777, Login: "timecheck_updated", CreatedAt: time.Now().UTC()}
	if err := db.Upsert(context.Background(), usr2); err != nil {
		t.Fatalf("Upsert() second: %v", err)
	}

	// CreatedAt on the returned struct should match the original
	if !usr2.CreatedAt.Equal(originalCreatedAt) {
		t.Errorf("Upsert() changed CreatedAt: got %v, want %v", usr2.CreatedAt, originalCreatedAt)
	}
}

func TestUserUpsert_PreservesClaimFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	upsertTestUser(t, db, 1, "claimer")

	claimedAt := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	address := "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	if _, err := db.RecordClaim(ctx, 1, address, claimedAt); err != nil {
		t.Fatalf("RecordClaim() error = %v", err)
	}

	again := &model.User{GitHubID: 1, Login: "claimer-renamed", CreatedAt: time.Now().UTC()}
	if err := db.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert() after claim: %v", err)
	}

	if again.EthAddress != address {
		t.Errorf("EthAddress = %q, want %q", again.EthAddress, address)
	}
	if again.LastClaimedAt == nil || !again.LastClaimedAt.Equal(claimedAt) {
		t.Errorf("LastClaimedAt = %v, want %v", again.LastClaimedAt, claimedAt)
	}
}

func TestUserUpsert_ZeroGitHubID(t *testing.T) {
	db := newTestDB(t)

	if err := db.Upsert(context.Background(), &model.User{Login: "nobody"}); err == nil {
		t.Fatal("Upsert() should reject a user without a GitHub ID")
	}
}

func TestUserUpsert_ConcurrentSameUser(t *testing.T) {
	// A file database exercises real locking; ":memory:" would too, but the
	// file makes the WAL path part of the test.
	path := filepath.Join(t.TempDir(), "faucet.db")
	db, err := New(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New(%q) error = %v", path, err)
	}
	t.Cleanup(func() { db.Close() })

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := &model.User{GitHubID: 9, Login: fmt.Sprintf("tab-%d", i), Email: fmt.Sprintf("%d@example.com", i), CreatedAt: time.Now().UTC()}
			errs <- db.Upsert(context.Background(), u)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Upsert() error = %v", err)
		}
	}

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("List() returned %d users, want 1", len(users))
	}

	var n int
	if _, err := fmt.Sscanf(users[0].Login, "tab-%d", &n); err != nil {
		t.Fatalf("unexpected login %q", users[0].Login)
	}
	if users[0].Email != fmt.Sprintf("%d@example.com", n) {
		t.Errorf("login %q and email %q come from different writes", users[0].Login, users[0].Email)
	}
}

// =========================================================================
// GET BY GITHUB ID TESTS
// =========================================================================

func TestUserGetByGitHubID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByGitHubID(context.Background(), 999999999)
	if err == nil {
		t.Fatal("GetByGitHubID() should have returned an error for nonexistent github_id")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByGitHubID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestUserList_Empty(t *testing.T) {
	db := newTestDB(t)

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	// An empty table returns an empty slice, not nil, so it encodes as [] in JSON.
	if users == nil || len(users) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", users)
	}
}

func TestUserList_OrderedByCreatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, login := range []string{"third", "first", "second"} {
		offset := map[string]time.Duration{"first": 0, "second": time.Minute, "third": 2 * time.Minute}[login]
		u := &model.User{GitHubID: int64(i + 1), Login: login, CreatedAt: base.Add(offset)}
		if err := db.Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert(%s): %v", login, err)
		}
	}

	users, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if users[i].Login != w {
			t.Errorf("users[%d].Login = %q, want %q", i, users[i].Login, w)
		}
	}
}

// =========================================================================
// RECORD CLAIM TESTS
// =========================================================================

func TestRecordClaim_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	_, err := db.RecordClaim(context.Background(), 123, "0x0000000000000000000000000000000000000000", time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("RecordClaim() error = %v, want ErrNotFound", err)
	}

	users, _ := db.List(context.Background())
	if len(users) != 0 {
		t.Errorf("RecordClaim() created %d users for an unknown id", len(users))
	}
}

func TestRecordClaim_UpdatesOnlyClaimFields(t *testing.T) {
	db := newTestDB(t)
	created := upsertTestUser(t, db, 321, "faucet_user")

	at := time.Date(2024, 7, 4, 10, 0, 0, 0, time.UTC)
	got, err := db.RecordClaim(context.Background(), 321, "0x1111111111111111111111111111111111111111", at)
	if err != nil {
		t.Fatalf("RecordClaim() error = %v", err)
	}

	if got.EthAddress != "0x1111111111111111111111111111111111111111" {
		t.Errorf("EthAddress = %q", got.EthAddress)
	}
	if got.LastClaimedAt == nil || !got.LastClaimedAt.Equal(at) {
		t.Errorf("LastClaimedAt = %v, want %v", got.LastClaimedAt, at)
	}
	if got.Login != created.Login || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("RecordClaim() changed profile fields: %+v", got)
	}
}

// =========================================================================
// MIGRATION TESTS
// =========================================================================

// TestMigrate_Idempotent verifies that re-running migrations on an existing
// database (a restart) does not fail or lose data.
func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	upsertTestUser(t, db, 1, "survivor")

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}

	if _, err := db.GetByGitHubID(context.Background(), 1); err != nil {
		t.Fatalf("user lost after re-running migrations: %v", err)
	}
}
