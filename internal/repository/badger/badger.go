// Package badger implements repository.UserRepository on top of Badger, an
// embedded key-value store.
//
// WHY A KEY-VALUE BACKEND?
// The only lookup the faucet needs is "user by GitHub ID", which maps directly
// onto a key. Badger keeps the whole store in one directory (BADGER_DIR) and,
// like SQLite, runs inside the process.
//
// KEY LAYOUT:
//
//	user_<githubID>  →  JSON-encoded model.User
//
// The "user_" prefix lets List walk every user with a prefix iterator.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
)

const prefixUser = "user"

// maxConflictRetries bounds how often an Update is replayed after another
// transaction committed a write to the same key first.
const maxConflictRetries = 10

func makeUserKey(githubID int64) []byte {
	return makeKey(prefixUser, fmt.Sprint(githubID))
}

func makeKey(prefix, id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", prefix, id))
}

// DB holds an open Badger database.
type DB struct {
	db     *badgerdb.DB
	logger *slog.Logger
}

// Open opens (or creates) the Badger database in dir.
// Pass inMemory=true to keep everything in RAM; dir is ignored then.
func Open(dir string, inMemory bool, logger *slog.Logger) (*DB, error) {
	if inMemory {
		dir = ""
	}
	opts := badgerdb.DefaultOptions(dir).
		WithInMemory(inMemory).
		WithLogger(slogAdapter{logger: logger.With(slog.String("component", "badger"))})

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: opening %q: %w", dir, err)
	}

	logger.Debug("badger user store ready", slog.String("dir", dir), slog.Bool("in_memory", inMemory))
	return &DB{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// update runs fn in a read-write transaction, replaying it when Badger
// reports a conflict with a concurrent commit.
func (d *DB) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = d.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
		d.logger.Debug("badger transaction conflict, retrying", slog.Int("attempt", attempt+1))
	}
	return err
}

// slogAdapter satisfies badger.Logger so Badger's internal messages go to the
// application logger instead of stderr.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(trimMessage(format, args))
}

func (a slogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(trimMessage(format, args))
}

func (a slogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Info(trimMessage(format, args))
}

func (a slogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(trimMessage(format, args))
}

// Badger terminates most of its messages with a newline.
func trimMessage(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
