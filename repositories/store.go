package repositories

import (
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"yappify/errors"
)

// maxTxnRetries bounds optimistic-concurrency retries. Badger aborts a
// read-modify-write transaction with ErrConflict when another writer
// committed first; retrying re-reads the fresh state.
const maxTxnRetries = 5

// update runs fn in a read-write transaction, retrying on conflict so
// that concurrent mutations of the same record settle to one outcome
// after the other, never an interleaving of both.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return storeErr(err)
}

// storeErr maps badger failures onto the service taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return errors.ErrNotFound
	case stderrors.Is(err, errors.ErrNotFound),
		stderrors.Is(err, errors.ErrAlreadyExists),
		stderrors.Is(err, errors.ErrInvalidArgument):
		return err
	default:
		return fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}
}
