package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/gadgetlabs/Gaffer/pkg/storage"
)

const maxConflictRetries = 10

// BadgerBackend persists the library in a Badger database. Keys are
// "<table>/<id>".
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens a library database in dir. An empty dir keeps it
// in memory.
func NewBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := storage.DBOptions(dir, dir == "", false, slog.Default().With("component", "library"))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening library database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(table Table, id string) []byte {
	return []byte(string(table) + "/" + id)
}

// PutIfAbsent runs the check and insert in one transaction, retrying when
// a concurrent writer conflicts.
func (b *BadgerBackend) PutIfAbsent(ctx context.Context, table Table, id string, value []byte) ([]byte, bool, error) {
	key := badgerKey(table, id)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		var stored []byte
		inserted := false
		err := b.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case err == nil:
				stored, err = item.ValueCopy(nil)
				return err
			case errors.Is(err, badger.ErrKeyNotFound):
				inserted = true
				stored = clone(value)
				return txn.Set(key, stored)
			default:
				return err
			}
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return stored, inserted, nil
	}
}

func (b *BadgerBackend) Get(_ context.Context, table Table, id string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(table, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
