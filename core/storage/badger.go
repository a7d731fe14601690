package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists engine state in an embedded Badger database so
// sessions and referral ledgers survive restarts without a database server.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger store at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %v", ErrUnavailable, dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database, mainly for tests.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return value, true, nil
}

func (s *BadgerStore) Set(_ context.Context, key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *BadgerStore) Increment(_ context.Context, key string) (int64, error) {
	var next int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var current int64
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				parsed, perr := strconv.ParseInt(string(val), 10, 64)
				if perr != nil {
					return fmt.Errorf("non-numeric value %q", string(val))
				}
				current = parsed
				return nil
			}); err != nil {
				return err
			}
		}
		next = current + 1
		return txn.Set([]byte(key), []byte(strconv.FormatInt(next, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s: %v", ErrUnavailable, key, err)
	}
	return next, nil
}

func (s *BadgerStore) ExpireAfter(_ context.Context, key string, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry := badger.NewEntry([]byte(key), append([]byte(nil), val...)).WithTTL(ttl)
			return txn.SetEntry(entry)
		})
	})
	if err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *BadgerStore) ScanByPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
