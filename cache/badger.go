package cache

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"autotune/kernel"
)

// BadgerCache persists search results in an embedded BadgerDB so
// results survive across process invocations. Badger's own logging is
// disabled; this package's callers decide what to log.
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache opens (or creates) a cache under dir.
func NewBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", dir, err)
	}
	return &BadgerCache{db: db}, nil
}

// NewInMemoryBadgerCache opens a badger instance with no disk
// persistence, used in tests.
func NewInMemoryBadgerCache() (*BadgerCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func (c *BadgerCache) Get(key string) ([]kernel.Opt, bool) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		// Unreadable entries are treated as misses.
		return nil, false
	}
	opts, err := decodeOpts(data)
	if err != nil {
		return nil, false
	}
	return opts, true
}

func (c *BadgerCache) Put(key string, opts []kernel.Opt) error {
	data, err := encodeOpts(opts)
	if err != nil {
		return err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("cache put %q: %w", key, err)
	}
	return nil
}
