// Package cache is a size-bounded byte store for derived artifacts
// (thumbnails, subtitle tracks) keyed by opaque fingerprint strings.
package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// writeGrace is how long a freshly written key is exempt from
// eviction, so a value is never evicted between its own write and the
// immediately following read within the same request.
const writeGrace = time.Minute

// Store is a badger-backed derivation cache. Values are whole-blob
// overwrites; there is no implicit expiry beyond the byte ceiling.
type Store struct {
	db       *badger.DB
	maxBytes int64

	mu      sync.Mutex
	touched map[string]time.Time
}

// Open opens or creates the cache at dir. maxBytes is the total size
// ceiling; zero or negative disables eviction.
func Open(dir string, maxBytes int64) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, maxBytes: maxBytes, touched: make(map[string]time.Time)}, nil
}

// Get returns the value stored under key, or ok=false if absent.
func (s *Store) Get(key string) (val []byte, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		ok = err == nil
		return err
	})
	if ok {
		s.touch(key)
	}
	return val, ok, err
}

// Set stores val under key, overwriting any previous value, then
// sweeps the store back under the byte ceiling if needed.
func (s *Store) Set(key string, val []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return err
	}
	s.touch(key)
	s.evictOverCeiling()
	return nil
}

// Clear drops every cached value. It never touches source media.
// A Set racing a Clear may or may not survive.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.touched = make(map[string]time.Time)
	s.mu.Unlock()
	return s.db.DropAll()
}

// SizeBytes reports the on-disk size of the store.
func (s *Store) SizeBytes() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) touch(key string) {
	s.mu.Lock()
	s.touched[key] = time.Now()
	s.mu.Unlock()
}

// evictOverCeiling deletes least-recently-touched values until the
// store fits under the ceiling. Keys touched within the grace window
// are skipped. Best effort: eviction failures leave the store intact.
func (s *Store) evictOverCeiling() {
	if s.maxBytes <= 0 || s.SizeBytes() <= s.maxBytes {
		return
	}

	type candidate struct {
		key     string
		size    int64
		touched time.Time
	}
	var candidates []candidate

	now := time.Now()
	s.mu.Lock()
	recency := make(map[string]time.Time, len(s.touched))
	for k, t := range s.touched {
		recency[k] = t
	}
	s.mu.Unlock()

	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if now.Sub(recency[key]) < writeGrace {
				continue
			}
			candidates = append(candidates, candidate{
				key:     key,
				size:    item.EstimatedSize(),
				touched: recency[key],
			})
		}
		return nil
	})

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].touched.Before(candidates[j].touched)
	})

	excess := s.SizeBytes() - s.maxBytes
	var freed int64
	for _, c := range candidates {
		if freed >= excess {
			break
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(c.key))
		})
		if err != nil {
			continue
		}
		freed += c.size
		s.mu.Lock()
		delete(s.touched, c.key)
		s.mu.Unlock()
	}

	// Reclaim value-log space from the deletions.
	_ = s.db.RunValueLogGC(0.5)
}
