// Package cache provides the short-TTL presence cache the ingestion
// pipeline probes before hitting the store. Keys expire on their own via
// Badger's native TTL; the store's insert-or-ignore remains the
// authoritative dedup, so losing the whole cache only costs extra probes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/storage/badger"
)

const seenPrefix = "vigil_seen:"

// Service implements CacheService on raw Badger entries with TTL.
type Service struct {
	db     *badger.BadgerDB
	logger arbor.ILogger
}

// NewService creates a new cache service sharing the pipeline's database.
func NewService(db *badger.BadgerDB, logger arbor.ILogger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.CacheService = (*Service)(nil)

// Has reports whether a key was marked seen within its TTL.
func (s *Service) Has(ctx context.Context, key string) (bool, error) {
	found := false
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(seenPrefix + key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("cache lookup failed for %s: %w", key, err)
	}
	return found, nil
}

// HasMulti checks a batch of keys in a single read transaction.
func (s *Service) HasMulti(ctx context.Context, keys []string) (map[string]bool, error) {
	result := make(map[string]bool, len(keys))
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			_, err := txn.Get([]byte(seenPrefix + key))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				result[key] = false
				continue
			}
			if err != nil {
				return err
			}
			result[key] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache batch lookup failed: %w", err)
	}
	return result, nil
}

// Set marks a key seen for the given TTL.
func (s *Service) Set(ctx context.Context, key string, ttl time.Duration) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry([]byte(seenPrefix+key), nil)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("cache set failed for %s: %w", key, err)
	}
	return nil
}
