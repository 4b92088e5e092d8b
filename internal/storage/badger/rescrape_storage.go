package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// rescrapePrefix namespaces raw schedule entries away from badgerhold's
// typed records in the shared database.
const rescrapePrefix = "vigil_rescrape:"

// RescrapeStorage implements the RescrapeStorage interface for Badger.
// Schedule entries bypass badgerhold and use raw Badger entries so the
// native TTL reaps anything never dispatched. Missing-post markers are
// permanent and live as badgerhold records.
type RescrapeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRescrapeStorage creates a new RescrapeStorage instance
func NewRescrapeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RescrapeStorage {
	return &RescrapeStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.RescrapeStorage = (*RescrapeStorage)(nil)

// PutEntry stores a schedule entry with the given storage TTL. Writing the
// same post id again overwrites the existing entry, so at most one entry
// exists per post.
func (s *RescrapeStorage) PutEntry(ctx context.Context, entry *models.RescrapeEntry, ttl time.Duration) error {
	if entry.Key == "" {
		entry.Key = models.RescrapeKey(entry.PostID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode rescrape entry: %w", err)
	}

	err = s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry([]byte(rescrapePrefix+entry.Key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to store rescrape entry %s: %w", entry.Key, err)
	}
	return nil
}

// DueEntries returns up to limit entries whose due time has passed.
func (s *RescrapeStorage) DueEntries(ctx context.Context, now time.Time, limit int) ([]*models.RescrapeEntry, error) {
	var due []*models.RescrapeEntry

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(rescrapePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(due) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var entry models.RescrapeEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					s.logger.Warn().Err(err).Msg("Skipping undecodable rescrape entry")
					return nil
				}
				if !entry.DueTime.After(now) {
					due = append(due, &entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rescrape entries: %w", err)
	}
	return due, nil
}

func (s *RescrapeStorage) DeleteEntry(ctx context.Context, key string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(rescrapePrefix + key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete rescrape entry %s: %w", key, err)
	}
	return nil
}

func (s *RescrapeStorage) CountEntries(ctx context.Context) (int, error) {
	count := 0
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(rescrapePrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count rescrape entries: %w", err)
	}
	return count, nil
}

// PutMissingMarker records permanently that a post was checked and gone.
// Re-recording an already marked post is a no-op.
func (s *RescrapeStorage) PutMissingMarker(ctx context.Context, marker *models.PostMissingMarker) error {
	if marker.CheckedAt.IsZero() {
		marker.CheckedAt = time.Now()
	}
	if err := s.db.Store().Insert(marker.PostID, marker); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil
		}
		return fmt.Errorf("failed to store missing marker for post %d: %w", marker.PostID, err)
	}
	return nil
}

func (s *RescrapeStorage) HasMissingMarker(ctx context.Context, postID uint64) (bool, error) {
	var marker models.PostMissingMarker
	if err := s.db.Store().Get(postID, &marker); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check missing marker for post %d: %w", postID, err)
	}
	return true, nil
}
