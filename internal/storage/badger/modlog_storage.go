package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// ModLogStorage implements the ModLogStorage interface for Badger, keyed by
// the digest of (action, target, time).
type ModLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewModLogStorage creates a new ModLogStorage instance
func NewModLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ModLogStorage {
	return &ModLogStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.ModLogStorage = (*ModLogStorage)(nil)

func (s *ModLogStorage) InsertEntry(ctx context.Context, entry *models.ModLogEntry) (bool, error) {
	if entry.Key == "" {
		entry.SetKey()
	}
	if entry.ScrapedAt.IsZero() {
		entry.ScrapedAt = time.Now()
	}

	if err := s.db.Store().Insert(entry.Key, entry); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert moderation log entry %s: %w", entry.Key, err)
	}
	return true, nil
}

func (s *ModLogStorage) InsertEntries(ctx context.Context, entries []*models.ModLogEntry) (int, error) {
	inserted := 0
	for _, entry := range entries {
		ok, err := s.InsertEntry(ctx, entry)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}
