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

// MeritStorage implements the MeritStorage interface for Badger. The origin
// assigns merits no id, so rows are keyed by the composite identity
// (date, amount, post_id, sender_uid) and inserts are insert-or-ignore.
type MeritStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMeritStorage creates a new MeritStorage instance
func NewMeritStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MeritStorage {
	return &MeritStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.MeritStorage = (*MeritStorage)(nil)

func (s *MeritStorage) InsertMerit(ctx context.Context, merit *models.ScrapedMerit) (bool, error) {
	if merit.Key == "" {
		merit.SetKey()
	}
	if merit.ScrapedAt.IsZero() {
		merit.ScrapedAt = time.Now()
	}

	if err := s.db.Store().Insert(merit.Key, merit); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert merit %s: %w", merit.Key, err)
	}
	return true, nil
}

func (s *MeritStorage) InsertMerits(ctx context.Context, merits []*models.ScrapedMerit) (int, error) {
	inserted := 0
	for _, merit := range merits {
		ok, err := s.InsertMerit(ctx, merit)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (s *MeritStorage) CountMerits(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ScrapedMerit{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count merits: %w", err)
	}
	return int(count), nil
}
