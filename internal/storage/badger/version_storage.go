package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// VersionStorage implements the VersionStorage interface for Badger.
// Versions are append-only; the key is derived from (post_id, edit_date) so
// a redelivered dispatch observing the same edit cannot append a duplicate.
type VersionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVersionStorage creates a new VersionStorage instance
func NewVersionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.VersionStorage {
	return &VersionStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.VersionStorage = (*VersionStorage)(nil)

func versionKey(version *models.PostVersion) string {
	if version.Deleted {
		return fmt.Sprintf("%d|deleted", version.PostID)
	}
	return fmt.Sprintf("%d|%d", version.PostID, version.EditDate.Unix())
}

// versionSeqKey is the per-post counter backing auto-assigned version
// numbers.
func versionSeqKey(postID uint64) []byte {
	return []byte(fmt.Sprintf("vigil_version_seq:%d", postID))
}

func (s *VersionStorage) InsertVersion(ctx context.Context, version *models.PostVersion) (bool, error) {
	if version.PostID == 0 {
		return false, fmt.Errorf("post id is required")
	}
	if version.Key == "" {
		version.Key = versionKey(version)
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}

	// The version number comes from a per-post counter key read and bumped
	// inside the same transaction as the insert. Two concurrent dispatches
	// observing different edits of one post both read the counter, so one
	// commit conflicts and retries with a fresh read, like badgerhold's own
	// Insert.
	assignNumber := version.Version == 0
	for {
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			if !assignNumber {
				return s.db.Store().TxInsert(txn, version.Key, version)
			}

			next := 1
			item, err := txn.Get(versionSeqKey(version.PostID))
			if err == nil {
				if err := item.Value(func(val []byte) error {
					current, err := strconv.Atoi(string(val))
					if err != nil {
						return err
					}
					next = current + 1
					return nil
				}); err != nil {
					return err
				}
			} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}

			version.Version = next
			if err := s.db.Store().TxInsert(txn, version.Key, version); err != nil {
				return err
			}
			return txn.Set(versionSeqKey(version.PostID), []byte(strconv.Itoa(next)))
		})
		if errors.Is(err, badgerdb.ErrConflict) {
			continue
		}
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to insert version %s: %w", version.Key, err)
		}
		return true, nil
	}
}

// GetVersions returns all versions of a post ordered by version number.
func (s *VersionStorage) GetVersions(ctx context.Context, postID uint64) ([]*models.PostVersion, error) {
	var versions []models.PostVersion
	err := s.db.Store().Find(&versions, badgerhold.Where("PostID").Eq(postID).Index("PostID"))
	if err != nil {
		return nil, fmt.Errorf("failed to find versions for post %d: %w", postID, err)
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version < versions[j].Version
	})

	result := make([]*models.PostVersion, len(versions))
	for i := range versions {
		result[i] = &versions[i]
	}
	return result, nil
}

func (s *VersionStorage) LatestVersionNumber(ctx context.Context, postID uint64) (int, error) {
	versions, err := s.GetVersions(ctx, postID)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1].Version, nil
}
