package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// ErrNotFound is returned by storage lookups when no row exists.
var ErrNotFound = errors.New("record not found")

// PostStorage - persistence for scraped posts.
// Insert* methods are insert-or-ignore on the natural key: they report
// whether the row was newly inserted; a conflict is a silent skip, not an
// error. This is the authoritative dedup mechanism.
type PostStorage interface {
	InsertPost(ctx context.Context, post *models.ScrapedPost) (bool, error)
	InsertPosts(ctx context.Context, posts []*models.ScrapedPost) ([]*models.ScrapedPost, error) // Returns the newly inserted subset
	GetPost(ctx context.Context, postID uint64) (*models.ScrapedPost, error)
	MarkChecked(ctx context.Context, postID uint64) error
	MarkNotified(ctx context.Context, postID uint64, notifiedTo string) error
	CountPosts(ctx context.Context) (int, error)
}

// MeritStorage - persistence for merit transactions, unique on
// (date, amount, post_id, sender_uid).
type MeritStorage interface {
	InsertMerit(ctx context.Context, merit *models.ScrapedMerit) (bool, error)
	InsertMerits(ctx context.Context, merits []*models.ScrapedMerit) (int, error) // Returns newly inserted count
	CountMerits(ctx context.Context) (int, error)
}

// ModLogStorage - persistence for moderation log entries.
type ModLogStorage interface {
	InsertEntry(ctx context.Context, entry *models.ModLogEntry) (bool, error)
	InsertEntries(ctx context.Context, entries []*models.ModLogEntry) (int, error)
}

// VersionStorage - append-only post version records.
type VersionStorage interface {
	InsertVersion(ctx context.Context, version *models.PostVersion) (bool, error)
	GetVersions(ctx context.Context, postID uint64) ([]*models.PostVersion, error)
	LatestVersionNumber(ctx context.Context, postID uint64) (int, error)
}

// RescrapeStorage - ephemeral schedule entries plus missing-post markers.
// Entries carry a storage TTL comfortably longer than the rescrape delay.
type RescrapeStorage interface {
	PutEntry(ctx context.Context, entry *models.RescrapeEntry, ttl time.Duration) error
	DueEntries(ctx context.Context, now time.Time, limit int) ([]*models.RescrapeEntry, error)
	DeleteEntry(ctx context.Context, key string) error
	CountEntries(ctx context.Context) (int, error)
	PutMissingMarker(ctx context.Context, marker *models.PostMissingMarker) error
	HasMissingMarker(ctx context.Context, postID uint64) (bool, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	PostStorage() PostStorage
	MeritStorage() MeritStorage
	ModLogStorage() ModLogStorage
	VersionStorage() VersionStorage
	RescrapeStorage() RescrapeStorage
	Close() error
}
