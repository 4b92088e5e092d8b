package extract

import (
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// Status is the three-way extraction outcome. NotFound is an expected result
// (forbidden or removed content), Malformed means the origin's markup no
// longer matches what the extractor understands.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// PostResult is the outcome of extracting a single post.
type PostResult struct {
	Status Status
	Post   *models.ScrapedPost
	Reason string // Populated when Status is StatusMalformed
}

// RecentBatch is the outcome of extracting a recent-posts listing. Reference
// is the page's own rendered clock, applied uniformly to every relative date
// on the page. Malformed items are counted and skipped, never aborting the
// batch.
type RecentBatch struct {
	Reference time.Time
	Posts     []*models.ScrapedPost
	Skipped   int
}

// MeritBatch is the outcome of extracting a merit listing.
type MeritBatch struct {
	Reference time.Time
	Merits    []*models.ScrapedMerit
	Skipped   int
}

// ModLogBatch is the outcome of extracting the moderation log.
type ModLogBatch struct {
	Entries []*models.ModLogEntry
	Skipped int
}
