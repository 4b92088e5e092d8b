package models

import (
	"fmt"
	"time"
)

// RescrapeEntry schedules a delayed re-check of a freshly ingested post.
// Entries are ephemeral: consumed on dispatch and expired by storage TTL if
// never dispatched. One entry exists per post at most, keyed by post id.
type RescrapeEntry struct {
	Key       string    `json:"key" badgerhold:"key"`
	PostID    uint64    `json:"post_id"`
	TopicID   uint64    `json:"topic_id"`
	DueTime   time.Time `json:"due_time"`
	CreatedAt time.Time `json:"created_at"`
}

// RescrapeKey builds the schedule entry key for a post.
func RescrapeKey(postID uint64) string {
	return fmt.Sprintf("rescrape|%d", postID)
}
