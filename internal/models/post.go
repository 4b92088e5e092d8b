package models

import (
	"time"
)

// ScrapedPost is one forum post captured from the origin. PostID is the
// forum-assigned id and the idempotency key: at most one row exists per post.
// Rows are never hard-deleted; a post that disappears at the origin gets a
// PostVersion with Deleted set instead.
type ScrapedPost struct {
	PostID    uint64 `json:"post_id" badgerhold:"key"`
	TopicID   uint64 `json:"topic_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	AuthorUID uint64 `json:"author_uid"`

	// Content is the raw markup as served; ContentMarkdown is the rendered
	// form handed to the notification/reporting consumers.
	Content         string `json:"content"`
	ContentMarkdown string `json:"content_markdown"`

	Date     time.Time  `json:"date"`
	EditDate *time.Time `json:"edit_date,omitempty"` // From the origin's edit marker, absent when never edited
	BoardID  *int       `json:"board_id,omitempty"`  // Immediate parent board, absent when the breadcrumb has no interior entries
	Archive  bool       `json:"archive"`

	// Bookkeeping for downstream consumers
	Checked    bool   `json:"checked"` // A rescrape dispatch has examined this post
	Notified   bool   `json:"notified"`
	NotifiedTo string `json:"notified_to,omitempty"`

	ScrapedAt time.Time `json:"scraped_at"`
}

// PostVersion is an append-only snapshot created when a rescrape detects a
// difference. Versions are ordered per post; the storage key is derived from
// (PostID, EditDate) so a redelivered dispatch that observes the same edit
// cannot append a duplicate.
type PostVersion struct {
	Key        string    `json:"key" badgerhold:"key"` // "{post_id}|{edit_unix}" or "{post_id}|deleted"
	PostID     uint64    `json:"post_id" badgerhold:"index"`
	NewTitle   *string   `json:"new_title,omitempty"`
	NewContent *string   `json:"new_content,omitempty"`
	EditDate   time.Time `json:"edit_date"`
	Deleted    bool      `json:"deleted"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// PostMissingMarker records that a post id was checked and not found, so the
// pipeline stops re-checking permanently gone content.
type PostMissingMarker struct {
	PostID    uint64    `json:"post_id" badgerhold:"key"`
	TopicID   uint64    `json:"topic_id"`
	CheckedAt time.Time `json:"checked_at"`
}
