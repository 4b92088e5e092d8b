package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ModLogEntry is one detected moderation action. The origin exposes no id, so
// the idempotency key is a digest of the action's own description.
type ModLogEntry struct {
	Key       string    `json:"key" badgerhold:"key"`
	Action    string    `json:"action"`  // e.g. "delete topic", "move topic"
	Target    string    `json:"target"`  // Topic/post/user the action applied to
	Moderator string    `json:"moderator,omitempty"`
	Time      time.Time `json:"time"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// SetKey fills the storage key from the entry's natural description.
func (e *ModLogEntry) SetKey() {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", e.Action, e.Target, e.Time.Unix())))
	e.Key = hex.EncodeToString(sum[:16])
}
