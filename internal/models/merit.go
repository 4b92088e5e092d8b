package models

import (
	"fmt"
	"time"
)

// ScrapedMerit is one merit (reputation) transaction. The origin assigns no
// id, so identity is the composite (date, amount, post_id, sender_uid) and
// that tuple is unique in storage.
type ScrapedMerit struct {
	Key         string    `json:"key" badgerhold:"key"` // Composite idempotency key, see MeritKey
	Date        time.Time `json:"date"`
	Amount      int       `json:"amount"`
	PostID      uint64    `json:"post_id"`
	TopicID     uint64    `json:"topic_id"`
	Sender      string    `json:"sender"`
	SenderUID   uint64    `json:"sender_uid"`
	Receiver    string    `json:"receiver"`
	ReceiverUID uint64    `json:"receiver_uid"`
	PostTitle   string    `json:"post_title"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// MeritKey builds the composite idempotency key for a merit transaction.
func MeritKey(date time.Time, amount int, postID, senderUID uint64) string {
	return fmt.Sprintf("%d|%d|%d|%d", date.Unix(), amount, postID, senderUID)
}

// SetKey fills the storage key from the identity fields.
func (m *ScrapedMerit) SetKey() {
	m.Key = MeritKey(m.Date, m.Amount, m.PostID, m.SenderUID)
}
