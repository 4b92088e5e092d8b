// Package queue is the persistent job queue between producers and workers.
// Messages live in the shared Badger database under a visibility-timeout
// discipline: a received message stays invisible while its handler runs and
// reappears if the handler never confirms, bounded by a max-receive
// dead-letter policy.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	badgerstore "github.com/ternarybob/vigil/internal/storage/badger"
)

// envelope wraps a queue message with delivery bookkeeping.
type envelope struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Manager implements a persistent queue over Badger. Message data lives at
// msg:{id}; a separate visibility index keyed by zero-padded nanoseconds
// keeps ready messages scannable in due order.
type Manager struct {
	db                *badgerdb.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewManager creates a queue manager over an existing database connection.
func NewManager(db *badgerstore.BadgerDB, config *common.QueueConfig, logger arbor.ILogger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}

	queueName := config.QueueName
	if queueName == "" {
		queueName = "vigil"
	}
	maxReceive := config.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db.Store().Badger(),
		queueName:         queueName,
		visibilityTimeout: common.ParseDurationOr(config.VisibilityTimeout, 5*time.Minute),
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

var _ interfaces.QueueManager = (*Manager)(nil)

// Enqueue adds an immediately visible message.
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	return m.EnqueueWithDelay(ctx, msg, 0)
}

// EnqueueWithDelay adds a message that becomes visible no earlier than
// now+delay.
func (m *Manager) EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error {
	if msg.JobID == "" {
		msg.JobID = uuid.New().String()
	}

	env := envelope{
		ID:         msg.JobID,
		Body:       msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now().Add(delay),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(m.msgKey(env.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, env.ID), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	m.logger.Debug().
		Str("job_id", env.ID).
		Str("name", msg.Name).
		Dur("delay", delay).
		Msg("Message enqueued")
	return nil
}

// Receive pulls the next visible message. The returned delete function
// confirms processing; an unconfirmed message reappears after the
// visibility timeout. Messages that exhaust max receives are dead-lettered
// (logged and dropped) so a poison message cannot loop forever.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	var env envelope
	var msgID string

	err := m.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := m.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is ready either
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if errors.Is(err, badgerdb.ErrKeyNotFound) {
					// Stale index entry, clean up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			if env.ReceiveCount >= m.maxReceive {
				m.logger.Error().
					Str("job_id", id).
					Str("name", env.Body.Name).
					Int("receive_count", env.ReceiveCount).
					Msg("Message exhausted max receives, dead-lettering")
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id

			env.ReceiveCount++
			env.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			return txn.Set(m.indexKey(env.VisibleAt, id), []byte{})
		}

		if !found {
			return models.ErrNoMessage
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		return m.delete(msgID)
	}
	return &env.Body, deleteFn, nil
}

func (m *Manager) delete(msgID string) error {
	return m.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(m.msgKey(msgID))
		if err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return nil // Already deleted
			}
			return err
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(env.VisibleAt, msgID)); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(m.msgKey(msgID))
	})
}

// Close is a no-op; the database connection is managed externally.
func (m *Manager) Close() error {
	return nil
}

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so lexicographic order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := m.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digits, colon, at least one id byte
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), suffix[21:], nil
}
