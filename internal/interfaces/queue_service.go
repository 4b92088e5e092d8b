package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// QueueManager is a persistent named-job queue with visibility timeouts.
// Receive returns the message and a delete function to call after successful
// processing; an unprocessed message becomes visible again after the
// visibility timeout, bounded by the max-receive dead-letter policy.
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	// EnqueueWithDelay makes the message visible no earlier than now+delay.
	EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Close() error
}
