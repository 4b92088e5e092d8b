package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
	badgerstore "github.com/ternarybob/vigil/internal/storage/badger"
)

func newTestManager(t *testing.T, config *common.QueueConfig) *Manager {
	t.Helper()
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	manager, err := NewManager(db, config, logger)
	require.NoError(t, err)
	return manager
}

func testMessage(name string) models.QueueMessage {
	return models.QueueMessage{
		Name:    name,
		Payload: json.RawMessage(`{"topic_id":1}`),
	}
}

func TestEnqueueReceiveDelete(t *testing.T) {
	m := newTestManager(t, &common.QueueConfig{VisibilityTimeout: "5m", MaxReceive: 3})
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, testMessage(models.JobScrapeRecentPosts)))

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobScrapeRecentPosts, msg.Name)
	assert.NotEmpty(t, msg.JobID)

	require.NoError(t, deleteFn())

	_, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestDelayedMessageInvisibleBeforeDue(t *testing.T) {
	m := newTestManager(t, &common.QueueConfig{VisibilityTimeout: "5m", MaxReceive: 3})
	ctx := context.Background()

	require.NoError(t, m.EnqueueWithDelay(ctx, testMessage(models.JobRescrapeDispatch), 100*time.Millisecond))

	_, _, err := m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage, "delayed message must stay invisible")

	time.Sleep(150 * time.Millisecond)

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobRescrapeDispatch, msg.Name)
	require.NoError(t, deleteFn())
}

func TestUnconfirmedMessageRedelivered(t *testing.T) {
	m := newTestManager(t, &common.QueueConfig{VisibilityTimeout: "50ms", MaxReceive: 5})
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, testMessage(models.JobScrapeModLog)))

	first, _, err := m.Receive(ctx)
	require.NoError(t, err)

	// Still claimed
	_, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	time.Sleep(80 * time.Millisecond)

	second, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)
	require.NoError(t, deleteFn())
}

func TestPoisonMessageDeadLettered(t *testing.T) {
	m := newTestManager(t, &common.QueueConfig{VisibilityTimeout: "10ms", MaxReceive: 2})
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, testMessage(models.JobScrapeTopic)))

	for i := 0; i < 2; i++ {
		_, _, err := m.Receive(ctx)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	// Third attempt finds the message exhausted and drops it
	_, _, err := m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	time.Sleep(20 * time.Millisecond)
	_, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage, "dead-lettered message must not reappear")
}

func TestWorkerPoolRoutesByName(t *testing.T) {
	logger := common.GetLogger()
	m := newTestManager(t, &common.QueueConfig{VisibilityTimeout: "5m", MaxReceive: 3})

	config := &common.QueueConfig{PollInterval: "10ms", Concurrency: 2}
	pool := NewWorkerPool(m, config, logger)

	var handled int64
	pool.RegisterHandler(models.JobScrapeRecentPosts, func(ctx context.Context, msg *models.QueueMessage) error {
		atomic.AddInt64(&handled, 1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, testMessage(models.JobScrapeRecentPosts)))
	require.NoError(t, m.Enqueue(ctx, testMessage(models.JobScrapeRecentPosts)))

	require.NoError(t, pool.Start())
	defer pool.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&handled) == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err := m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage, "handled messages should be confirmed")
}

func TestWorkerPoolDropsUnroutableMessage(t *testing.T) {
	logger := common.GetLogger()
	m := newTestManager(t, &common.QueueConfig{VisibilityTimeout: "5m", MaxReceive: 3})

	config := &common.QueueConfig{PollInterval: "10ms", Concurrency: 1}
	pool := NewWorkerPool(m, config, logger)
	pool.RegisterHandler(models.JobScrapeRecentPosts, func(ctx context.Context, msg *models.QueueMessage) error {
		return nil
	})

	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, testMessage("no-such-job")))

	require.NoError(t, pool.Start())
	defer pool.Stop()

	// Give the pool a few poll cycles to pick the message up and drop it
	time.Sleep(300 * time.Millisecond)

	_, _, err := m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)
}
