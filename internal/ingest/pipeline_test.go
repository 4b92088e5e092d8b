package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/services/cache"
	"github.com/ternarybob/vigil/internal/services/events"
	badgerstore "github.com/ternarybob/vigil/internal/storage/badger"
)

type recordingScheduler struct {
	mu    sync.Mutex
	posts []uint64
}

func (r *recordingScheduler) Schedule(ctx context.Context, post *models.ScrapedPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post.PostID)
	return nil
}

func (r *recordingScheduler) scheduled() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.posts...)
}

type testHarness struct {
	pipeline  *Pipeline
	storage   interfaces.StorageManager
	scheduler *recordingScheduler
	events    interfaces.EventService
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage := badgerstore.NewManagerWithDB(db, logger)
	bus := events.NewService(logger)
	scheduler := &recordingScheduler{}

	return &testHarness{
		pipeline:  NewPipeline(storage, cache.NewService(db, logger), bus, scheduler, 10*time.Minute, logger),
		storage:   storage,
		scheduler: scheduler,
		events:    bus,
	}
}

func listingPost(postID uint64) *models.ScrapedPost {
	return &models.ScrapedPost{
		PostID:  postID,
		TopicID: 500,
		Title:   "Re: Dice strategy thread",
		Author:  "satoshifan",
		Content: "body",
		Date:    time.Date(2023, time.March, 30, 22, 26, 56, 0, time.UTC),
	}
}

func TestIngestPostsNewBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var published int64
	require.NoError(t, h.events.Subscribe(interfaces.EventPostIngested, func(ctx context.Context, e interfaces.Event) error {
		atomic.AddInt64(&published, 1)
		return nil
	}))

	outcome, err := h.pipeline.IngestPosts(ctx, []*models.ScrapedPost{listingPost(1), listingPost(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Received)
	assert.Equal(t, 2, outcome.Inserted)
	assert.Equal(t, 0, outcome.CacheHits)
	assert.Equal(t, 0, outcome.Conflicts)

	count, err := h.storage.PostStorage().CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.ElementsMatch(t, []uint64{1, 2}, h.scheduler.scheduled())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&published) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestIngestPostsRedeliveredBatchIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.IngestPosts(ctx, []*models.ScrapedPost{listingPost(1), listingPost(2)})
	require.NoError(t, err)

	// Same batch again: the cache absorbs it before the store is touched
	outcome, err := h.pipeline.IngestPosts(ctx, []*models.ScrapedPost{listingPost(1), listingPost(2)})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Inserted)
	assert.Equal(t, 2, outcome.CacheHits)

	count, err := h.storage.PostStorage().CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, h.scheduler.scheduled(), 2, "rescrape must not be scheduled twice")
}

func TestIngestPostsCacheMissStoreConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Row exists but the cache never saw it (cold cache after restart)
	_, err := h.storage.PostStorage().InsertPost(ctx, listingPost(9))
	require.NoError(t, err)

	outcome, err := h.pipeline.IngestPosts(ctx, []*models.ScrapedPost{listingPost(9)})
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Inserted)
	assert.Equal(t, 0, outcome.CacheHits)
	assert.Equal(t, 1, outcome.Conflicts)
	assert.Empty(t, h.scheduler.scheduled())
}

func TestIngestMerits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	merits := []*models.ScrapedMerit{
		{Date: time.Now().Truncate(time.Second), Amount: 2, PostID: 1, SenderUID: 11},
		{Date: time.Now().Truncate(time.Second), Amount: 3, PostID: 2, SenderUID: 12},
	}

	inserted, err := h.pipeline.IngestMerits(ctx, merits)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = h.pipeline.IngestMerits(ctx, merits)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	count, err := h.storage.MeritStorage().CountMerits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestModLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	at := time.Now().Truncate(time.Second)
	entries := []*models.ModLogEntry{
		{Action: "Topic locked", Target: "thread", Moderator: "mod", Time: at},
		{Action: "Topic locked", Target: "thread", Moderator: "mod", Time: at},
	}

	inserted, err := h.pipeline.IngestModLog(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}
