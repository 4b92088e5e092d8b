package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func testPost(postID uint64) *models.ScrapedPost {
	return &models.ScrapedPost{
		PostID:  postID,
		TopicID: 100,
		Title:   "Re: Dice strategy thread",
		Author:  "satoshifan",
		Content: "body",
		Date:    time.Date(2023, time.March, 30, 22, 26, 56, 0, time.UTC),
	}
}

func TestInsertPostIdempotent(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	posts := manager.PostStorage()

	inserted, err := posts.InsertPost(ctx, testPost(1))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same post id again is a silent skip, not an error
	inserted, err = posts.InsertPost(ctx, testPost(1))
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := posts.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertPostsReturnsNewSubset(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	posts := manager.PostStorage()

	_, err := posts.InsertPost(ctx, testPost(1))
	require.NoError(t, err)

	inserted, err := posts.InsertPosts(ctx, []*models.ScrapedPost{testPost(1), testPost(2), testPost(3)})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.Equal(t, uint64(2), inserted[0].PostID)
	assert.Equal(t, uint64(3), inserted[1].PostID)
}

func TestMarkCheckedAndNotified(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	posts := manager.PostStorage()

	_, err := posts.InsertPost(ctx, testPost(7))
	require.NoError(t, err)

	require.NoError(t, posts.MarkChecked(ctx, 7))
	require.NoError(t, posts.MarkNotified(ctx, 7, "ops-channel"))

	post, err := posts.GetPost(ctx, 7)
	require.NoError(t, err)
	assert.True(t, post.Checked)
	assert.True(t, post.Notified)
	assert.Equal(t, "ops-channel", post.NotifiedTo)

	assert.ErrorIs(t, posts.MarkChecked(ctx, 999), interfaces.ErrNotFound)
}

func TestGetPostNotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.PostStorage().GetPost(context.Background(), 42)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestInsertMeritCompositeDedup(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	merits := manager.MeritStorage()

	merit := &models.ScrapedMerit{
		Date:      time.Date(2023, time.March, 30, 22, 30, 0, 0, time.UTC),
		Amount:    2,
		PostID:    61870000,
		SenderUID: 111,
	}

	inserted, err := merits.InsertMerit(ctx, merit)
	require.NoError(t, err)
	assert.True(t, inserted)

	duplicate := &models.ScrapedMerit{
		Date:      merit.Date,
		Amount:    merit.Amount,
		PostID:    merit.PostID,
		SenderUID: merit.SenderUID,
	}
	inserted, err = merits.InsertMerit(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	// A different amount is a different transaction
	other := &models.ScrapedMerit{
		Date:      merit.Date,
		Amount:    5,
		PostID:    merit.PostID,
		SenderUID: merit.SenderUID,
	}
	inserted, err = merits.InsertMerit(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := merits.CountMerits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInsertModLogEntriesDedup(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	at := time.Date(2023, time.March, 30, 21, 12, 0, 0, time.UTC)
	entries := []*models.ModLogEntry{
		{Action: "Topic locked", Target: "Dice strategy thread", Moderator: "hilarious", Time: at},
		{Action: "Topic locked", Target: "Dice strategy thread", Moderator: "hilarious", Time: at},
		{Action: "Post deleted", Target: "Re: Free coins inside", Moderator: "mprep", Time: at},
	}

	inserted, err := manager.ModLogStorage().InsertEntries(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
}

func TestVersionNumbersAndEditDateDedup(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	versions := manager.VersionStorage()

	title := "new title"
	edit1 := time.Date(2023, time.March, 30, 23, 2, 13, 0, time.UTC)

	inserted, err := versions.InsertVersion(ctx, &models.PostVersion{PostID: 9, NewTitle: &title, EditDate: edit1})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same edit observed again (redelivered dispatch) does not append
	inserted, err = versions.InsertVersion(ctx, &models.PostVersion{PostID: 9, NewTitle: &title, EditDate: edit1})
	require.NoError(t, err)
	assert.False(t, inserted)

	edit2 := edit1.Add(time.Hour)
	inserted, err = versions.InsertVersion(ctx, &models.PostVersion{PostID: 9, EditDate: edit2, Deleted: true})
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := versions.GetVersions(ctx, 9)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, 2, got[1].Version)
	assert.True(t, got[1].Deleted)

	latest, err := versions.LatestVersionNumber(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestConcurrentVersionNumbersAreSequential(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	versions := manager.VersionStorage()

	base := time.Date(2023, time.March, 30, 20, 0, 0, 0, time.UTC)
	const edits = 8

	var wg sync.WaitGroup
	for i := 0; i < edits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := fmt.Sprintf("revision %d", i)
			_, err := versions.InsertVersion(ctx, &models.PostVersion{
				PostID:     11,
				NewContent: &content,
				EditDate:   base.Add(time.Duration(i) * time.Minute),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := versions.GetVersions(ctx, 11)
	require.NoError(t, err)
	require.Len(t, got, edits)
	for i, v := range got {
		assert.Equal(t, i+1, v.Version, "version numbers must be gapless and unique")
	}
}

func TestRescrapeEntryLifecycle(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	rescrape := manager.RescrapeStorage()
	now := time.Now()

	due := &models.RescrapeEntry{PostID: 1, TopicID: 10, DueTime: now.Add(-time.Minute)}
	future := &models.RescrapeEntry{PostID: 2, TopicID: 10, DueTime: now.Add(time.Hour)}
	require.NoError(t, rescrape.PutEntry(ctx, due, time.Hour))
	require.NoError(t, rescrape.PutEntry(ctx, future, time.Hour))

	// Re-scheduling the same post overwrites rather than duplicating
	require.NoError(t, rescrape.PutEntry(ctx, &models.RescrapeEntry{PostID: 1, TopicID: 10, DueTime: now.Add(-time.Second)}, time.Hour))

	count, err := rescrape.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	ready, err := rescrape.DueEntries(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, uint64(1), ready[0].PostID)

	require.NoError(t, rescrape.DeleteEntry(ctx, ready[0].Key))
	count, err = rescrape.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMissingMarkers(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	rescrape := manager.RescrapeStorage()

	has, err := rescrape.HasMissingMarker(ctx, 5)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, rescrape.PutMissingMarker(ctx, &models.PostMissingMarker{PostID: 5, TopicID: 50}))
	require.NoError(t, rescrape.PutMissingMarker(ctx, &models.PostMissingMarker{PostID: 5, TopicID: 50}))

	has, err = rescrape.HasMissingMarker(ctx, 5)
	require.NoError(t, err)
	assert.True(t, has)
}
