package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vigil/internal/common"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestRecentPosts(t *testing.T) {
	svc := NewService(common.GetLogger())

	batch, err := svc.RecentPosts(loadFixture(t, "recent.html"))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, time.March, 30, 23, 45, 10, 0, time.UTC), batch.Reference)
	require.Len(t, batch.Posts, 2)
	assert.Equal(t, 1, batch.Skipped, "title-less entry should be skipped, not fatal")

	first := batch.Posts[0]
	assert.Equal(t, uint64(61870000), first.PostID)
	assert.Equal(t, uint64(5441654), first.TopicID)
	assert.Equal(t, "Re: Dice strategy thread", first.Title)
	assert.Equal(t, "satoshifan", first.Author)
	assert.Equal(t, uint64(998877), first.AuthorUID)
	assert.Contains(t, first.Content, "<b>doesn&#39;t</b>")
	assert.Contains(t, first.ContentMarkdown, "**doesn't**")

	// Relative date resolves against the page clock, not wall-clock now
	assert.Equal(t, time.Date(2023, time.March, 30, 22, 26, 56, 0, time.UTC), first.Date)

	// Interior breadcrumb entries only; the deepest one wins
	require.NotNil(t, first.BoardID)
	assert.Equal(t, 57, *first.BoardID)

	second := batch.Posts[1]
	assert.Equal(t, uint64(61869990), second.PostID)
	assert.Equal(t, time.Date(2023, time.March, 29, 8, 15, 0, 0, time.UTC), second.Date)
	assert.Nil(t, second.BoardID, "root-and-self breadcrumb resolves to no board")
}

func TestTopicPostFound(t *testing.T) {
	svc := NewService(common.GetLogger())

	result, err := svc.TopicPost(loadFixture(t, "topic.html"), 61870000)
	require.NoError(t, err)
	require.Equal(t, StatusFound, result.Status)
	require.NotNil(t, result.Post)

	assert.Equal(t, uint64(61870000), result.Post.PostID)
	assert.Contains(t, result.Post.Content, "Edited to add a chart.")

	require.NotNil(t, result.Post.EditDate)
	assert.Equal(t, time.Date(2023, time.March, 30, 23, 2, 13, 0, time.UTC), *result.Post.EditDate)
}

func TestTopicPostNotFoundPage(t *testing.T) {
	svc := NewService(common.GetLogger())

	result, err := svc.TopicPost(loadFixture(t, "topic_notfound.html"), 61870000)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
	assert.Nil(t, result.Post)
}

func TestTopicPostMissingFromPage(t *testing.T) {
	svc := NewService(common.GetLogger())

	// Valid topic page that does not contain the requested post id
	result, err := svc.TopicPost(loadFixture(t, "topic.html"), 99999999)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, result.Status)
}

func TestTopicPostMalformedPage(t *testing.T) {
	svc := NewService(common.GetLogger())

	result, err := svc.TopicPost("<html><body><p>no clock here</p></body></html>", 1)
	require.NoError(t, err)
	assert.Equal(t, StatusMalformed, result.Status)
	assert.NotEmpty(t, result.Reason)
}

func TestRecentMerits(t *testing.T) {
	svc := NewService(common.GetLogger())

	batch, err := svc.RecentMerits(loadFixture(t, "merit.html"))
	require.NoError(t, err)
	require.Len(t, batch.Merits, 2)
	assert.Equal(t, 1, batch.Skipped)

	first := batch.Merits[0]
	assert.Equal(t, 2, first.Amount)
	assert.Equal(t, uint64(61870000), first.PostID)
	assert.Equal(t, uint64(5441654), first.TopicID)
	assert.Equal(t, "alice", first.Sender)
	assert.Equal(t, uint64(111), first.SenderUID)
	assert.Equal(t, "satoshifan", first.Receiver)
	assert.Equal(t, uint64(998877), first.ReceiverUID)
	assert.Equal(t, "Re: Dice strategy thread", first.PostTitle)
	assert.Equal(t, time.Date(2023, time.March, 30, 22, 30, 0, 0, time.UTC), first.Date)
	assert.NotEmpty(t, first.Key)

	second := batch.Merits[1]
	assert.Equal(t, 10, second.Amount)
	assert.Equal(t, time.Date(2023, time.March, 28, 14, 10, 44, 0, time.UTC), second.Date)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestModLog(t *testing.T) {
	svc := NewService(common.GetLogger())

	batch, err := svc.ModLog(loadFixture(t, "modlog.html"))
	require.NoError(t, err)
	require.Len(t, batch.Entries, 2)
	assert.Equal(t, 1, batch.Skipped)

	first := batch.Entries[0]
	assert.Equal(t, "Topic locked", first.Action)
	assert.Equal(t, "Dice strategy thread", first.Target)
	assert.Equal(t, "hilarious", first.Moderator)
	assert.Equal(t, time.Date(2023, time.March, 30, 21, 12, 0, 0, time.UTC), first.Time)
	assert.NotEmpty(t, first.Key)

	second := batch.Entries[1]
	assert.Equal(t, "Post deleted", second.Action)
	assert.Equal(t, time.Date(2023, time.March, 30, 11, 0, 0, 0, time.UTC), second.Time)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestResolveDate(t *testing.T) {
	ref := time.Date(2023, time.March, 30, 23, 45, 10, 0, time.UTC)

	got, err := resolveDate("Today at 10:26:56 PM", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.March, 30, 22, 26, 56, 0, time.UTC), got)

	got, err = resolveDate("January 05, 2024, 10:26:56 AM", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 5, 10, 26, 56, 0, time.UTC), got)

	_, err = resolveDate("yesterday-ish", ref)
	assert.Error(t, err)

	_, err = resolveDate("", ref)
	assert.Error(t, err)
}
