package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// PostStorage implements the PostStorage interface for Badger. Posts are
// keyed by the forum-assigned post id; Insert is insert-or-ignore, so a
// concurrent or redelivered insert of the same post collapses to one row.
type PostStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPostStorage creates a new PostStorage instance
func NewPostStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PostStorage {
	return &PostStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.PostStorage = (*PostStorage)(nil)

// InsertPost stores a post unless a row with the same post id already
// exists. Returns whether the row was newly inserted.
func (s *PostStorage) InsertPost(ctx context.Context, post *models.ScrapedPost) (bool, error) {
	if post.PostID == 0 {
		return false, fmt.Errorf("post id is required")
	}
	if post.ScrapedAt.IsZero() {
		post.ScrapedAt = time.Now()
	}

	if err := s.db.Store().Insert(post.PostID, post); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert post %d: %w", post.PostID, err)
	}
	return true, nil
}

// InsertPosts inserts a batch, returning the newly inserted subset. A
// conflict on one post never blocks the rest of the batch.
func (s *PostStorage) InsertPosts(ctx context.Context, posts []*models.ScrapedPost) ([]*models.ScrapedPost, error) {
	var inserted []*models.ScrapedPost
	for _, post := range posts {
		ok, err := s.InsertPost(ctx, post)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted = append(inserted, post)
		}
	}
	return inserted, nil
}

func (s *PostStorage) GetPost(ctx context.Context, postID uint64) (*models.ScrapedPost, error) {
	var post models.ScrapedPost
	if err := s.db.Store().Get(postID, &post); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post %d: %w", postID, err)
	}
	return &post, nil
}

// MarkChecked records that a rescrape dispatch has examined this post.
func (s *PostStorage) MarkChecked(ctx context.Context, postID uint64) error {
	return s.update(postID, func(post *models.ScrapedPost) {
		post.Checked = true
	})
}

func (s *PostStorage) MarkNotified(ctx context.Context, postID uint64, notifiedTo string) error {
	return s.update(postID, func(post *models.ScrapedPost) {
		post.Notified = true
		post.NotifiedTo = notifiedTo
	})
}

func (s *PostStorage) CountPosts(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ScrapedPost{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(count), nil
}

func (s *PostStorage) update(postID uint64, mutate func(*models.ScrapedPost)) error {
	var post models.ScrapedPost
	if err := s.db.Store().Get(postID, &post); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to load post %d: %w", postID, err)
	}
	mutate(&post)
	if err := s.db.Store().Update(postID, &post); err != nil {
		return fmt.Errorf("failed to update post %d: %w", postID, err)
	}
	return nil
}
