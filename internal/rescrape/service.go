// Package rescrape re-checks freshly scraped posts after a delay. Edits and
// deletions usually happen shortly after posting, so each new post gets one
// delayed verification pass: a schedule entry becomes due, a dispatch job
// fetches the topic again, and any observed difference is appended as a
// PostVersion. Delivery is at least once; the version key dedupes repeats.
package rescrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/extract"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// sweepBatchLimit bounds one sweep so a backlog drains across cycles
// instead of flooding the queue.
const sweepBatchLimit = 200

// Service implements scheduling, sweeping and dispatching of rescrapes.
type Service struct {
	storage   interfaces.StorageManager
	queue     interfaces.QueueManager
	fetcher   interfaces.FetchService
	extractor *extract.Service
	events    interfaces.EventService
	delay     time.Duration
	entryTTL  time.Duration
	logger    arbor.ILogger
}

// NewService creates a rescrape service.
func NewService(
	storage interfaces.StorageManager,
	queue interfaces.QueueManager,
	fetcher interfaces.FetchService,
	extractor *extract.Service,
	events interfaces.EventService,
	config *common.RescrapeConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		storage:   storage,
		queue:     queue,
		fetcher:   fetcher,
		extractor: extractor,
		events:    events,
		delay:     common.ParseDurationOr(config.Delay, 10*time.Minute),
		entryTTL:  common.ParseDurationOr(config.EntryTTL, 2*time.Hour),
		logger:    logger,
	}
}

// Schedule records a delayed re-check for a newly ingested post.
func (s *Service) Schedule(ctx context.Context, post *models.ScrapedPost) error {
	entry := &models.RescrapeEntry{
		PostID:  post.PostID,
		TopicID: post.TopicID,
		DueTime: time.Now().Add(s.delay),
	}
	if err := s.storage.RescrapeStorage().PutEntry(ctx, entry, s.entryTTL); err != nil {
		return fmt.Errorf("failed to schedule rescrape for post %d: %w", post.PostID, err)
	}

	s.logger.Debug().
		Int64("post_id", int64(post.PostID)).
		Str("due", entry.DueTime.Format(time.RFC3339)).
		Msg("Rescrape scheduled")
	return nil
}

// Sweep moves due schedule entries onto the queue as dispatch jobs. The
// entry is deleted only after the enqueue succeeds, so a crash between the
// two re-dispatches rather than losing the check.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	due, err := s.storage.RescrapeStorage().DueEntries(ctx, time.Now(), sweepBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load due rescrape entries: %w", err)
	}

	dispatched := 0
	for _, entry := range due {
		payload, err := json.Marshal(models.RescrapeDispatchPayload{
			PostID:  entry.PostID,
			TopicID: entry.TopicID,
		})
		if err != nil {
			return dispatched, fmt.Errorf("failed to encode dispatch payload: %w", err)
		}

		msg := models.QueueMessage{
			JobID:   uuid.New().String(),
			Name:    models.JobRescrapeDispatch,
			Payload: payload,
		}
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			return dispatched, fmt.Errorf("failed to enqueue dispatch for post %d: %w", entry.PostID, err)
		}

		if err := s.storage.RescrapeStorage().DeleteEntry(ctx, entry.Key); err != nil {
			s.logger.Warn().Err(err).Str("key", entry.Key).Msg("Failed to delete dispatched rescrape entry")
		}
		dispatched++
	}

	if dispatched > 0 {
		s.logger.Info().Int("dispatched", dispatched).Msg("Rescrape sweep complete")
	}
	return dispatched, nil
}

// Dispatch fetches a post again and records what changed since ingestion.
// Every outcome marks the post checked; only differences append a version.
func (s *Service) Dispatch(ctx context.Context, payload models.RescrapeDispatchPayload) error {
	stored, err := s.storage.PostStorage().GetPost(ctx, payload.PostID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Int64("post_id", int64(payload.PostID)).Msg("Dispatch for unknown post, dropping")
			return nil
		}
		return fmt.Errorf("failed to load post %d: %w", payload.PostID, err)
	}

	marked, err := s.storage.RescrapeStorage().HasMissingMarker(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if marked {
		return s.markChecked(ctx, payload.PostID)
	}

	doc, err := s.fetcher.Fetch(ctx, topicPath(payload.TopicID, payload.PostID))
	if err != nil {
		return fmt.Errorf("failed to fetch topic %d: %w", payload.TopicID, err)
	}

	if doc.Missing() {
		return s.recordDeleted(ctx, stored)
	}

	result, err := s.extractor.TopicPost(doc.HTML, payload.PostID)
	if err != nil {
		return err
	}

	switch result.Status {
	case extract.StatusNotFound:
		return s.recordDeleted(ctx, stored)
	case extract.StatusMalformed:
		return fmt.Errorf("topic %d markup not understood: %s", payload.TopicID, result.Reason)
	}

	current := result.Post
	version := &models.PostVersion{PostID: stored.PostID}
	if current.Title != stored.Title {
		version.NewTitle = &current.Title
	}
	if current.Content != stored.Content {
		version.NewContent = &current.Content
	}

	if version.NewTitle == nil && version.NewContent == nil {
		s.logger.Debug().Int64("post_id", int64(stored.PostID)).Msg("Rescrape found no changes")
		return s.markChecked(ctx, stored.PostID)
	}

	// The origin's edit marker keys the version; a markerless change (title
	// edits don't get one) falls back to the post date, recording the first
	// such change only.
	if current.EditDate != nil {
		version.EditDate = *current.EditDate
	} else {
		version.EditDate = stored.Date
	}

	inserted, err := s.storage.VersionStorage().InsertVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to record version for post %d: %w", stored.PostID, err)
	}
	if inserted {
		s.logger.Info().
			Int64("post_id", int64(stored.PostID)).
			Bool("title_changed", version.NewTitle != nil).
			Bool("content_changed", version.NewContent != nil).
			Msg("Post change recorded")
		s.publishVersion(ctx, version)
	}

	return s.markChecked(ctx, stored.PostID)
}

func (s *Service) recordDeleted(ctx context.Context, stored *models.ScrapedPost) error {
	// A deletion record is always version 1, regardless of edit versions
	// recorded earlier.
	version := &models.PostVersion{
		PostID:   stored.PostID,
		EditDate: time.Now(),
		Deleted:  true,
		Version:  1,
	}
	inserted, err := s.storage.VersionStorage().InsertVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to record deletion for post %d: %w", stored.PostID, err)
	}
	if inserted {
		s.logger.Info().Int64("post_id", int64(stored.PostID)).Msg("Post deletion recorded")
		s.publishVersion(ctx, version)
	}

	marker := &models.PostMissingMarker{PostID: stored.PostID, TopicID: stored.TopicID}
	if err := s.storage.RescrapeStorage().PutMissingMarker(ctx, marker); err != nil {
		return err
	}
	return s.markChecked(ctx, stored.PostID)
}

func (s *Service) markChecked(ctx context.Context, postID uint64) error {
	if err := s.storage.PostStorage().MarkChecked(ctx, postID); err != nil {
		return fmt.Errorf("failed to mark post %d checked: %w", postID, err)
	}
	return nil
}

func (s *Service) publishVersion(ctx context.Context, version *models.PostVersion) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventPostVersion, Payload: version}); err != nil {
		s.logger.Error().Err(err).Int64("post_id", int64(version.PostID)).Msg("Failed to publish version event")
	}
}

// topicPath builds the origin path that renders a post within its topic.
func topicPath(topicID, postID uint64) string {
	return fmt.Sprintf("/index.php?topic=%d.msg%d#msg%d", topicID, postID, postID)
}
