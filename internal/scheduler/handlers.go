package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/extract"
	"github.com/ternarybob/vigil/internal/ingest"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/rescrape"
)

// Handlers holds the fetch-extract-ingest chain each named job runs.
type Handlers struct {
	fetcher   interfaces.FetchService
	extractor *extract.Service
	pipeline  *ingest.Pipeline
	rescraper *rescrape.Service
	origin    *common.OriginConfig
	logger    arbor.ILogger
}

// NewHandlers creates the job handler set.
func NewHandlers(
	fetcher interfaces.FetchService,
	extractor *extract.Service,
	pipeline *ingest.Pipeline,
	rescraper *rescrape.Service,
	origin *common.OriginConfig,
	logger arbor.ILogger,
) *Handlers {
	return &Handlers{
		fetcher:   fetcher,
		extractor: extractor,
		pipeline:  pipeline,
		rescraper: rescraper,
		origin:    origin,
		logger:    logger,
	}
}

// HandleRecentPosts runs one recent-posts cycle: listing page to ingested
// batch.
func (h *Handlers) HandleRecentPosts(ctx context.Context, msg *models.QueueMessage) error {
	doc, err := h.fetcher.Fetch(ctx, h.origin.RecentPath)
	if err != nil {
		return fmt.Errorf("recent posts fetch failed: %w", err)
	}
	if doc.Missing() {
		return fmt.Errorf("recent posts listing returned status %d", doc.StatusCode)
	}

	batch, err := h.extractor.RecentPosts(doc.HTML)
	if err != nil {
		return fmt.Errorf("recent posts extraction failed: %w", err)
	}

	outcome, err := h.pipeline.IngestPosts(ctx, batch.Posts)
	if err != nil {
		return err
	}

	h.logger.Info().
		Int("extracted", len(batch.Posts)).
		Int("skipped", batch.Skipped).
		Int("inserted", outcome.Inserted).
		Msg("Recent posts cycle complete")
	return nil
}

// HandleRecentMerits runs one recent-merit cycle.
func (h *Handlers) HandleRecentMerits(ctx context.Context, msg *models.QueueMessage) error {
	doc, err := h.fetcher.Fetch(ctx, h.origin.MeritPath)
	if err != nil {
		return fmt.Errorf("recent merits fetch failed: %w", err)
	}
	if doc.Missing() {
		return fmt.Errorf("merit listing returned status %d", doc.StatusCode)
	}

	batch, err := h.extractor.RecentMerits(doc.HTML)
	if err != nil {
		return fmt.Errorf("merit extraction failed: %w", err)
	}

	inserted, err := h.pipeline.IngestMerits(ctx, batch.Merits)
	if err != nil {
		return err
	}

	h.logger.Info().
		Int("extracted", len(batch.Merits)).
		Int("skipped", batch.Skipped).
		Int("inserted", inserted).
		Msg("Recent merits cycle complete")
	return nil
}

// HandleModLog runs one moderation-log cycle.
func (h *Handlers) HandleModLog(ctx context.Context, msg *models.QueueMessage) error {
	doc, err := h.fetcher.Fetch(ctx, h.origin.ModLogPath)
	if err != nil {
		return fmt.Errorf("moderation log fetch failed: %w", err)
	}
	if doc.Missing() {
		return fmt.Errorf("moderation log returned status %d", doc.StatusCode)
	}

	batch, err := h.extractor.ModLog(doc.HTML)
	if err != nil {
		return fmt.Errorf("moderation log extraction failed: %w", err)
	}

	inserted, err := h.pipeline.IngestModLog(ctx, batch.Entries)
	if err != nil {
		return err
	}

	h.logger.Info().
		Int("extracted", len(batch.Entries)).
		Int("skipped", batch.Skipped).
		Int("inserted", inserted).
		Msg("Moderation log cycle complete")
	return nil
}

// HandleSinglePost scrapes one specific post on demand.
func (h *Handlers) HandleSinglePost(ctx context.Context, msg *models.QueueMessage) error {
	var payload models.SinglePostPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid single-post payload: %w", err)
	}

	doc, err := h.fetcher.Fetch(ctx, fmt.Sprintf("/index.php?topic=%d.msg%d#msg%d", payload.TopicID, payload.PostID, payload.PostID))
	if err != nil {
		return fmt.Errorf("single post fetch failed: %w", err)
	}
	if doc.Missing() {
		h.logger.Info().Int64("post_id", int64(payload.PostID)).Msg("Requested post no longer exists")
		return nil
	}

	result, err := h.extractor.TopicPost(doc.HTML, payload.PostID)
	if err != nil {
		return err
	}

	switch result.Status {
	case extract.StatusNotFound:
		h.logger.Info().Int64("post_id", int64(payload.PostID)).Msg("Requested post no longer exists")
		return nil
	case extract.StatusMalformed:
		return fmt.Errorf("post %d markup not understood: %s", payload.PostID, result.Reason)
	}

	_, err = h.pipeline.IngestPosts(ctx, []*models.ScrapedPost{result.Post})
	return err
}

// HandleTopic scrapes all posts rendered on a topic's first page.
func (h *Handlers) HandleTopic(ctx context.Context, msg *models.QueueMessage) error {
	var payload models.TopicPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid topic payload: %w", err)
	}

	doc, err := h.fetcher.Fetch(ctx, fmt.Sprintf("/index.php?topic=%d.0", payload.TopicID))
	if err != nil {
		return fmt.Errorf("topic fetch failed: %w", err)
	}
	if doc.Missing() {
		h.logger.Info().Int64("topic_id", int64(payload.TopicID)).Msg("Requested topic no longer exists")
		return nil
	}

	// Topic pages render posts in the same entry markup as the listing
	batch, err := h.extractor.RecentPosts(doc.HTML)
	if err != nil {
		return fmt.Errorf("topic extraction failed: %w", err)
	}

	outcome, err := h.pipeline.IngestPosts(ctx, batch.Posts)
	if err != nil {
		return err
	}

	h.logger.Info().
		Int64("topic_id", int64(payload.TopicID)).
		Int("extracted", len(batch.Posts)).
		Int("inserted", outcome.Inserted).
		Msg("Topic scrape complete")
	return nil
}

// HandleUserMerit refreshes a user's merit tally from their profile page.
func (h *Handlers) HandleUserMerit(ctx context.Context, msg *models.QueueMessage) error {
	var payload models.UserMeritPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid user-merit payload: %w", err)
	}

	doc, err := h.fetcher.Fetch(ctx, fmt.Sprintf("/index.php?action=profile;u=%d", payload.UserID))
	if err != nil {
		return fmt.Errorf("profile fetch failed: %w", err)
	}
	if doc.Missing() {
		h.logger.Info().Int64("user_id", int64(payload.UserID)).Msg("Requested profile no longer exists")
		return nil
	}

	count, err := h.extractor.UserMeritCount(doc.HTML)
	if err != nil {
		return fmt.Errorf("merit tally extraction failed for user %d: %w", payload.UserID, err)
	}

	h.logger.Info().
		Int64("user_id", int64(payload.UserID)).
		Int("merit", count).
		Msg("User merit tally refreshed")
	return nil
}

// HandleRescrapeDispatch re-checks one previously ingested post.
func (h *Handlers) HandleRescrapeDispatch(ctx context.Context, msg *models.QueueMessage) error {
	var payload models.RescrapeDispatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid rescrape-dispatch payload: %w", err)
	}
	return h.rescraper.Dispatch(ctx, payload)
}
