// Package ingest is the idempotent write path between the extractor and the
// store. Every entity flows through the same sequence: probe the short-TTL
// presence cache, insert-or-ignore on the natural key, then publish events
// and hand fresh posts to the rescrape scheduler. Redelivered batches
// collapse to zero new rows and zero duplicate events.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// Scheduler receives posts that were newly inserted and should be
// re-checked after the configured delay.
type Scheduler interface {
	Schedule(ctx context.Context, post *models.ScrapedPost) error
}

// PostOutcome summarizes one ingested batch.
type PostOutcome struct {
	Received  int
	Inserted  int
	CacheHits int
	Conflicts int
}

// Pipeline wires cache, store, events and the rescrape scheduler together.
type Pipeline struct {
	storage   interfaces.StorageManager
	cache     interfaces.CacheService
	events    interfaces.EventService
	scheduler Scheduler
	cacheTTL  time.Duration
	logger    arbor.ILogger
}

// NewPipeline creates an ingestion pipeline. The scheduler may be nil when
// delayed re-checking is disabled (single-shot tooling).
func NewPipeline(storage interfaces.StorageManager, cache interfaces.CacheService, events interfaces.EventService, scheduler Scheduler, cacheTTL time.Duration, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		storage:   storage,
		cache:     cache,
		events:    events,
		scheduler: scheduler,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func postCacheKey(postID uint64) string {
	return fmt.Sprintf("post|%d", postID)
}

// IngestPosts runs a batch of extracted posts through the write path.
// A cache failure degrades to probing the store directly; the store's
// insert-or-ignore is the authoritative dedup either way.
func (p *Pipeline) IngestPosts(ctx context.Context, posts []*models.ScrapedPost) (*PostOutcome, error) {
	outcome := &PostOutcome{Received: len(posts)}
	if len(posts) == 0 {
		return outcome, nil
	}

	keys := make([]string, len(posts))
	for i, post := range posts {
		keys[i] = postCacheKey(post.PostID)
	}

	seen, err := p.cache.HasMulti(ctx, keys)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Presence cache unavailable, falling through to store")
		seen = map[string]bool{}
	}

	var candidates []*models.ScrapedPost
	for _, post := range posts {
		if seen[postCacheKey(post.PostID)] {
			outcome.CacheHits++
			continue
		}
		candidates = append(candidates, post)
	}

	inserted, err := p.storage.PostStorage().InsertPosts(ctx, candidates)
	if err != nil {
		return outcome, fmt.Errorf("failed to ingest posts: %w", err)
	}
	outcome.Inserted = len(inserted)
	outcome.Conflicts = len(candidates) - len(inserted)

	for _, post := range inserted {
		if err := p.cache.Set(ctx, postCacheKey(post.PostID), p.cacheTTL); err != nil {
			p.logger.Warn().Err(err).Int64("post_id", int64(post.PostID)).Msg("Failed to mark post in presence cache")
		}

		if err := p.events.Publish(ctx, interfaces.Event{Type: interfaces.EventPostIngested, Payload: post}); err != nil {
			p.logger.Error().Err(err).Int64("post_id", int64(post.PostID)).Msg("Failed to publish post event")
		}

		if p.scheduler != nil {
			if err := p.scheduler.Schedule(ctx, post); err != nil {
				p.logger.Error().Err(err).Int64("post_id", int64(post.PostID)).Msg("Failed to schedule rescrape")
			}
		}
	}

	p.logger.Info().
		Int("received", outcome.Received).
		Int("inserted", outcome.Inserted).
		Int("cache_hits", outcome.CacheHits).
		Int("conflicts", outcome.Conflicts).
		Msg("Post batch ingested")

	return outcome, nil
}

// IngestMerits stores a merit batch, returning the newly inserted count.
func (p *Pipeline) IngestMerits(ctx context.Context, merits []*models.ScrapedMerit) (int, error) {
	if len(merits) == 0 {
		return 0, nil
	}

	for _, merit := range merits {
		if merit.Key == "" {
			merit.SetKey()
		}
	}

	keys := make([]string, len(merits))
	for i, merit := range merits {
		keys[i] = "merit|" + merit.Key
	}
	seen, err := p.cache.HasMulti(ctx, keys)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Presence cache unavailable, falling through to store")
		seen = map[string]bool{}
	}

	var candidates []*models.ScrapedMerit
	for _, merit := range merits {
		if seen["merit|"+merit.Key] {
			continue
		}
		candidates = append(candidates, merit)
	}

	inserted := 0
	for _, merit := range candidates {
		ok, err := p.storage.MeritStorage().InsertMerit(ctx, merit)
		if err != nil {
			return inserted, fmt.Errorf("failed to ingest merits: %w", err)
		}
		if !ok {
			continue
		}
		inserted++

		if err := p.cache.Set(ctx, "merit|"+merit.Key, p.cacheTTL); err != nil {
			p.logger.Warn().Err(err).Str("key", merit.Key).Msg("Failed to mark merit in presence cache")
		}
		if err := p.events.Publish(ctx, interfaces.Event{Type: interfaces.EventMeritIngested, Payload: merit}); err != nil {
			p.logger.Error().Err(err).Str("key", merit.Key).Msg("Failed to publish merit event")
		}
	}

	p.logger.Info().
		Int("received", len(merits)).
		Int("inserted", inserted).
		Msg("Merit batch ingested")

	return inserted, nil
}

// IngestModLog stores a moderation log batch, returning the newly inserted
// count.
func (p *Pipeline) IngestModLog(ctx context.Context, entries []*models.ModLogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, entry := range entries {
		ok, err := p.storage.ModLogStorage().InsertEntry(ctx, entry)
		if err != nil {
			return inserted, fmt.Errorf("failed to ingest moderation log: %w", err)
		}
		if !ok {
			continue
		}
		inserted++

		if err := p.events.Publish(ctx, interfaces.Event{Type: interfaces.EventModLogIngested, Payload: entry}); err != nil {
			p.logger.Error().Err(err).Str("key", entry.Key).Msg("Failed to publish moderation log event")
		}
	}

	p.logger.Info().
		Int("received", len(entries)).
		Int("inserted", inserted).
		Msg("Moderation log batch ingested")

	return inserted, nil
}
