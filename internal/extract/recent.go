package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/vigil/internal/models"
)

// RecentPosts extracts the batch of posts from a recent-posts listing page.
// The page's own clock is captured once and applied to every relative date
// in the batch. Items that fail extraction are logged and skipped; they
// never abort the batch.
func (s *Service) RecentPosts(html string) (*RecentBatch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	ref, err := referenceTime(doc)
	if err != nil {
		return nil, fmt.Errorf("listing page has no usable clock: %w", err)
	}

	batch := &RecentBatch{Reference: ref}
	doc.Find("table.post-entry").Each(func(i int, entry *goquery.Selection) {
		post, reason := s.postFromEntry(entry, ref)
		if post == nil {
			batch.Skipped++
			s.logger.Warn().
				Int("item", i).
				Str("reason", reason).
				Msg("Skipping malformed listing item")
			return
		}
		batch.Posts = append(batch.Posts, post)
	})

	return batch, nil
}

// postFromEntry extracts one post from a listing or topic entry block.
// Returns a nil post and a reason when the entry is malformed.
func (s *Service) postFromEntry(entry *goquery.Selection, ref time.Time) (*models.ScrapedPost, string) {
	titleLink := entry.Find("td.middletext a.topic-link").First()
	if titleLink.Length() == 0 {
		// Older layout renders the title as the first bold link
		titleLink = entry.Find("td.middletext b a").First()
	}
	if titleLink.Length() == 0 {
		return nil, "no title link"
	}

	href, _ := titleLink.Attr("href")
	postID, ok := matchUint(msgIDPattern, href)
	if !ok {
		return nil, fmt.Sprintf("no message id in href %q", href)
	}
	topicID, ok := matchUint(topicIDPattern, href)
	if !ok {
		return nil, fmt.Sprintf("no topic id in href %q", href)
	}

	posterLink := entry.Find("span.poster a, td.poster a").First()
	if posterLink.Length() == 0 {
		return nil, "no author link"
	}
	author := strings.TrimSpace(posterLink.Text())
	posterHref, _ := posterLink.Attr("href")
	authorUID, _ := matchUint(userIDPattern, posterHref)

	rawDate := strings.TrimSpace(entry.Find("span.date").First().Text())
	rawDate = strings.TrimPrefix(rawDate, "on: ")
	date, err := resolveDate(rawDate, ref)
	if err != nil {
		return nil, err.Error()
	}

	body := entry.Find("td.post").First()
	if body.Length() == 0 {
		return nil, "no post body"
	}
	content, err := body.Html()
	if err != nil {
		return nil, fmt.Sprintf("unreadable post body: %v", err)
	}
	content = strings.TrimSpace(content)

	return &models.ScrapedPost{
		PostID:          postID,
		TopicID:         topicID,
		Title:           strings.TrimSpace(titleLink.Text()),
		Author:          author,
		AuthorUID:       authorUID,
		Content:         content,
		ContentMarkdown: s.markdown(content),
		Date:            date,
		BoardID:         boardFromBreadcrumb(entry.Find("div.navigate a")),
		ScrapedAt:       time.Now(),
	}, ""
}
