package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TopicPost extracts one specific post from a topic page. A missing post is
// an expected outcome (removed or off limits), reported as StatusNotFound
// rather than an error. StatusMalformed means the page was found but no
// longer matches the known markup.
func (s *Service) TopicPost(html string, postID uint64) (*PostResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse topic page: %w", err)
	}

	if notFoundPage(doc) {
		return &PostResult{Status: StatusNotFound}, nil
	}

	ref, err := referenceTime(doc)
	if err != nil {
		return &PostResult{Status: StatusMalformed, Reason: err.Error()}, nil
	}

	entry := doc.Find(fmt.Sprintf("table.post-entry#msg%d", postID)).First()
	if entry.Length() == 0 {
		// The page rendered but the post is gone from it.
		return &PostResult{Status: StatusNotFound}, nil
	}

	post, reason := s.postFromEntry(entry, ref)
	if post == nil {
		return &PostResult{Status: StatusMalformed, Reason: reason}, nil
	}
	if post.PostID != postID {
		return &PostResult{
			Status: StatusMalformed,
			Reason: fmt.Sprintf("entry msg%d carries post id %d", postID, post.PostID),
		}, nil
	}

	if raw := strings.TrimSpace(entry.Find("span.edited").First().Text()); raw != "" {
		if m := editedPattern.FindStringSubmatch(raw); m != nil {
			if edited, err := resolveDate(m[1], ref); err == nil {
				post.EditDate = &edited
			} else {
				s.logger.Warn().
					Int64("post_id", int64(postID)).
					Str("raw", m[1]).
					Msg("Unparseable edit marker, treating post as unedited")
			}
		}
	}

	return &PostResult{Status: StatusFound, Post: post}, nil
}
