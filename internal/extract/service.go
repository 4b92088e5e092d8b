// Package extract converts raw origin markup into structured entities. Each
// page layout (recent listing, topic page, merit listing, moderation log)
// has its own structural navigation; date resolution and board-breadcrumb
// resolution are shared. Every entry point reports a three-way outcome so
// callers can tell expected absence from origin-format drift.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

var (
	msgIDPattern   = regexp.MustCompile(`\.msg(\d+)`)
	topicIDPattern = regexp.MustCompile(`topic=(\d+)`)
	userIDPattern  = regexp.MustCompile(`;u=(\d+)`)
	editedPattern  = regexp.MustCompile(`Last edit: (.+?) by `)
)

// Service holds the shared extraction dependencies: the markdown converter
// for post bodies and the logger for skipped malformed items.
type Service struct {
	converter *md.Converter
	logger    arbor.ILogger
}

// NewService creates an extraction service.
func NewService(logger arbor.ILogger) *Service {
	converter := md.NewConverter("", true, nil)
	return &Service{
		converter: converter,
		logger:    logger,
	}
}

// markdown renders a post body to markdown for the downstream consumers.
// Conversion failure is not fatal - the raw markup is the record of truth.
func (s *Service) markdown(html string) string {
	rendered, err := s.converter.ConvertString(html)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Markdown conversion failed, keeping raw markup only")
		return ""
	}
	return strings.TrimSpace(rendered)
}

// notFoundPage reports whether the document is the origin's error page for
// missing or off-limits content.
func notFoundPage(doc *goquery.Document) bool {
	errBox := doc.Find("div.errorbox, td.errorbox").First()
	if errBox.Length() == 0 {
		return false
	}
	text := errBox.Text()
	return strings.Contains(text, "missing or off limits") ||
		strings.Contains(text, "no longer exists") ||
		strings.Contains(text, "off limits to you")
}

// referenceTime captures the page's own rendered clock. Every relative date
// on the page resolves against this single value. The clock is always
// rendered absolute, so no reference is needed to parse it.
func referenceTime(doc *goquery.Document) (time.Time, error) {
	raw := strings.TrimSpace(doc.Find("span.curtime").First().Text())
	if raw == "" {
		return time.Time{}, fmt.Errorf("page clock not found")
	}
	t, err := time.Parse(absoluteLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable page clock %q: %w", raw, err)
	}
	return t, nil
}

func matchUint(pattern *regexp.Regexp, s string) (uint64, bool) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func matchInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}
