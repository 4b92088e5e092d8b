package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var meritCountPattern = regexp.MustCompile(`Merit:\s*(\d+)`)

// UserMeritCount reads the merit tally from a user profile page. The tally
// renders as "Merit: N" in the profile summary table.
func (s *Service) UserMeritCount(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("failed to parse profile page: %w", err)
	}

	if notFoundPage(doc) {
		return 0, fmt.Errorf("profile page not found")
	}

	text := doc.Find("table.profile, div.profile").First().Text()
	if text == "" {
		text = doc.Text()
	}
	m := meritCountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("merit tally not found on profile page")
	}

	count, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("unparseable merit tally %q: %w", m[1], err)
	}
	return count, nil
}
