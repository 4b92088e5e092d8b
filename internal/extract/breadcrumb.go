package extract

import (
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

var boardIDPattern = regexp.MustCompile(`board=(\d+)`)

// boardFromBreadcrumb resolves the immediate parent board from a breadcrumb
// of links. Only interior entries are board candidates: the first entry is
// the forum root and the last repeats the page's own title, so both are
// excluded. With no interior entry the board is absent, which is a valid
// outcome (top-level topics), not an error.
func boardFromBreadcrumb(links *goquery.Selection) *int {
	total := links.Length()
	if total <= 2 {
		return nil
	}

	var candidates []int
	links.Each(func(i int, s *goquery.Selection) {
		if i == 0 || i == total-1 {
			return
		}
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if m := boardIDPattern.FindStringSubmatch(href); m != nil {
			if id, err := strconv.Atoi(m[1]); err == nil {
				candidates = append(candidates, id)
			}
		}
	})

	if len(candidates) == 0 {
		return nil
	}
	boardID := candidates[len(candidates)-1]
	return &boardID
}
