package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/vigil/internal/models"
)

// ModLog extracts the moderation log table. Entries carry no origin id, so
// the identity digest is computed here from the action fields.
func (s *Service) ModLog(html string) (*ModLogBatch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse moderation log page: %w", err)
	}

	ref, err := referenceTime(doc)
	if err != nil {
		return nil, fmt.Errorf("moderation log page has no usable clock: %w", err)
	}

	batch := &ModLogBatch{}
	doc.Find("table.modlog tr").Each(func(i int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return // header row
		}
		entry, reason := modLogFromRow(row, ref)
		if entry == nil {
			batch.Skipped++
			s.logger.Warn().
				Int("row", i).
				Str("reason", reason).
				Msg("Skipping malformed moderation log row")
			return
		}
		batch.Entries = append(batch.Entries, entry)
	})

	return batch, nil
}

func modLogFromRow(row *goquery.Selection, ref time.Time) (*models.ModLogEntry, string) {
	rawTime := strings.TrimSpace(row.Find("td.time").First().Text())
	at, err := resolveDate(rawTime, ref)
	if err != nil {
		return nil, err.Error()
	}

	action := strings.TrimSpace(row.Find("td.action").First().Text())
	if action == "" {
		return nil, "no action"
	}
	target := strings.TrimSpace(row.Find("td.target").First().Text())
	if target == "" {
		return nil, "no target"
	}

	entry := &models.ModLogEntry{
		Action:    action,
		Target:    target,
		Moderator: strings.TrimSpace(row.Find("td.mod").First().Text()),
		Time:      at,
		ScrapedAt: time.Now(),
	}
	entry.SetKey()
	return entry, ""
}
