package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/vigil/internal/models"
)

// RecentMerits extracts the batch of merit transactions from a merit listing
// page. As with the post listing, the page's own clock anchors relative
// dates and malformed items are skipped, not fatal.
func (s *Service) RecentMerits(html string) (*MeritBatch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse merit page: %w", err)
	}

	ref, err := referenceTime(doc)
	if err != nil {
		return nil, fmt.Errorf("merit page has no usable clock: %w", err)
	}

	batch := &MeritBatch{Reference: ref}
	doc.Find("ul.merit-list li").Each(func(i int, item *goquery.Selection) {
		merit, reason := meritFromItem(item, ref)
		if merit == nil {
			batch.Skipped++
			s.logger.Warn().
				Int("item", i).
				Str("reason", reason).
				Msg("Skipping malformed merit item")
			return
		}
		batch.Merits = append(batch.Merits, merit)
	})

	return batch, nil
}

func meritFromItem(item *goquery.Selection, ref time.Time) (*models.ScrapedMerit, string) {
	rawDate := strings.TrimSpace(item.Find("span.date").First().Text())
	date, err := resolveDate(rawDate, ref)
	if err != nil {
		return nil, err.Error()
	}

	amount, ok := matchInt(item.Find("span.amount").First().Text())
	if !ok {
		return nil, "no merit amount"
	}

	sender := item.Find("a.merit-sender").First()
	if sender.Length() == 0 {
		return nil, "no sender link"
	}
	senderHref, _ := sender.Attr("href")
	senderUID, ok := matchUint(userIDPattern, senderHref)
	if !ok {
		return nil, fmt.Sprintf("no sender uid in href %q", senderHref)
	}

	receiver := item.Find("a.merit-receiver").First()
	if receiver.Length() == 0 {
		return nil, "no receiver link"
	}
	receiverHref, _ := receiver.Attr("href")
	receiverUID, _ := matchUint(userIDPattern, receiverHref)

	postLink := item.Find("a.merit-post").First()
	if postLink.Length() == 0 {
		return nil, "no post link"
	}
	postHref, _ := postLink.Attr("href")
	postID, ok := matchUint(msgIDPattern, postHref)
	if !ok {
		return nil, fmt.Sprintf("no message id in href %q", postHref)
	}
	topicID, _ := matchUint(topicIDPattern, postHref)

	merit := &models.ScrapedMerit{
		Date:        date,
		Amount:      amount,
		PostID:      postID,
		TopicID:     topicID,
		Sender:      strings.TrimSpace(sender.Text()),
		SenderUID:   senderUID,
		Receiver:    strings.TrimSpace(receiver.Text()),
		ReceiverUID: receiverUID,
		PostTitle:   strings.TrimSpace(postLink.Text()),
		ScrapedAt:   time.Now(),
	}
	merit.SetKey()
	return merit, ""
}
