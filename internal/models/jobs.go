package models

// Job names routed through the queue. Recurring producers enqueue the scrape
// cycles; on-demand jobs are raised by other components.
const (
	JobScrapeRecentPosts  = "scrape-recent-posts"
	JobScrapeRecentMerits = "scrape-recent-merits"
	JobScrapeModLog       = "scrape-mod-log"
	JobScrapeSinglePost   = "scrape-single-post"
	JobScrapeTopic        = "scrape-topic"
	JobScrapeUserMerit    = "scrape-user-merit-count"
	JobRescrapeDispatch   = "rescrape-dispatch"
)

// SinglePostPayload identifies one post within its topic.
type SinglePostPayload struct {
	TopicID uint64 `json:"topic_id"`
	PostID  uint64 `json:"post_id"`
}

// TopicPayload identifies a topic whose opening post should be scraped.
type TopicPayload struct {
	TopicID uint64 `json:"topic_id"`
}

// UserMeritPayload identifies a user whose merit count should be refreshed.
type UserMeritPayload struct {
	UserID uint64 `json:"user_id"`
}

// RescrapeDispatchPayload carries one due schedule entry to its handler.
type RescrapeDispatchPayload struct {
	PostID  uint64 `json:"post_id"`
	TopicID uint64 `json:"topic_id"`
}
