package models

import "time"

// FetchedDocument is one origin page, decoded to UTF-8. A 404-class status
// is a valid outcome carried here, not an error; callers interpret it (e.g.
// "topic no longer exists").
type FetchedDocument struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	HTML       string    `json:"html"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Missing reports whether the origin answered with a not-found class status.
func (d *FetchedDocument) Missing() bool {
	return d.StatusCode == 403 || d.StatusCode == 404 || d.StatusCode == 410
}
