// Package heartbeat pings an external liveness monitor after successful
// scrape cycles. A silent scraper and a dead scraper look identical from the
// outside, so the monitor alerts on missed pings rather than on errors.
package heartbeat

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// Service implements HeartbeatService with a plain HTTP GET. Monitor
// endpoints (healthchecks style) need nothing more than the request
// arriving, so no client library is involved.
type Service struct {
	url    string
	client *http.Client
	logger arbor.ILogger
}

// NewService creates a heartbeat service. An empty URL disables pinging.
func NewService(config *common.HeartbeatConfig, logger arbor.ILogger) *Service {
	return &Service{
		url: config.URL,
		client: &http.Client{
			Timeout: common.ParseDurationOr(config.Timeout, 10*time.Second),
		},
		logger: logger,
	}
}

var _ interfaces.HeartbeatService = (*Service)(nil)

// Ping notifies the monitor. Failures are logged and swallowed; a flaky
// monitor must never fail a scrape cycle.
func (s *Service) Ping(ctx context.Context) {
	if s.url == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to build heartbeat request")
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("Heartbeat ping failed")
		return
	}
	defer resp.Body.Close()

	s.logger.Debug().Int("status", resp.StatusCode).Msg("Heartbeat ping sent")
}
